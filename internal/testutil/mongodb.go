//go:build integration

// Package testutil runs the MongoDB container shared by a package's
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

const mongoImage = "mongo:7.0"

// mongoDBNameLimit is MongoDB's maximum database name length in bytes.
const mongoDBNameLimit = 63

var (
	mu        sync.RWMutex
	container *mongodb.MongoDBContainer
	uri       string
)

// RunWithMongoDB starts one MongoDB container, runs the package's tests
// against it and terminates it. Use it from TestMain:
//
//	func TestMain(m *testing.M) {
//		os.Exit(testutil.RunWithMongoDB(m))
//	}
func RunWithMongoDB(m *testing.M) int {
	ctx := context.Background()
	if err := startMongoDB(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "testutil: %v\n", err)
		return 1
	}

	code := m.Run()

	mu.Lock()
	defer mu.Unlock()
	if err := testcontainers.TerminateContainer(container); err != nil {
		fmt.Fprintf(os.Stderr, "testutil: terminate mongodb container: %v\n", err)
	}
	container, uri = nil, ""
	return code
}

func startMongoDB(ctx context.Context) error {
	c, err := mongodb.Run(ctx, mongoImage)
	if err != nil {
		return fmt.Errorf("start mongodb container: %w", err)
	}
	connURI, err := c.ConnectionString(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(c)
		return fmt.Errorf("mongodb connection string: %w", err)
	}

	mu.Lock()
	container, uri = c, connURI
	mu.Unlock()
	return nil
}

// MongoURI returns the connection string of the running container.
func MongoURI(t testing.TB) string {
	t.Helper()
	mu.RLock()
	defer mu.RUnlock()
	if uri == "" {
		t.Fatal("testutil: mongodb container not running, call RunWithMongoDB from TestMain")
	}
	return uri
}

// DatabaseName derives a database name unique to t, so tests sharing the
// container never see each other's data.
func DatabaseName(t testing.TB) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '.', ' ', '"', '$', '*', '<', '>', ':', '|', '?':
			return '_'
		}
		return r
	}, t.Name())

	suffix := fmt.Sprintf("_%d", time.Now().UnixNano()%1_000_000)
	if max := mongoDBNameLimit - len(suffix); len(name) > max {
		name = name[:max]
	}
	return name + suffix
}
