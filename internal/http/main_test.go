//go:build integration

package http

import (
	"os"
	"testing"

	"github.com/guttosm/offline-sync/internal/testutil"
)

// TestMain sets up a shared MongoDB container for all HTTP integration tests in this package.
func TestMain(m *testing.M) {
	os.Exit(testutil.RunWithMongoDB(m))
}
