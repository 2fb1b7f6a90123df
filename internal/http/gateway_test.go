package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/offline-sync/internal/remote"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/guttosm/offline-sync/internal/service"
	"github.com/stretchr/testify/require"
)

// testGateway is a full router in front of an engine whose remote API is an
// httptest server. Closing the upstream simulates losing the network.
type testGateway struct {
	router   *gin.Engine
	engine   *service.Engine
	upstream *httptest.Server
}

func newTestGateway(t *testing.T, upstream http.HandlerFunc, online bool) *testGateway {
	t.Helper()
	return newTestGatewayWithStore(t, upstream, online, repository.NewMemoryStore())
}

func newTestGatewayWithStore(t *testing.T, upstream http.HandlerFunc, online bool, store repository.Store) *testGateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	client, err := remote.NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	engine := service.NewEngine(service.EngineConfig{
		APIPrefix:      "/api",
		Resolve:        client.Resolve,
		NetworkTimeout: 500 * time.Millisecond,
		MaxRetries:     3,
		Backoff:        service.Backoff{Base: time.Second, Max: time.Minute},
		InitialOnline:  online,
		Reconciler:     service.ReconcilerConfig{ServerIDPaths: []string{"id"}},
	}, store, client, nil)
	t.Cleanup(engine.Reconciler.Wait)

	health := NewHealthHandler()
	health.RegisterChecker("storage", engine.Store())

	cfg := DefaultRouterConfig()
	cfg.RateLimit = 0
	router := NewRouter(NewProxyHandler(engine), NewAdminHandler(engine), health, cfg)

	return &testGateway{router: router, engine: engine, upstream: srv}
}

func (g *testGateway) do(method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// todoAPI is a minimal remote API over an in-memory todo list.
func todoAPI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/todos":
			_, _ = w.Write([]byte(`[{"id":"1","title":"buy milk"}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/todos":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"srv-1"}`))
		case r.URL.Path == "/api/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		}
	}
}
