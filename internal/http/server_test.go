package http

import (
	"io"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(DefaultServerConfig(), logger, "test")
}

func TestNewServer_ServesOpenAPI(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(nethttp.MethodGet, "/openapi.json", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tvjuke API")
}

func TestNewServer_RawRouteRegistration(t *testing.T) {
	server := newTestServer(t)
	server.Router().Get("/custom", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusTeapot)
	})

	req := httptest.NewRequest(nethttp.MethodGet, "/custom", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusTeapot, rec.Code)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 3000, cfg.Port)
	// Streaming responses must not be cut off by a write deadline.
	assert.Zero(t, cfg.WriteTimeout)
}
