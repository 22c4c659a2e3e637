package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/codepair-live/codepair/internal/handlers"
	"github.com/codepair-live/codepair/internal/registry"
	"github.com/codepair-live/codepair/internal/relay"
)

func newTestRouter(store registry.Store) http.Handler {
	hub := relay.NewHub(store, nil, zerolog.Nop())
	return NewRouter(zerolog.Nop(), store, hub)
}

func TestHealthz_ReturnsFixedOK(t *testing.T) {
	router := newTestRouter(registry.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NotEmpty(t, resp.Version)
}

func TestStats_ReflectsRegistry(t *testing.T) {
	store := registry.NewMemoryStore()
	store.Join("r1", "alice")
	store.Join("r1", "bob")
	store.Join("r2", "carol")
	store.Leave("r2", "carol")

	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.RoomsTotal)
	require.Equal(t, 1, resp.RoomsOccupied)
	require.Equal(t, 2, resp.MembersOnline)
	require.Zero(t, resp.Connections)
	require.Zero(t, resp.ExecutionsServed)
}

func TestSecurityHeaders_Present(t *testing.T) {
	router := newTestRouter(registry.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))
}
