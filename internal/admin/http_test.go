package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/greyd/internal/events"
	"github.com/ocx/greyd/internal/metrics"
	"github.com/ocx/greyd/internal/ring"
)

func TestHealthz(t *testing.T) {
	r, err := ring.New(2, 12, 8, 32)
	require.NoError(t, err)
	h := NewHandler(r, nil, metrics.New(), NewHub(events.NewEventBus()))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestDebugRing(t *testing.T) {
	r, err := ring.New(3, 12, 8, 32)
	require.NoError(t, err)
	h := NewHandler(r, nil, metrics.New(), NewHub(events.NewEventBus()))

	req := httptest.NewRequest(http.MethodGet, "/debug/ring", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status ringStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 3, status.Size)
	assert.Len(t, status.FillRatio, 3)
}

func TestDebugPeerWithoutPeerConfigured(t *testing.T) {
	r, err := ring.New(2, 12, 8, 32)
	require.NoError(t, err)
	h := NewHandler(r, nil, metrics.New(), NewHub(events.NewEventBus()))

	req := httptest.NewRequest(http.MethodGet, "/debug/peer", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status peerStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Configured)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	r, err := ring.New(2, 12, 8, 32)
	require.NoError(t, err)
	m := metrics.New()
	m.RingRotations.Inc()
	h := NewHandler(r, nil, m, NewHub(events.NewEventBus()))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "greyd_ring_rotations_total")
}
