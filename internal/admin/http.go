// Package admin implements the operator-facing surface: health, metrics,
// ring/peer introspection, and a live verdict feed. It is read-only and
// never influences a verdict, the same boundary the teacher's
// internal/api and internal/websocket packages drew around their
// admin/observability endpoints.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/greyd/internal/metrics"
	"github.com/ocx/greyd/internal/ring"
	"github.com/ocx/greyd/internal/syncmgr"
)

// RingInspector is the read-only ring surface the admin HTTP handlers need.
type RingInspector interface {
	Size() int
	Current() int
	FillRatio() []float64
}

// PeerInspector is the read-only peer surface the admin HTTP handlers need.
type PeerInspector interface {
	State() syncmgr.State
}

// Handler builds the admin HTTP surface as a *mux.Router.
type Handler struct {
	ring    RingInspector
	peer    PeerInspector
	metrics *metrics.Metrics
	hub     *Hub
}

// NewHandler wires the admin routes. peer may be nil when no peer link
// is configured.
func NewHandler(r *ring.Ring, peer PeerInspector, m *metrics.Metrics, hub *Hub) http.Handler {
	h := &Handler{ring: r, peer: peer, metrics: m, hub: hub}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/debug/ring", h.debugRing).Methods(http.MethodGet)
	router.HandleFunc("/debug/peer", h.debugPeer).Methods(http.MethodGet)
	router.HandleFunc("/ws/verdicts", hub.ServeWS)
	return router
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ringStatus struct {
	Size      int       `json:"size"`
	Current   int       `json:"current"`
	FillRatio []float64 `json:"fill_ratio"`
}

func (h *Handler) debugRing(w http.ResponseWriter, r *http.Request) {
	status := ringStatus{
		Size:      h.ring.Size(),
		Current:   h.ring.Current(),
		FillRatio: h.ring.FillRatio(),
	}
	writeJSON(w, status)
}

type peerStatus struct {
	Configured bool   `json:"configured"`
	State      string `json:"state"`
}

func (h *Handler) debugPeer(w http.ResponseWriter, r *http.Request) {
	if h.peer == nil {
		writeJSON(w, peerStatus{Configured: false, State: syncmgr.Disconnected.String()})
		return
	}
	writeJSON(w, peerStatus{Configured: true, State: h.peer.State().String()})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
