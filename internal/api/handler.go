package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/driftguard/driftguard/internal/alerts"
	"github.com/driftguard/driftguard/internal/store"
)

// Resetter clears a channel's monitor state. Implemented by pipeline.Engine.
type Resetter interface {
	ResetChannel(channelID string) error
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads monitor state from the snapshot store and returns JSON responses.
type Handler struct {
	store  *store.Store
	alerts *alerts.Engine
	reset  Resetter
	mux    *http.ServeMux
}

// New creates a Handler wired to the given store, alert engine, and resetter,
// and registers all routes.
func New(st *store.Store, ae *alerts.Engine, reset Resetter) http.Handler {
	h := &Handler{store: st, alerts: ae, reset: reset, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/channels", h.listChannels)
	h.mux.HandleFunc("/api/v1/channels/", h.channelSubtree) // {id} and {id}/reset
	h.mux.HandleFunc("/api/v1/groups", h.listGroups)
	h.mux.HandleFunc("/api/v1/groups/", h.getGroup)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — status counts across live channels.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{ChannelCount: len(entries)}
	if h.alerts != nil {
		resp.AlertCount = len(h.alerts.Active())
	}

	if len(entries) == 0 {
		resp.State = "unknown"
		jsonResp(w, http.StatusOK, resp)
		return
	}

	for _, e := range entries {
		switch e.Snapshot.Status {
		case "stable":
			resp.StableCount++
		case "drifting_up", "drifting_down":
			resp.DriftingCount++
		case "faulted":
			resp.FaultedCount++
		default:
			resp.LearningCount++
		}
		if e.Snapshot.Liveness == "dead" {
			resp.DeadCount++
		}
	}
	resp.State = overallState(resp)
	jsonResp(w, http.StatusOK, resp)
}

// listChannels returns GET /api/v1/channels — all live channels.
func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	out := make([]ChannelResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toChannelResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// channelSubtree dispatches GET /api/v1/channels/{id} and
// POST /api/v1/channels/{id}/reset.
func (h *Handler) channelSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/channels/")
	if rest == "" {
		h.listChannels(w, r)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/reset"); ok {
		h.resetChannel(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	e, ok := h.store.Get(rest)
	if !ok {
		jsonErr(w, http.StatusNotFound, "channel not found")
		return
	}
	// Exclude stale entries — treat them as not found.
	if time.Since(e.UpdatedAt) > h.store.TTL() {
		jsonErr(w, http.StatusNotFound, "channel not found")
		return
	}

	jsonResp(w, http.StatusOK, toChannelResponse(e))
}

// resetChannel handles POST /api/v1/channels/{id}/reset — clears sticky
// faults and returns the channel to its learning phase.
func (h *Handler) resetChannel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.reset == nil {
		jsonErr(w, http.StatusNotImplemented, "reset not available")
		return
	}
	if err := h.reset.ResetChannel(id); err != nil {
		jsonErr(w, http.StatusNotFound, "channel not found")
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"channel_id": id, "result": "reset"})
}

// listGroups returns GET /api/v1/groups — all live redundancy groups.
func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.ListGroups()
	out := make([]GroupResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toGroupResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getGroup returns GET /api/v1/groups/{id} — a single live group.
func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/groups/")
	if id == "" {
		h.listGroups(w, r)
		return
	}

	e, ok := h.store.GetGroup(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "group not found")
		return
	}
	if time.Since(e.UpdatedAt) > h.store.TTL() {
		jsonErr(w, http.StatusNotFound, "group not found")
		return
	}

	jsonResp(w, http.StatusOK, toGroupResponse(e))
}

// listAlerts returns GET /api/v1/alerts — firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// snapshot returns GET /api/v1/snapshot — full JSON dump of all live state.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot assembles the full live state dump. Shared with the
// WebSocket hub, which broadcasts the same schema.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	entries := st.List()
	channels := make([]ChannelResponse, 0, len(entries))
	for _, e := range entries {
		channels = append(channels, toChannelResponse(e))
	}

	groupEntries := st.ListGroups()
	groups := make([]GroupResponse, 0, len(groupEntries))
	for _, e := range groupEntries {
		groups = append(groups, toGroupResponse(e))
	}

	return SnapshotResponse{
		Channels:    channels,
		Groups:      groups,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// overallState summarizes the per-channel counts into one state string.
func overallState(r HealthResponse) string {
	switch {
	case r.FaultedCount > 0 || r.DeadCount > 0:
		return "critical"
	case r.DriftingCount > 0:
		return "degraded"
	default:
		return "healthy"
	}
}

// toChannelResponse maps a store.Entry to its JSON representation.
func toChannelResponse(e *store.Entry) ChannelResponse {
	snap := e.Snapshot
	return ChannelResponse{
		ChannelID: snap.ChannelID,
		Value:     snap.Value,
		Slope:     snap.Slope,
		RawSlope:  snap.RawSlope,
		TTFMillis: snap.TTFMillis,
		HasTTF:    snap.HasTTF,
		Status:    snap.Status,
		Drifting:  snap.Drifting,
		Liveness:  snap.Liveness,
		Error:     snap.Error,
		LastSeen:  e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// toGroupResponse maps a store.GroupEntry to its JSON representation.
func toGroupResponse(e *store.GroupEntry) GroupResponse {
	snap := e.Snapshot
	return GroupResponse{
		GroupID:    snap.GroupID,
		Value:      snap.Value,
		Confidence: snap.Confidence,
		Spread:     snap.Spread,
		State:      snap.State,
		Active:     snap.Active,
		Valid:      snap.Valid,
		Channels:   snap.Channels,
		LastSeen:   e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
