package receiver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/driftguard/driftguard/internal/alerts"
	"github.com/driftguard/driftguard/internal/pipeline"
	"github.com/driftguard/driftguard/internal/store"
	"github.com/driftguard/driftguard/pkg/types"
)

// Observer feeds one observation through the monitor pipeline.
// Implemented by pipeline.Engine.
type Observer interface {
	Observe(channelID string, value float64, now time.Time) (*types.Snapshot, error)
}

// Observation is the JSON body of POST /api/v1/observations.
type Observation struct {
	ChannelID string   `json:"channel_id"`
	Value     *float64 `json:"value"`

	// Timestamp is optional; absent means "now". Explicit timestamps let a
	// gateway replay a short buffer after a network outage, subject to the
	// monitor's ordering rules.
	Timestamp time.Time `json:"timestamp"`
}

// Receiver handles POST /api/v1/observations.
type Receiver struct {
	engine Observer
	store  *store.Store
	alerts *alerts.Engine
}

// New creates a Receiver that feeds accepted observations into engine and
// writes the resulting snapshots to st. ae may be nil to disable alerting.
func New(engine Observer, st *store.Store, ae *alerts.Engine) *Receiver {
	return &Receiver{engine: engine, store: st, alerts: ae}
}

// ServeHTTP validates the observation, steps the channel's monitors, and
// returns the resulting snapshot. A rejected reading (stale timestamp,
// non-finite value) is still a 200: the snapshot carries the rejection in
// its error field, mirroring what a scrape cycle produces.
func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var obs Observation
	if err := json.NewDecoder(r.Body).Decode(&obs); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if obs.ChannelID == "" {
		jsonErr(w, http.StatusBadRequest, "channel_id is required")
		return
	}
	if obs.Value == nil {
		jsonErr(w, http.StatusBadRequest, "value is required")
		return
	}
	if math.IsNaN(*obs.Value) || math.IsInf(*obs.Value, 0) {
		// JSON cannot carry NaN/Inf literals, but a client library might
		// smuggle one through as a string-coerced float. Reject outright
		// rather than trip the channel's sticky fault.
		jsonErr(w, http.StatusBadRequest, "value must be finite")
		return
	}

	at := obs.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	snap, err := rc.engine.Observe(obs.ChannelID, *obs.Value, at)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownChannel) {
			jsonErr(w, http.StatusNotFound, "unknown channel")
			return
		}
		jsonErr(w, http.StatusInternalServerError, "observation failed")
		return
	}

	rc.store.Put(snap)
	if rc.alerts != nil {
		rc.alerts.Evaluate(snap)
	}

	slog.Debug("receiver: observation stored",
		"channel_id", snap.ChannelID,
		"value", snap.Value,
		"status", snap.Status,
	)

	jsonResp(w, http.StatusOK, snap)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, map[string]string{"error": msg})
}
