package liveness

import (
	"errors"
	"fmt"
)

// Status is the liveness classification of one telemetry source.
type Status int

const (
	// StatusUnknown means no heartbeat has ever been observed, or the
	// clock reading was invalid (wrap anomaly).
	StatusUnknown Status = iota

	// StatusAlive means the last heartbeat is within the timeout.
	StatusAlive

	// StatusDead means the source has been silent longer than the timeout,
	// or too many consecutive deliveries failed.
	StatusDead
)

// String implements fmt.Stringer for Status.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAlive:
		return "alive"
	case StatusDead:
		return "dead"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// DefaultMissThreshold is the number of consecutive transport misses that
// classifies a source as dead regardless of its last heartbeat.
const DefaultMissThreshold = 3

// halfRange splits the uint64 clock domain; a modular delta at or above it
// is not a valid forward distance.
const halfRange = uint64(1) << 63

// Sentinel errors returned by New and Beat.
var (
	ErrConfig   = errors.New("liveness: invalid config")
	ErrTemporal = errors.New("liveness: non-monotonic heartbeat")
)

// Monitor tracks heartbeats for one source. Like drift.Monitor it has one
// logical owner; internal/pipeline serializes access.
type Monitor struct {
	timeout       uint64
	missThreshold int

	lastBeat uint64
	seen     bool
	misses   int
}

// New returns a Monitor that classifies a source dead after timeout ticks of
// silence or missThreshold consecutive misses. A missThreshold of zero picks
// DefaultMissThreshold.
func New(timeout uint64, missThreshold int) (*Monitor, error) {
	if timeout == 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", ErrConfig)
	}
	if missThreshold < 0 {
		return nil, fmt.Errorf("%w: miss threshold must not be negative", ErrConfig)
	}
	if missThreshold == 0 {
		missThreshold = DefaultMissThreshold
	}
	return &Monitor{timeout: timeout, missThreshold: missThreshold}, nil
}

// Beat records a heartbeat at ts and clears the consecutive-miss counter.
// Heartbeats must be strictly increasing in the modular sense; a stale or
// duplicate timestamp is rejected without changing state.
func (m *Monitor) Beat(ts uint64) error {
	if m.seen {
		delta := ts - m.lastBeat // modular: the clock wraps
		if delta == 0 || delta >= halfRange {
			return fmt.Errorf("%w: %d not after %d", ErrTemporal, ts, m.lastBeat)
		}
	}
	m.lastBeat = ts
	m.seen = true
	m.misses = 0
	return nil
}

// Miss records a failed delivery attempt that carried no timestamp.
func (m *Monitor) Miss() {
	m.misses++
}

// Check classifies the source as of clock reading now.
func (m *Monitor) Check(now uint64) Status {
	if m.misses >= m.missThreshold {
		return StatusDead
	}
	if !m.seen {
		return StatusUnknown
	}
	age := now - m.lastBeat // modular
	if age >= halfRange {
		// now reads before the last heartbeat: a wrap anomaly or a caller
		// clock running behind the beat clock. Don't trust the age.
		return StatusUnknown
	}
	if age > m.timeout {
		return StatusDead
	}
	return StatusAlive
}

// Reset forgets all heartbeat history. Idempotent.
func (m *Monitor) Reset() {
	m.lastBeat = 0
	m.seen = false
	m.misses = 0
}
