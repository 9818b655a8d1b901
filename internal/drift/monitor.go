package drift

import (
	"fmt"
	"math"
)

// Status is the discrete trend classification of a monitored channel.
// The enum is closed: every Monitor method only ever produces these values.
type Status int

const (
	// StatusLearning means the observation count is still below
	// Config.MinObservations and the slope estimate is not yet trusted.
	StatusLearning Status = iota

	// StatusStable means the smoothed slope magnitude is at or below
	// Config.MaxSafeSlope.
	StatusStable

	// StatusDriftingUp means the smoothed slope exceeds MaxSafeSlope.
	StatusDriftingUp

	// StatusDriftingDown means the smoothed slope is below -MaxSafeSlope.
	StatusDriftingDown

	// StatusFaulted is terminal until Reset: numeric corruption or
	// re-entrant use was detected.
	StatusFaulted
)

// String implements fmt.Stringer for Status.
func (s Status) String() string {
	switch s {
	case StatusLearning:
		return "learning"
	case StatusStable:
		return "stable"
	case StatusDriftingUp:
		return "drifting_up"
	case StatusDriftingDown:
		return "drifting_down"
	case StatusFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// halfRange splits the uint64 clock domain: a modular delta at or above this
// bound cannot be a forward step and is rejected as non-monotonic.
const halfRange = uint64(1) << 63

// Result is the transient outcome of one Update call. It is derived, never
// stored: the monitor's own state vector stays O(1).
type Result struct {
	// Slope is the smoothed slope estimate after this observation,
	// in value units per tick.
	Slope float64

	// RawSlope is the instantaneous (value delta / elapsed) slope of this
	// observation before smoothing. Zero on the bootstrap observation.
	RawSlope float64

	// Elapsed is the tick delta to the previous observation. Zero on the
	// bootstrap observation.
	Elapsed uint64

	// TTF is the projected time to reach the limit the slope points at,
	// in ticks. Only meaningful when HasTTF is true.
	TTF float64

	// HasTTF reports whether a failure-time projection was produced.
	HasTTF bool

	// Status is the classification after this observation.
	Status Status

	// Drifting is true when Status is DriftingUp or DriftingDown.
	Drifting bool
}

// Monitor is the drift detector state vector for one telemetry channel.
// It has exactly one logical owner; see the package comment for the
// concurrency contract.
type Monitor struct {
	cfg Config

	slope     float64
	prevValue float64
	prevTS    uint64
	n         uint32
	status    Status
	primed    bool

	// Sticky fault flags. Once set they persist until Reset.
	numericFault  bool
	overflowFault bool
	reentryFault  bool

	// inUpdate is the re-entrancy guard, true only for the duration of one
	// Update call.
	inUpdate bool
}

// New validates cfg and returns a Monitor in the Learning state.
func New(cfg Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{cfg: cfg, status: StatusLearning}, nil
}

// Update steps the monitor with one observation. It is total: every input,
// including NaN, Inf, and out-of-order timestamps, yields a defined
// (Result, error) pair, and the call always completes in constant work.
//
// Timestamps must be strictly increasing in the modular sense. ts is read
// from the channel's wrapping unsigned clock; the caller picks the tick
// unit (driftguard uses milliseconds) consistently with Config.MaxGap.
func (m *Monitor) Update(value float64, ts uint64) (Result, error) {
	if m == nil {
		return Result{}, ErrNilMonitor
	}

	// Re-entrancy guard. Checked before anything else and without touching
	// other state: the interrupted outer call still owns the state vector.
	if m.inUpdate {
		m.reentryFault = true
		m.status = StatusFaulted
		return Result{Status: StatusFaulted}, fmt.Errorf("%w: re-entrant update", ErrFault)
	}
	m.inUpdate = true
	defer func() { m.inUpdate = false }()

	if m.faulted() {
		return Result{Status: StatusFaulted}, fmt.Errorf("%w: sticky fault present, reset required", ErrFault)
	}

	if !isFinite(value) {
		m.numericFault = true
		m.status = StatusFaulted
		return Result{Status: StatusFaulted}, fmt.Errorf("%w: value %v", ErrDomain, value)
	}

	// First observation: no derivative exists from a single point. Store it
	// and stay in Learning; this is a success, not an error.
	if !m.primed {
		m.bootstrap(value, ts)
		return Result{Status: m.status}, nil
	}

	// Temporal gate.
	elapsed := ts - m.prevTS // modular on purpose: the clock wraps
	if elapsed == 0 || elapsed >= halfRange {
		return Result{Status: m.status},
			fmt.Errorf("%w: timestamp %d not after %d", ErrTemporal, ts, m.prevTS)
	}
	if elapsed > m.cfg.MaxGap {
		if m.cfg.GapPolicy == GapReject {
			return Result{Status: m.status},
				fmt.Errorf("%w: gap %d exceeds max %d", ErrTemporal, elapsed, m.cfg.MaxGap)
		}
		// GapReset: the smoothed slope across an excessive gap is stale.
		// Re-enter the Learning lifecycle from this observation.
		m.clearFilter()
		m.bootstrap(value, ts)
		return Result{Status: m.status}, nil
	}

	// Damped derivative filter: EMA over the rate of change.
	raw := (value - m.prevValue) / float64(elapsed)
	if !isFinite(raw) {
		return Result{Status: StatusFaulted}, m.overflow("raw slope")
	}
	smoothed := m.cfg.Alpha*raw + (1-m.cfg.Alpha)*m.slope
	if !isFinite(smoothed) {
		return Result{Status: StatusFaulted}, m.overflow("smoothed slope")
	}

	m.slope = smoothed
	m.prevValue = value
	m.prevTS = ts
	m.n++

	ttf, hasTTF := m.project(value)
	m.status = m.classify()

	return Result{
		Slope:    smoothed,
		RawSlope: raw,
		Elapsed:  elapsed,
		TTF:      ttf,
		HasTTF:   hasTTF,
		Status:   m.status,
		Drifting: m.status == StatusDriftingUp || m.status == StatusDriftingDown,
	}, nil
}

// Reset unconditionally returns the monitor to the initial Learning
// lifecycle: zero slope, zero counter, no previous observation, all fault
// flags cleared. Idempotent.
func (m *Monitor) Reset() {
	if m == nil {
		return
	}
	m.clearFilter()
	m.numericFault = false
	m.overflowFault = false
	m.reentryFault = false
	m.inUpdate = false
}

// Status returns the current classification. Read-only.
func (m *Monitor) Status() Status {
	if m == nil {
		return StatusFaulted
	}
	return m.status
}

// Slope returns the current smoothed slope estimate. Read-only.
func (m *Monitor) Slope() float64 {
	if m == nil {
		return 0
	}
	return m.slope
}

// TTF returns the current failure-time projection from the stored slope and
// previous value, and whether it is valid. Read-only; recomputed on demand,
// never persisted.
func (m *Monitor) TTF() (float64, bool) {
	if m == nil || !m.primed || m.faulted() {
		return 0, false
	}
	return m.project(m.prevValue)
}

// Count returns the observation counter. Read-only.
func (m *Monitor) Count() uint32 {
	if m == nil {
		return 0
	}
	return m.n
}

// Faulted reports whether any sticky fault flag is set. Read-only.
func (m *Monitor) Faulted() bool {
	if m == nil {
		return true
	}
	return m.faulted()
}

// --- internals --------------------------------------------------------------

func (m *Monitor) faulted() bool {
	return m.numericFault || m.overflowFault || m.reentryFault
}

// bootstrap stores the first observation of a (re-)started filter lifecycle.
func (m *Monitor) bootstrap(value float64, ts uint64) {
	m.prevValue = value
	m.prevTS = ts
	m.n = 1
	m.primed = true
	m.status = StatusLearning
}

// clearFilter zeroes the filter state without touching fault flags.
func (m *Monitor) clearFilter() {
	m.slope = 0
	m.prevValue = 0
	m.prevTS = 0
	m.n = 0
	m.primed = false
	m.status = StatusLearning
}

// overflow escalates a non-finite intermediate result to a sticky fault.
func (m *Monitor) overflow(what string) error {
	m.overflowFault = true
	m.status = StatusFaulted
	return fmt.Errorf("%w: %s is not finite", ErrOverflow, what)
}

// project extrapolates the smoothed slope to the limit it points at.
// Returns (0, false) when the slope is too small to be meaningful, points
// away from both limits, or the projection is not finite and positive.
func (m *Monitor) project(value float64) (float64, bool) {
	s := m.slope
	if math.Abs(s) < m.cfg.MinProjectionSlope {
		return 0, false
	}
	var distance float64
	if s > 0 {
		distance = m.cfg.UpperLimit - value
	} else {
		distance = m.cfg.LowerLimit - value
	}
	ttf := distance / s
	if !isFinite(ttf) || ttf <= 0 {
		return 0, false
	}
	return ttf, true
}

// classify maps (count, smoothed slope) to a Status. Faults never reach
// here: the fault paths in Update return before classification.
func (m *Monitor) classify() Status {
	if m.n < m.cfg.MinObservations {
		return StatusLearning
	}
	switch {
	case m.slope > m.cfg.MaxSafeSlope:
		return StatusDriftingUp
	case m.slope < -m.cfg.MaxSafeSlope:
		return StatusDriftingDown
	default:
		return StatusStable
	}
}

// isFinite reports whether f is neither NaN nor infinite.
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
