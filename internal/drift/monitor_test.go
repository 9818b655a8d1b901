package drift

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// mustNew builds a monitor or fails the test.
func mustNew(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// feed runs a fixed-interval ramp through the monitor and returns the last
// result. Fails the test on any step error.
func feed(t *testing.T, m *Monitor, start, step float64, ts, interval uint64, n int) Result {
	t.Helper()
	var r Result
	value := start
	for i := 0; i < n; i++ {
		var err error
		r, err = m.Update(value, ts)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		value += step
		ts += interval
	}
	return r
}

func TestUpdate_NilMonitor(t *testing.T) {
	var m *Monitor
	if _, err := m.Update(1, 1); !errors.Is(err, ErrNilMonitor) {
		t.Fatalf("got %v, want ErrNilMonitor", err)
	}
	m.Reset() // must not panic
}

func TestBootstrap_SingleObservation(t *testing.T) {
	m := mustNew(t, DefaultConfig())

	r, err := m.Update(50, 1000)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if r.Status != StatusLearning {
		t.Errorf("status = %v, want learning", r.Status)
	}
	if r.HasTTF {
		t.Error("bootstrap observation must not produce a TTF projection")
	}
	if got := m.Count(); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
	if _, ok := m.TTF(); ok {
		t.Error("TTF accessor should be invalid after a single observation")
	}
}

func TestStableSignal_SettlesToStable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinObservations = 5
	m := mustNew(t, cfg)

	r := feed(t, m, 50, 0, 1000, 100, 10)

	if r.Status != StatusStable {
		t.Errorf("status = %v, want stable", r.Status)
	}
	if !almostEqual(m.Slope(), 0, 1e-12) {
		t.Errorf("slope = %v, want ~0", m.Slope())
	}
	if r.Drifting {
		t.Error("stable signal must not report drifting")
	}
}

// A +10-per-100-ticks ramp has raw slope 0.1. With alpha=0.5 the smoothed
// slope converges to 0.1(1 - 0.5^k): well past the 0.05 threshold.
func TestRamp_TriggersDriftingUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alpha = 0.5
	cfg.MaxSafeSlope = 0.05
	cfg.MinObservations = 3
	cfg.UpperLimit = 1e9 // keep the projection path out of the way
	m := mustNew(t, cfg)

	r := feed(t, m, 0, 10, 1000, 100, 10)

	if r.Status != StatusDriftingUp {
		t.Errorf("status = %v, want drifting_up", r.Status)
	}
	if !r.Drifting {
		t.Error("Drifting flag should be set")
	}
	if !almostEqual(r.Slope, 0.1, 0.005) {
		t.Errorf("slope = %v, want ~0.1", r.Slope)
	}
}

func TestRampDown_TriggersDriftingDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alpha = 0.5
	cfg.MaxSafeSlope = 0.05
	cfg.MinObservations = 3
	cfg.LowerLimit = -1e9
	cfg.UpperLimit = 1e9
	m := mustNew(t, cfg)

	r := feed(t, m, 1000, -10, 1000, 100, 10)

	if r.Status != StatusDriftingDown {
		t.Errorf("status = %v, want drifting_down", r.Status)
	}
	if r.Slope >= 0 {
		t.Errorf("slope = %v, want negative", r.Slope)
	}
}

// Jitter of ±1 unit over 100-tick intervals bounds every raw slope at 0.02,
// so the smoothed slope can never cross the 0.05 threshold.
func TestNoiseImmunity_JitterStaysStable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alpha = 0.1
	cfg.MaxSafeSlope = 0.05
	cfg.MinObservations = 5
	m := mustNew(t, cfg)

	rng := rand.New(rand.NewSource(12345))
	ts := uint64(1000)
	for i := 0; i < 100; i++ {
		value := 50.0 + (rng.Float64()*2 - 1)
		if _, err := m.Update(value, ts); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		ts += 100
	}

	if st := m.Status(); st != StatusStable && st != StatusLearning {
		t.Errorf("status = %v, want stable or learning", st)
	}
	if math.Abs(m.Slope()) >= cfg.MaxSafeSlope {
		t.Errorf("smoothed slope %v should stay below threshold %v", m.Slope(), cfg.MaxSafeSlope)
	}
}

// A single outlier moves the smoothed slope by at most alpha times the
// outlier's raw slope.
func TestSpikeResistance_BoundedByAlpha(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alpha = 0.1
	cfg.MaxSafeSlope = 10 // keep classification out of the way
	cfg.UpperLimit = 1e9
	m := mustNew(t, cfg)

	ts := uint64(1000)
	for i := 0; i < 20; i++ {
		if _, err := m.Update(50, ts); err != nil {
			t.Fatalf("baseline step %d: %v", i, err)
		}
		ts += 100
	}
	before := m.Slope()

	// +1000 in 100 ticks: raw slope 10.
	if _, err := m.Update(1050, ts); err != nil {
		t.Fatalf("spike: %v", err)
	}

	change := math.Abs(m.Slope() - before)
	maxChange := cfg.Alpha * 10 * 1.01
	if change > maxChange {
		t.Errorf("slope change %v exceeds alpha bound %v", change, maxChange)
	}
}

func TestCounter_IncrementsByOnePerStep(t *testing.T) {
	m := mustNew(t, DefaultConfig())

	ts := uint64(1000)
	for i := 1; i <= 50; i++ {
		if _, err := m.Update(50, ts); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := m.Count(); got != uint32(i) {
			t.Fatalf("after step %d count = %d", i, got)
		}
		ts += 100
	}
}

func TestTemporalGate_RejectsNonMonotonic(t *testing.T) {
	m := mustNew(t, DefaultConfig())

	if _, err := m.Update(50, 1000); err != nil {
		t.Fatalf("first update: %v", err)
	}

	tests := []struct {
		name string
		ts   uint64
	}{
		{"equal timestamp", 1000},
		{"earlier timestamp", 900},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Update(51, tc.ts)
			if !errors.Is(err, ErrTemporal) {
				t.Fatalf("got %v, want ErrTemporal", err)
			}
			if m.Count() != 1 {
				t.Errorf("count = %d, temporal rejection must not mutate state", m.Count())
			}
			if m.Faulted() {
				t.Error("temporal rejection must not fault the monitor")
			}
		})
	}
}

func TestTemporalGate_WrappingClock(t *testing.T) {
	m := mustNew(t, DefaultConfig())

	// First observation just below the top of the clock domain; the next
	// timestamp has wrapped past zero. Modular delta is 100.
	start := ^uint64(0) - 50
	if _, err := m.Update(50, start); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := m.Update(51, start+100); err != nil {
		t.Fatalf("wrapped step should be accepted: %v", err)
	}
	if m.Count() != 2 {
		t.Errorf("count = %d, want 2", m.Count())
	}

	// Stepping "backwards" across the wrap is a huge modular delta that
	// lands in the upper half-range: rejected.
	if _, err := m.Update(52, start); !errors.Is(err, ErrTemporal) {
		t.Fatalf("backwards-across-wrap should be ErrTemporal, got %v", err)
	}
}

func TestGapPolicy_ResetReboots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxGap = 1000
	cfg.GapPolicy = GapReset
	cfg.MinObservations = 3
	m := mustNew(t, cfg)

	feed(t, m, 50, 0, 1000, 100, 10)
	if m.Count() != 10 {
		t.Fatalf("count = %d, want 10", m.Count())
	}

	// 2000-tick gap exceeds MaxGap: auto-reset, not an error.
	r, err := m.Update(60, 1000+9*100+2000)
	if err != nil {
		t.Fatalf("gap step: %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1 after auto-reset", m.Count())
	}
	if r.Status != StatusLearning {
		t.Errorf("status = %v, want learning after auto-reset", r.Status)
	}
	if m.Slope() != 0 {
		t.Errorf("slope = %v, want 0 after auto-reset", m.Slope())
	}
}

func TestGapPolicy_RejectRefuses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxGap = 1000
	cfg.GapPolicy = GapReject
	m := mustNew(t, cfg)

	feed(t, m, 50, 0, 1000, 100, 5)

	_, err := m.Update(60, 1000+4*100+5000)
	if !errors.Is(err, ErrTemporal) {
		t.Fatalf("got %v, want ErrTemporal", err)
	}
	if m.Count() != 5 {
		t.Errorf("count = %d, rejection must not mutate state", m.Count())
	}
}

func TestFault_NonFiniteInputIsSticky(t *testing.T) {
	specials := []struct {
		name  string
		value float64
	}{
		{"NaN", math.NaN()},
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
	}

	for _, tc := range specials {
		t.Run(tc.name, func(t *testing.T) {
			m := mustNew(t, DefaultConfig())
			feed(t, m, 50, 0, 1000, 100, 5)

			_, err := m.Update(tc.value, 1000+5*100)
			if !errors.Is(err, ErrDomain) {
				t.Fatalf("got %v, want ErrDomain", err)
			}
			if !m.Faulted() || m.Status() != StatusFaulted {
				t.Fatal("non-finite input must fault the monitor")
			}
			if m.Count() != 5 {
				t.Errorf("count = %d, faulted input must not increment", m.Count())
			}

			// Fault is sticky: valid input keeps failing until Reset.
			for i := 0; i < 3; i++ {
				r, err := m.Update(50, 2000+uint64(i)*100)
				if !errors.Is(err, ErrFault) {
					t.Fatalf("post-fault step %d: got %v, want ErrFault", i, err)
				}
				if r.Status != StatusFaulted {
					t.Errorf("post-fault status = %v", r.Status)
				}
			}
			if m.Count() != 5 {
				t.Errorf("count = %d, post-fault input must not increment", m.Count())
			}
		})
	}
}

func TestReset_ClearsFaultsAndIsIdempotent(t *testing.T) {
	m := mustNew(t, DefaultConfig())
	feed(t, m, 50, 0, 1000, 100, 3)

	if _, err := m.Update(math.NaN(), 5000); !errors.Is(err, ErrDomain) {
		t.Fatalf("fault injection failed: %v", err)
	}

	for i := 0; i < 2; i++ { // twice: reset must be idempotent
		m.Reset()
		if m.Status() != StatusLearning {
			t.Errorf("reset %d: status = %v, want learning", i, m.Status())
		}
		if m.Count() != 0 {
			t.Errorf("reset %d: count = %d, want 0", i, m.Count())
		}
		if m.Faulted() {
			t.Errorf("reset %d: fault flags should be cleared", i)
		}
		if m.Slope() != 0 {
			t.Errorf("reset %d: slope = %v, want 0", i, m.Slope())
		}
	}

	// The monitor is fully usable again after reset.
	if _, err := m.Update(50, 9000); err != nil {
		t.Fatalf("update after reset: %v", err)
	}
}

func TestReentrancyGuard_FaultsWithoutTouchingState(t *testing.T) {
	m := mustNew(t, DefaultConfig())
	feed(t, m, 50, 0, 1000, 100, 5)

	// Simulate an interrupted in-progress step.
	m.inUpdate = true

	r, err := m.Update(51, 9000)
	if !errors.Is(err, ErrFault) {
		t.Fatalf("got %v, want ErrFault", err)
	}
	if r.Status != StatusFaulted || m.Status() != StatusFaulted {
		t.Error("re-entrant update must force faulted status")
	}
	if !m.reentryFault {
		t.Error("re-entry fault flag should be sticky")
	}
	if m.Count() != 5 {
		t.Errorf("count = %d, re-entrant update must not mutate the counter", m.Count())
	}

	m.Reset()
	if m.Faulted() || m.inUpdate {
		t.Error("reset must clear the re-entry fault and guard flag")
	}
}

// Steady +5-per-100-ticks ramp from 40 toward the 100 ceiling. With
// alpha=0.5 the smoothed slope converges to 0.05 and the projection tracks
// (upper - value) / slope.
func TestTTF_SteadyRampProjection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alpha = 0.5
	cfg.MaxSafeSlope = 0.05
	cfg.MinObservations = 3
	cfg.UpperLimit = 100
	cfg.LowerLimit = 0
	cfg.MinProjectionSlope = 1e-6
	m := mustNew(t, cfg)

	r := feed(t, m, 40, 5, 1000, 100, 10)

	if !r.HasTTF {
		t.Fatal("steady ramp toward the ceiling must produce a projection")
	}
	if !almostEqual(r.Slope, 0.05, 0.001) {
		t.Errorf("slope = %v, want ~0.05", r.Slope)
	}
	// Last observed value is 85: distance 15 at slope ~0.05 is ~300 ticks.
	want := (cfg.UpperLimit - 85.0) / r.Slope
	if !almostEqual(r.TTF, want, 1e-9) {
		t.Errorf("TTF = %v, want %v", r.TTF, want)
	}
	if !almostEqual(r.TTF, 300, 15) {
		t.Errorf("TTF = %v, want roughly 300", r.TTF)
	}

	// The read-only accessor agrees with the last result.
	ttf, ok := m.TTF()
	if !ok || !almostEqual(ttf, r.TTF, 1e-9) {
		t.Errorf("TTF accessor = (%v, %v), want (%v, true)", ttf, ok, r.TTF)
	}
}

func TestTTF_GatedBelowMinimumSlope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinProjectionSlope = 0.001
	m := mustNew(t, cfg)

	r := feed(t, m, 50, 0, 1000, 100, 10)

	if r.HasTTF {
		t.Error("near-zero slope must not produce a projection")
	}
	if _, ok := m.TTF(); ok {
		t.Error("TTF accessor should be invalid for near-zero slope")
	}
}

func TestTTF_SlopeAwayFromLimitIsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alpha = 0.5
	cfg.MinObservations = 3
	cfg.UpperLimit = 100
	cfg.LowerLimit = 0
	cfg.MaxGap = 10_000
	m := mustNew(t, cfg)

	// Value already above the ceiling and still rising: the distance to the
	// ceiling is negative, so no meaningful projection exists.
	r := feed(t, m, 150, 5, 1000, 100, 6)
	if r.HasTTF {
		t.Errorf("projection above the ceiling should be invalid, got %v", r.TTF)
	}
}

func TestStableAndDrifting_ReversibleTransitions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alpha = 0.5
	cfg.MaxSafeSlope = 0.05
	cfg.MinObservations = 3
	cfg.UpperLimit = 1e9
	m := mustNew(t, cfg)

	// Ramp up into drifting.
	r := feed(t, m, 0, 10, 1000, 100, 10)
	if r.Status != StatusDriftingUp {
		t.Fatalf("status = %v, want drifting_up", r.Status)
	}

	// Flatten out: the EMA decays and the state returns to stable.
	ts := uint64(1000 + 10*100)
	last := 90.0
	for i := 0; i < 20; i++ {
		var err error
		r, err = m.Update(last, ts)
		if err != nil {
			t.Fatalf("flat step %d: %v", i, err)
		}
		ts += 100
	}
	if r.Status != StatusStable {
		t.Errorf("status = %v, want stable after flattening", r.Status)
	}
}

// Random streams must never escape the closed status domain and must keep
// the fault-implies-faulted invariant.
func TestFuzz_RandomStreamInvariants(t *testing.T) {
	m := mustNew(t, DefaultConfig())

	rng := rand.New(rand.NewSource(99))
	ts := uint64(1000)
	for i := 0; i < 10_000; i++ {
		value := rng.Float64() * 100
		_, err := m.Update(value, ts)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		switch m.Status() {
		case StatusLearning, StatusStable, StatusDriftingUp, StatusDriftingDown, StatusFaulted:
		default:
			t.Fatalf("step %d: status %d outside closed domain", i, int(m.Status()))
		}
		if m.Faulted() && m.Status() != StatusFaulted {
			t.Fatalf("step %d: fault flag without faulted status", i)
		}
		ts += 100
	}
}

func TestStatusString_CoversDomain(t *testing.T) {
	want := map[Status]string{
		StatusLearning:     "learning",
		StatusStable:       "stable",
		StatusDriftingUp:   "drifting_up",
		StatusDriftingDown: "drifting_down",
		StatusFaulted:      "faulted",
	}
	for st, s := range want {
		if st.String() != s {
			t.Errorf("%d.String() = %q, want %q", int(st), st.String(), s)
		}
	}
}
