package vote

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func mustNew(t *testing.T, cfg Config) *Voter {
	t.Helper()
	v, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func healthy(vals ...float64) [Channels]Input {
	var in [Channels]Input
	for i, v := range vals {
		in[i] = Input{Value: v, Health: Healthy}
	}
	return in
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", DefaultConfig(), true},
		{"zero deviation", Config{MaxDeviation: 0}, false},
		{"negative deviation", Config{MaxDeviation: -1}, false},
		{"tie breaker too high", Config{MaxDeviation: 1, TieBreaker: 3}, false},
		{"tie breaker negative", Config{MaxDeviation: 1, TieBreaker: -1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrConfig) {
				t.Errorf("got %v, want ErrConfig", err)
			}
		})
	}
}

func TestVote_AllAgree(t *testing.T) {
	v := mustNew(t, DefaultConfig())

	r, err := v.Update(healthy(100.0, 100.5, 100.2))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if r.Value != 100.2 {
		t.Errorf("value = %v, want median 100.2", r.Value)
	}
	if r.State != StateAgree || !r.Agree {
		t.Errorf("state = %v agree=%v, want agree", r.State, r.Agree)
	}
	if r.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", r.Confidence)
	}
	if r.Active != 3 || !r.Valid {
		t.Errorf("active=%d valid=%v", r.Active, r.Valid)
	}
}

// A single lying channel, however extreme, cannot corrupt the median.
func TestVote_SingleFaultTolerance(t *testing.T) {
	tests := []struct {
		name   string
		inputs [Channels]Input
		want   float64
	}{
		{"positive outlier", healthy(100.0, 100.2, 99999.0), 100.2},
		{"negative outlier", healthy(-99999.0, 50.0, 50.5), 50.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := mustNew(t, DefaultConfig())
			r, err := v.Update(tc.inputs)
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if r.Value != tc.want {
				t.Errorf("value = %v, want %v", r.Value, tc.want)
			}
		})
	}
}

// The consensus value is always within the range of the used inputs.
func TestVote_BoundedOutput(t *testing.T) {
	v := mustNew(t, DefaultConfig())
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		a, b, c := rng.Float64()*100, rng.Float64()*100, rng.Float64()*100
		r, err := v.Update(healthy(a, b, c))
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		lo := math.Min(a, math.Min(b, c))
		hi := math.Max(a, math.Max(b, c))
		if r.Value < lo || r.Value > hi {
			t.Fatalf("trial %d: value %v outside [%v, %v]", trial, r.Value, lo, hi)
		}
	}
}

func TestVote_Deterministic(t *testing.T) {
	in := healthy(10, 20, 15)
	var first float64
	for i := 0; i < 10; i++ {
		v := mustNew(t, DefaultConfig())
		r, err := v.Update(in)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if i == 0 {
			first = r.Value
		} else if r.Value != first {
			t.Fatalf("trial %d: value %v differs from %v", i, r.Value, first)
		}
	}
	if first != 15 {
		t.Errorf("median of (10,20,15) = %v, want 15", first)
	}
}

func TestVote_FaultyChannelExcluded(t *testing.T) {
	v := mustNew(t, DefaultConfig())

	in := healthy(50.0, 50.3, 0)
	in[2] = Input{Value: 999.0, Health: Faulty}

	r, err := v.Update(in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if r.State != StateDegraded {
		t.Errorf("state = %v, want degraded", r.State)
	}
	if r.Active != 2 {
		t.Errorf("active = %d, want 2", r.Active)
	}
	if r.Used[2] {
		t.Error("faulty channel must not be used")
	}
	if want := (50.0 + 50.3) / 2; r.Value != want {
		t.Errorf("value = %v, want pair average %v", r.Value, want)
	}
}

func TestVote_NonFiniteValueExcluded(t *testing.T) {
	v := mustNew(t, DefaultConfig())

	in := healthy(50.0, 50.4, 0)
	in[2] = Input{Value: math.NaN(), Health: Healthy}

	r, err := v.Update(in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if r.Used[2] || r.Active != 2 {
		t.Errorf("NaN channel must be excluded, used=%v active=%d", r.Used, r.Active)
	}
}

func TestVote_NoQuorumFallsBackToLastKnown(t *testing.T) {
	v := mustNew(t, DefaultConfig())

	if _, err := v.Update(healthy(75.0, 75.5, 75.2)); err != nil {
		t.Fatalf("good vote: %v", err)
	}

	in := [Channels]Input{
		{Value: 80.0, Health: Healthy},
		{Value: 0, Health: Faulty},
		{Value: 0, Health: Faulty},
	}
	r, err := v.Update(in)
	if !errors.Is(err, ErrNoQuorum) {
		t.Fatalf("got %v, want ErrNoQuorum", err)
	}
	if r.State != StateNoQuorum || r.Valid {
		t.Errorf("state=%v valid=%v, want no_quorum invalid", r.State, r.Valid)
	}
	if r.Value != 75.2 {
		t.Errorf("value = %v, want last known 75.2", r.Value)
	}
	if r.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", r.Confidence)
	}

	// A failed vote must not overwrite the last known good value.
	if last, ok := v.LastKnown(); !ok || last != 75.2 {
		t.Errorf("LastKnown = (%v, %v), want (75.2, true)", last, ok)
	}
}

func TestVote_DisagreementFlagged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDeviation = 1.0
	v := mustNew(t, cfg)

	r, err := v.Update(healthy(100.0, 102.0, 104.0))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if r.Value != 102.0 {
		t.Errorf("value = %v, want median 102", r.Value)
	}
	if r.State != StateDisagree || r.Agree {
		t.Errorf("state = %v agree=%v, want disagree", r.State, r.Agree)
	}
	if r.Spread != 4.0 {
		t.Errorf("spread = %v, want 4", r.Spread)
	}
}

func TestVote_DegradedChannelsLowerConfidence(t *testing.T) {
	conf := func(t *testing.T, in [Channels]Input) float64 {
		t.Helper()
		v := mustNew(t, DefaultConfig())
		r, err := v.Update(in)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		return r.Confidence
	}

	all := healthy(50.0, 50.2, 50.1)

	one := all
	one[1].Health = Degraded

	two := all
	two[0].Health = Degraded
	two[1].Health = Degraded

	cAll, cOne, cTwo := conf(t, all), conf(t, one), conf(t, two)
	if !(cAll > cOne && cOne > cTwo) {
		t.Errorf("confidence should fall with degradation: %v, %v, %v", cAll, cOne, cTwo)
	}
}

func TestVote_WeightedAverage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseWeightedAverage = true
	v := mustNew(t, cfg)

	in := healthy(100.0, 100.0, 0)
	in[2] = Input{Value: 200.0, Health: Degraded}

	r, err := v.Update(in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	// (100 + 100 + 0.5*200) / 2.5 = 120
	if math.Abs(r.Value-120.0) > 1e-9 {
		t.Errorf("value = %v, want 120", r.Value)
	}
}

func TestVote_TieBreakerOnSplitPair(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDeviation = 1.0
	cfg.TieBreaker = 0
	v := mustNew(t, cfg)

	in := [Channels]Input{
		{Value: 100.0, Health: Healthy},
		{Value: 150.0, Health: Healthy}, // disagrees with channel 0
		{Value: 0, Health: Faulty},
	}
	r, err := v.Update(in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if r.Value != 100.0 {
		t.Errorf("value = %v, want tie-breaker channel's 100", r.Value)
	}
	if r.State != StateDegraded {
		t.Errorf("state = %v, want degraded", r.State)
	}
}

func TestReset_ForgetsLastKnown(t *testing.T) {
	v := mustNew(t, DefaultConfig())
	if _, err := v.Update(healthy(1, 2, 3)); err != nil {
		t.Fatalf("Update: %v", err)
	}

	for i := 0; i < 2; i++ {
		v.Reset()
		if _, ok := v.LastKnown(); ok {
			t.Errorf("reset %d: last known should be cleared", i)
		}
	}
}
