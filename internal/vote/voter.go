package vote

import (
	"errors"
	"fmt"
	"math"
)

// Channels is the fixed redundancy width: triple modular redundancy.
const Channels = 3

// MinQuorum is the number of usable channels required for a valid vote.
const MinQuorum = 2

// Confidence weights per health class; the vote's confidence is the mean
// weight of the channels that were used.
const (
	weightHealthy  = 1.0
	weightDegraded = 0.5
)

// Health is the upstream classification of one input channel.
type Health int

const (
	// Healthy channels vote at full weight.
	Healthy Health = iota

	// Degraded channels vote at reduced weight (drifting but not faulted).
	Degraded

	// Faulty channels are excluded from the vote entirely.
	Faulty
)

// String implements fmt.Stringer for Health.
func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Faulty:
		return "faulty"
	default:
		return fmt.Sprintf("Health(%d)", int(h))
	}
}

// State is the outcome classification of one vote.
type State int

const (
	// StateAgree: all three channels voted and the spread is within
	// MaxDeviation.
	StateAgree State = iota

	// StateDisagree: the vote succeeded but the spread of used values
	// exceeds MaxDeviation. The output is still trustworthy (median), but
	// the disagreement deserves attention.
	StateDisagree

	// StateDegraded: at least one channel was excluded; the vote ran on a
	// reduced set.
	StateDegraded

	// StateNoQuorum: fewer than MinQuorum usable channels. The result
	// carries the last known good value and is flagged invalid.
	StateNoQuorum
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateAgree:
		return "agree"
	case StateDisagree:
		return "disagree"
	case StateDegraded:
		return "degraded"
	case StateNoQuorum:
		return "no_quorum"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sentinel errors returned by New and Voter.Update.
var (
	ErrConfig   = errors.New("vote: invalid config")
	ErrNoQuorum = errors.New("vote: no quorum")
)

// Config holds the voter tunables.
type Config struct {
	// MaxDeviation is the spread (max - min of used values) above which
	// the channels are flagged as disagreeing. Must be > 0.
	MaxDeviation float64

	// TieBreaker is the channel index preferred when a two-way vote needs
	// an arbitrary pick. Must be in [0, Channels).
	TieBreaker int

	// UseWeightedAverage selects a health-weighted average instead of
	// mid-value selection. The average is pulled by every used channel and
	// is therefore less robust against a subtle liar; it exists for
	// deployments that prefer smoothness over outlier rejection.
	UseWeightedAverage bool
}

// DefaultConfig returns the standard mid-value-selection configuration.
func DefaultConfig() Config {
	return Config{MaxDeviation: 5.0}
}

// Validate checks the config constraints.
func (c Config) Validate() error {
	if !(c.MaxDeviation > 0) {
		return fmt.Errorf("%w: max_deviation %v must be positive", ErrConfig, c.MaxDeviation)
	}
	if c.TieBreaker < 0 || c.TieBreaker >= Channels {
		return fmt.Errorf("%w: tie_breaker %d outside [0, %d)", ErrConfig, c.TieBreaker, Channels)
	}
	return nil
}

// Input is one channel's contribution to a vote.
type Input struct {
	Value  float64
	Health Health
}

// Result is the outcome of one vote.
type Result struct {
	// Value is the consensus value. On no-quorum it is the last known good
	// value (zero if there never was one) and Valid is false.
	Value float64

	// Confidence in [0, 1]: the mean health weight of the used channels,
	// scaled by how many of the three channels could vote.
	Confidence float64

	// Spread is max - min over the used values.
	Spread float64

	// State classifies the vote outcome.
	State State

	// Active is the number of channels that were used.
	Active int

	// Agree is true when every usable channel voted and the spread is
	// within MaxDeviation.
	Agree bool

	// Valid is false only on no-quorum.
	Valid bool

	// Used marks which channels contributed to the vote.
	Used [Channels]bool
}

// Voter fuses triple-redundant channel inputs. It keeps only the last known
// good value between votes; one logical owner at a time.
type Voter struct {
	cfg Config

	lastValue float64
	hasLast   bool
}

// New validates cfg and returns a ready Voter.
func New(cfg Config) (*Voter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Voter{cfg: cfg}, nil
}

// Update runs one vote over the three channel inputs.
//
// A channel is usable when its health is not Faulty and its value is finite.
// Three usable channels vote by mid-value selection (or weighted average if
// configured); two average; fewer return ErrNoQuorum together with a Result
// carrying the last known good value, Valid=false.
func (v *Voter) Update(inputs [Channels]Input) (Result, error) {
	var r Result

	var used []float64
	var weightSum float64
	for i, in := range inputs {
		if in.Health == Faulty || !isFinite(in.Value) {
			continue
		}
		r.Used[i] = true
		used = append(used, in.Value)
		weightSum += healthWeight(in.Health)
	}
	r.Active = len(used)

	if r.Active < MinQuorum {
		r.State = StateNoQuorum
		r.Value = v.lastValue
		r.Confidence = 0
		r.Valid = false
		return r, fmt.Errorf("%w: %d of %d channels usable", ErrNoQuorum, r.Active, Channels)
	}

	r.Spread = spread(used)

	switch {
	case v.cfg.UseWeightedAverage:
		r.Value = weightedAverage(inputs, r.Used)
	case r.Active == Channels:
		r.Value = median3(used[0], used[1], used[2])
	default:
		// Two channels: no middle value exists. Average while they agree;
		// when the pair splits beyond MaxDeviation one of them is lying and
		// averaging would blend the lie in, so defer to the configured
		// tie-breaker channel if it is part of the pair.
		if r.Spread > v.cfg.MaxDeviation && r.Used[v.cfg.TieBreaker] {
			r.Value = inputs[v.cfg.TieBreaker].Value
		} else {
			r.Value = (used[0] + used[1]) / 2
		}
	}
	r.Agree = r.Active == Channels && r.Spread <= v.cfg.MaxDeviation
	r.Confidence = weightSum / Channels
	r.Valid = true

	switch {
	case r.Active < Channels:
		r.State = StateDegraded
	case r.Spread > v.cfg.MaxDeviation:
		r.State = StateDisagree
	default:
		r.State = StateAgree
	}

	v.lastValue = r.Value
	v.hasLast = true
	return r, nil
}

// LastKnown returns the most recent valid consensus value, if any.
func (v *Voter) LastKnown() (float64, bool) {
	return v.lastValue, v.hasLast
}

// Reset forgets the last known good value. Idempotent.
func (v *Voter) Reset() {
	v.lastValue = 0
	v.hasLast = false
}

// --- internals --------------------------------------------------------------

func healthWeight(h Health) float64 {
	if h == Degraded {
		return weightDegraded
	}
	return weightHealthy
}

// median3 returns the middle of three values without sorting allocations.
func median3(a, b, c float64) float64 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		b = a
	}
	return b
}

func spread(vals []float64) float64 {
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

// weightedAverage averages the used channels with health weights.
func weightedAverage(inputs [Channels]Input, used [Channels]bool) float64 {
	var sum, weights float64
	for i, in := range inputs {
		if !used[i] {
			continue
		}
		w := healthWeight(in.Health)
		sum += in.Value * w
		weights += w
	}
	return sum / weights
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
