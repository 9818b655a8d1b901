package drift

import "fmt"

// Default tunables used by DefaultConfig. Timestamps and gaps are expressed
// in clock ticks; driftguard feeds the monitor milliseconds.
const (
	DefaultAlpha              = 0.2
	DefaultMaxSafeSlope       = 0.05
	DefaultUpperLimit         = 100.0
	DefaultLowerLimit         = 0.0
	DefaultMinObservations    = 5
	DefaultMaxGap             = 60_000 // one minute at millisecond ticks
	DefaultMinProjectionSlope = 1e-6
)

// GapPolicy selects what the temporal gate does when the elapsed time
// between two observations exceeds Config.MaxGap.
type GapPolicy int

const (
	// GapReset discards the filter state and re-bootstraps from the new
	// observation. The stale smoothed slope is not representative of
	// current dynamics and must not contaminate the estimate.
	GapReset GapPolicy = iota

	// GapReject refuses the observation with ErrTemporal and leaves all
	// state untouched.
	GapReject
)

// String implements fmt.Stringer for GapPolicy.
func (p GapPolicy) String() string {
	switch p {
	case GapReset:
		return "reset"
	case GapReject:
		return "reject"
	default:
		return fmt.Sprintf("GapPolicy(%d)", int(p))
	}
}

// Config holds the monitor tunables. A Config is immutable once a Monitor
// has been constructed from it and may be shared across monitors.
type Config struct {
	// Alpha is the EMA smoothing factor in (0, 1]. Higher values track
	// faster; lower values reject more noise.
	Alpha float64

	// MaxSafeSlope is the slope magnitude above which the signal is
	// classified as drifting. Must be > 0.
	MaxSafeSlope float64

	// UpperLimit and LowerLimit are the physical ceiling and floor the
	// time-to-failure projection extrapolates toward. Upper must exceed
	// lower.
	UpperLimit float64
	LowerLimit float64

	// MinObservations is the number of observations required before the
	// slope estimate is trusted. Must be at least 2: no derivative exists
	// before the second point.
	MinObservations uint32

	// MaxGap is the maximum allowed elapsed time between observations,
	// in ticks. Must be > 0.
	MaxGap uint64

	// MinProjectionSlope is the smallest slope magnitude for which a
	// time-to-failure projection is meaningful. Must be > 0. Projecting
	// from a near-zero slope yields wildly unstable estimates.
	MinProjectionSlope float64

	// GapPolicy selects reset-on-gap or reject-on-gap behavior.
	GapPolicy GapPolicy
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:              DefaultAlpha,
		MaxSafeSlope:       DefaultMaxSafeSlope,
		UpperLimit:         DefaultUpperLimit,
		LowerLimit:         DefaultLowerLimit,
		MinObservations:    DefaultMinObservations,
		MaxGap:             DefaultMaxGap,
		MinProjectionSlope: DefaultMinProjectionSlope,
		GapPolicy:          GapReset,
	}
}

// Validate checks every constraint and returns an error wrapping ErrConfig
// naming the first violated field, or nil if the configuration is usable.
func (c Config) Validate() error {
	if !(c.Alpha > 0 && c.Alpha <= 1) {
		return fmt.Errorf("%w: alpha %v outside (0, 1]", ErrConfig, c.Alpha)
	}
	if !(c.MaxSafeSlope > 0) {
		return fmt.Errorf("%w: max_safe_slope %v must be positive", ErrConfig, c.MaxSafeSlope)
	}
	if !(c.UpperLimit > c.LowerLimit) {
		return fmt.Errorf("%w: upper_limit %v must exceed lower_limit %v",
			ErrConfig, c.UpperLimit, c.LowerLimit)
	}
	if c.MinObservations < 2 {
		return fmt.Errorf("%w: min_observations %d must be at least 2", ErrConfig, c.MinObservations)
	}
	if c.MaxGap == 0 {
		return fmt.Errorf("%w: max_gap must be positive", ErrConfig)
	}
	if !(c.MinProjectionSlope > 0) {
		return fmt.Errorf("%w: min_projection_slope %v must be positive",
			ErrConfig, c.MinProjectionSlope)
	}
	switch c.GapPolicy {
	case GapReset, GapReject:
	default:
		return fmt.Errorf("%w: unknown gap policy %d", ErrConfig, int(c.GapPolicy))
	}
	return nil
}
