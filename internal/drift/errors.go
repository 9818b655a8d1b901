package drift

import "errors"

// Sentinel errors returned by New and Monitor.Update. Callers should match
// with errors.Is; returned errors may wrap these with detail.
var (
	// ErrNilMonitor is returned when Update or Reset is called on a nil
	// *Monitor.
	ErrNilMonitor = errors.New("drift: nil monitor")

	// ErrConfig is returned by New (via Config.Validate) when a tunable is
	// out of range. Construction never partially applies a configuration.
	ErrConfig = errors.New("drift: invalid config")

	// ErrDomain is returned when the observed value is NaN or infinite.
	// A domain error sets the sticky numeric fault.
	ErrDomain = errors.New("drift: non-finite observation")

	// ErrTemporal is returned when a timestamp is not strictly after the
	// previous one, or when the gap exceeds MaxGap under GapReject.
	// Temporal errors reject the observation without mutating state.
	ErrTemporal = errors.New("drift: temporal ordering violation")

	// ErrOverflow is returned when an intermediate computation produces a
	// non-finite result. Overflow sets the sticky overflow fault.
	ErrOverflow = errors.New("drift: arithmetic overflow")

	// ErrFault is returned when the monitor is already faulted, or when a
	// re-entrant Update is detected.
	ErrFault = errors.New("drift: monitor faulted")
)
