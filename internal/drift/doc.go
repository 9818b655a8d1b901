// Package drift implements the rate-of-change monitor at the heart of
// driftguard: a bounded-memory detector that distinguishes "value is within
// limits but trending toward failure" from genuinely stable or genuinely
// faulted signals.
//
// The monitor is a single state machine stepped once per observation:
//
//	guard → domain check → temporal gate → EMA-of-slope filter →
//	time-to-failure projector → trend classifier
//
// The smoothed slope is an exponential moving average of the instantaneous
// derivative (not of the value itself), so one previous state plus the
// current observation is a sufficient statistic — O(1) time and memory, no
// history buffer. A single outlier can move the smoothed slope by at most
// Alpha times the outlier's raw slope.
//
// Monitor.Update accepts timestamps from an unsigned, wrapping clock domain.
// Elapsed time is modular, with a half-range validity test: a delta that
// lands in the upper half of the uint64 range is rejected as non-monotonic.
//
// Numeric corruption (NaN/Inf input, overflow) and re-entrant use set sticky
// fault flags and force StatusFaulted; only an explicit Reset clears them.
// A faulted monitor keeps accepting Update calls and keeps reporting
// ErrFault — a corrupted estimate is never silently trusted again.
//
// A Monitor has exactly one logical owner. The in-update guard detects
// re-entrant misuse and fails safe; it is not a mutual-exclusion primitive.
// Wrap access in a mutex (as internal/pipeline does) for concurrent callers.
package drift
