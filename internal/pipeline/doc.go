// Package pipeline owns the per-channel monitor state: one drift.Monitor
// and one liveness.Monitor per telemetry channel, plus one vote.Voter per
// redundancy group. It converts wall-clock observations into monitor ticks
// (milliseconds), turns monitor results and errors into types.Snapshot
// values, and maps channel classifications into voter health for group
// consensus.
//
// Engine.Observe accepts an explicit time so callers (and tests) control
// the clock without sleeping. All exported methods are safe for concurrent
// use; the mutex provides the single-owner discipline the underlying
// monitors require.
package pipeline
