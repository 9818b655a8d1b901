// Package liveness classifies whether a telemetry source still exists,
// purely from heartbeat timestamps. It is the companion of internal/drift:
// drift judges the shape of the data, liveness judges its presence.
//
// Timestamps come from the same unsigned, wrapping clock domain the drift
// monitor uses. Ages are computed by modular subtraction with a half-range
// validity test, so the classifier keeps working across a clock wrap.
//
// Transport failures without a timestamp (a scrape that never reached the
// source) are recorded with Miss; enough consecutive misses classify the
// source as dead even while its last heartbeat is still recent.
package liveness
