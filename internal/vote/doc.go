// Package vote fuses three independently classified telemetry channels into
// one trusted value by mid-value selection: with three usable inputs the
// median wins, so a single lying sensor — even a subtle one that drifts
// slowly away from the truth — can never move the output outside the range
// of the two honest channels.
//
// Channel health comes from upstream classifiers (internal/drift and
// internal/liveness): Faulty channels are excluded from the vote, Degraded
// channels still vote but at half confidence weight. Two usable channels
// average; fewer than two is no quorum, and the voter falls back to the
// last known good value flagged invalid.
//
// Voting is deterministic and the output is always bounded by the inputs
// that were used.
package vote
