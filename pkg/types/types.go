package types

import "time"

// Snapshot is the derived health state of one telemetry channel after one
// observation cycle. Producers must not modify a Snapshot after handing it
// to the store.
type Snapshot struct {
	// ChannelID identifies the monitored channel.
	ChannelID string `json:"channel_id"`

	// Timestamp is the wall-clock time of the observation.
	Timestamp time.Time `json:"timestamp"`

	// Value is the observed scalar reading.
	Value float64 `json:"value"`

	// Slope is the smoothed rate of change, in value units per millisecond.
	Slope float64 `json:"slope"`

	// RawSlope is the unsmoothed instantaneous slope of this observation.
	RawSlope float64 `json:"raw_slope"`

	// TTFMillis is the projected time until the value reaches a physical
	// limit, in milliseconds. Only meaningful when HasTTF is true.
	TTFMillis float64 `json:"ttf_ms,omitempty"`

	// HasTTF reports whether a failure-time projection exists.
	HasTTF bool `json:"has_ttf"`

	// Status is the drift classification: learning | stable | drifting_up |
	// drifting_down | faulted.
	Status string `json:"status"`

	// Drifting is true when Status is drifting_up or drifting_down.
	Drifting bool `json:"drifting"`

	// Liveness is the heartbeat classification: unknown | alive | dead.
	Liveness string `json:"liveness"`

	// Error is non-empty when this cycle failed (scrape failure, rejected
	// observation). The last good drift state is still reported alongside.
	Error string `json:"error,omitempty"`
}

// GroupSnapshot is the voted consensus over a three-channel redundancy
// group.
type GroupSnapshot struct {
	// GroupID identifies the redundancy group.
	GroupID string `json:"group_id"`

	// Timestamp is when the vote ran.
	Timestamp time.Time `json:"timestamp"`

	// Value is the consensus value; on no-quorum it is the last known good
	// value and Valid is false.
	Value float64 `json:"value"`

	// Confidence in [0, 1] reflects how many channels voted and at what
	// health weight.
	Confidence float64 `json:"confidence"`

	// Spread is max - min over the voted values.
	Spread float64 `json:"spread"`

	// State is the vote outcome: agree | disagree | degraded | no_quorum.
	State string `json:"state"`

	// Active is the number of channels that contributed to the vote.
	Active int `json:"active"`

	// Valid is false only on no-quorum.
	Valid bool `json:"valid"`

	// Channels lists the group's member channel IDs in vote order.
	Channels []string `json:"channels"`
}
