// Package types defines the shared snapshot types that flow between the
// pipeline engine, store, alert engine, REST API, and WebSocket hub.
// These are the canonical in-memory and JSON representations of channel
// and group health data.
package types
