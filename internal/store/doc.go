// Package store holds the latest channel and group snapshots in memory,
// keyed by ID, with TTL eviction of entries that stop updating. It is the
// read side for the HTTP API and the websocket broadcaster.
package store
