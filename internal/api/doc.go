// Package api implements the read-side REST endpoints under /api/v1/. It
// serves channel and group snapshots from the store, the active alert list,
// and the operator reset endpoint.
package api
