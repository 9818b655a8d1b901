// Package auth provides API key authentication middleware for the HTTP
// server.
package auth
