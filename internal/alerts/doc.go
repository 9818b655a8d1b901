// Package alerts evaluates threshold rules against channel and group
// snapshots and delivers webhook notifications when rules fire or resolve.
// Conditions are simple "field op value" expressions; rule cooldowns keep a
// flapping signal from re-firing on every evaluation.
package alerts
