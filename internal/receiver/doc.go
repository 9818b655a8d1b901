// Package receiver implements the push ingest endpoint. Gateways that
// cannot expose a metrics page POST observations here; each accepted
// observation is fed through the monitor pipeline, stored, and evaluated
// against the alert rules, exactly as a scraped reading would be.
package receiver
