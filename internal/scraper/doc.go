// Package scraper pulls one scalar telemetry value per channel from a
// Prometheus exposition endpoint. Each scraper owns a pre-built HTTP client
// with the channel's auth and TLS settings and extracts the configured
// metric family from the scrape.
package scraper
