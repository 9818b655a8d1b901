// Package config loads, validates, and watches the driftguard YAML
// configuration: monitored channels with their drift tunables and liveness
// timeouts, three-channel redundancy groups, and the HTTP server settings
// including alert rules and webhook targets.
//
// Load applies defaults for absent optional fields and rejects structurally
// invalid files. Watch re-loads the file on change via fsnotify; a failed
// reload keeps the previous configuration active. Secrets (API keys, tokens,
// webhook URLs) are referenced by environment variable name, never stored
// in the file.
package config
