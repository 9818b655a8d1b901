package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/vote"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval    = 15 * time.Second
	DefaultSnapshotTTL       = 60 * time.Second
	DefaultLivenessTimeout   = 30 * time.Second
	DefaultBroadcastInterval = 5 * time.Second
	DefaultHTTPPort          = 8080
)

// Config is the top-level driftguard configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Server  ServerConfig  `yaml:"server"`
}

// MonitorConfig holds the scraping and channel-monitoring settings.
type MonitorConfig struct {
	// ScrapeInterval controls how often each channel endpoint is polled.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// SnapshotTTL is how long a channel snapshot stays live in the store
	// without an update before being evicted.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`

	// Channels is the list of monitored telemetry channels.
	Channels []Channel `yaml:"channels"`

	// Groups is the list of three-channel redundancy groups voted over.
	Groups []Group `yaml:"groups"`
}

// Channel describes one monitored telemetry channel.
type Channel struct {
	// ID is a unique, human-readable identifier for this channel.
	ID string `yaml:"id"`

	// Endpoint is the URL of the channel's Prometheus-format metrics page.
	// Empty for push-only channels fed through the ingest API.
	Endpoint string `yaml:"endpoint"`

	// Metric is the metric family name whose sample is the monitored value.
	Metric string `yaml:"metric"`

	// Auth configures how the scraper authenticates to the endpoint.
	Auth AuthConfig `yaml:"auth"`

	// InsecureSkipVerify disables TLS certificate verification for this
	// endpoint. Development use only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Drift holds the rate-of-change monitor tunables.
	Drift DriftConfig `yaml:"drift"`

	// LivenessTimeout is the silence period after which the channel is
	// classified dead.
	LivenessTimeout time.Duration `yaml:"liveness_timeout"`

	// MissThreshold is the number of consecutive scrape failures that
	// classifies the channel dead. Zero picks the liveness default.
	MissThreshold int `yaml:"miss_threshold"`
}

// DriftConfig holds the per-channel drift monitor tunables in YAML form.
// Absent fields fall back to the drift package defaults.
type DriftConfig struct {
	Alpha              float64       `yaml:"alpha"`
	MaxSafeSlope       float64       `yaml:"max_safe_slope"`
	UpperLimit         float64       `yaml:"upper_limit"`
	LowerLimit         float64       `yaml:"lower_limit"`
	MinObservations    uint32        `yaml:"min_observations"`
	MaxGap             time.Duration `yaml:"max_gap"`
	MinProjectionSlope float64       `yaml:"min_projection_slope"`

	// GapPolicy is "reset" (default) or "reject".
	GapPolicy string `yaml:"gap_policy"`
}

// Build converts the YAML tunables to a validated drift.Config.
// Zero-valued fields take the package defaults; the drift monitor itself
// validates everything again at construction.
func (d DriftConfig) Build() (drift.Config, error) {
	cfg := drift.DefaultConfig()
	if d.Alpha != 0 {
		cfg.Alpha = d.Alpha
	}
	if d.MaxSafeSlope != 0 {
		cfg.MaxSafeSlope = d.MaxSafeSlope
	}
	if d.UpperLimit != 0 {
		cfg.UpperLimit = d.UpperLimit
	}
	if d.LowerLimit != 0 {
		cfg.LowerLimit = d.LowerLimit
	}
	if d.MinObservations != 0 {
		cfg.MinObservations = d.MinObservations
	}
	if d.MaxGap != 0 {
		cfg.MaxGap = uint64(d.MaxGap.Milliseconds())
	}
	if d.MinProjectionSlope != 0 {
		cfg.MinProjectionSlope = d.MinProjectionSlope
	}
	switch d.GapPolicy {
	case "", "reset":
		cfg.GapPolicy = drift.GapReset
	case "reject":
		cfg.GapPolicy = drift.GapReject
	default:
		return drift.Config{}, fmt.Errorf("unknown gap_policy %q", d.GapPolicy)
	}
	if err := cfg.Validate(); err != nil {
		return drift.Config{}, err
	}
	return cfg, nil
}

// Group describes one three-channel redundancy group.
type Group struct {
	// ID is a unique identifier for the group.
	ID string `yaml:"id"`

	// Channels names exactly three member channel IDs, in vote order.
	Channels []string `yaml:"channels"`

	// MaxDeviation is the spread above which the channels are flagged as
	// disagreeing.
	MaxDeviation float64 `yaml:"max_deviation"`

	// TieBreaker is the member index trusted when a two-way vote splits.
	TieBreaker int `yaml:"tie_breaker"`

	// UseWeightedAverage selects health-weighted averaging instead of
	// mid-value selection.
	UseWeightedAverage bool `yaml:"use_weighted_average"`
}

// Build converts the group settings to a validated vote.Config.
func (g Group) Build() (vote.Config, error) {
	cfg := vote.DefaultConfig()
	if g.MaxDeviation != 0 {
		cfg.MaxDeviation = g.MaxDeviation
	}
	cfg.TieBreaker = g.TieBreaker
	cfg.UseWeightedAverage = g.UseWeightedAverage
	if err := cfg.Validate(); err != nil {
		return vote.Config{}, err
	}
	return cfg, nil
}

// AuthConfig specifies how an HTTP request is authenticated.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header the API key is carried in.
	// Defaults to "X-API-Key".
	Header string `yaml:"header"`

	// KeyEnv names the environment variable holding the API key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`
}

// EffectiveHeader returns the configured header name or the default.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return "X-API-Key"
	}
	return a.Header
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, ingest, and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval controls how often the WebSocket hub pushes the
	// full snapshot to connected clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// Auth configures authentication for incoming API requests.
	Auth AuthConfig `yaml:"auth"`

	// Alerts holds alert rules and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier.
	Name string `yaml:"name"`

	// Condition is an expression like "slope > 0.05", "status == faulted",
	// or "ttf_ms < 60000".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after a fire.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			ScrapeInterval: DefaultScrapeInterval,
			SnapshotTTL:    DefaultSnapshotTTL,
		},
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Monitor.ScrapeInterval <= 0 {
		return fmt.Errorf("monitor.scrape_interval must be positive")
	}
	if cfg.Monitor.SnapshotTTL <= 0 {
		return fmt.Errorf("monitor.snapshot_ttl must be positive")
	}
	if len(cfg.Monitor.Channels) == 0 {
		return fmt.Errorf("monitor.channels must not be empty")
	}

	ids := make(map[string]bool, len(cfg.Monitor.Channels))
	for i := range cfg.Monitor.Channels {
		ch := &cfg.Monitor.Channels[i]
		if ch.ID == "" {
			return fmt.Errorf("channels[%d]: id is required", i)
		}
		if ids[ch.ID] {
			return fmt.Errorf("channels[%d]: duplicate id %q", i, ch.ID)
		}
		ids[ch.ID] = true
		if ch.Endpoint != "" && ch.Metric == "" {
			return fmt.Errorf("channels[%d] %q: metric is required for scraped channels", i, ch.ID)
		}
		switch ch.Auth.Mode {
		case "apikey", "bearer", "none", "":
		default:
			return fmt.Errorf("channels[%d] %q: unknown auth mode %q", i, ch.ID, ch.Auth.Mode)
		}
		if ch.LivenessTimeout == 0 {
			ch.LivenessTimeout = DefaultLivenessTimeout
		}
		if ch.LivenessTimeout < 0 {
			return fmt.Errorf("channels[%d] %q: liveness_timeout must be positive", i, ch.ID)
		}
		if _, err := ch.Drift.Build(); err != nil {
			return fmt.Errorf("channels[%d] %q: drift: %w", i, ch.ID, err)
		}
	}

	groupIDs := make(map[string]bool, len(cfg.Monitor.Groups))
	for i, g := range cfg.Monitor.Groups {
		if g.ID == "" {
			return fmt.Errorf("groups[%d]: id is required", i)
		}
		if groupIDs[g.ID] {
			return fmt.Errorf("groups[%d]: duplicate id %q", i, g.ID)
		}
		groupIDs[g.ID] = true
		if len(g.Channels) != vote.Channels {
			return fmt.Errorf("groups[%d] %q: exactly %d channels required, got %d",
				i, g.ID, vote.Channels, len(g.Channels))
		}
		for _, id := range g.Channels {
			if !ids[id] {
				return fmt.Errorf("groups[%d] %q: unknown channel %q", i, g.ID, id)
			}
		}
		if _, err := g.Build(); err != nil {
			return fmt.Errorf("groups[%d] %q: %w", i, g.ID, err)
		}
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth: unknown mode %q", cfg.Server.Auth.Mode)
	}
	for i, r := range cfg.Server.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d] %q: condition is required", i, r.Name)
		}
	}
	return nil
}
