package scraper

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/driftguard/driftguard/internal/config"
)

const defaultScrapeTimeout = 10 * time.Second

// Reading is the outcome of one scrape cycle for a single channel.
// Exactly one of Value and Err is meaningful: a non-nil Err means the
// scrape produced no usable sample (connectivity, auth, parse, missing
// metric) and the channel should record a miss instead of an observation.
type Reading struct {
	ChannelID string
	Value     float64
	ScrapedAt time.Time
	Err       error
}

// Scraper polls one channel's metrics endpoint for its configured metric.
type Scraper struct {
	ch     config.Channel
	client *http.Client
}

// New builds a Scraper for the channel. The HTTP client is constructed once
// with the channel's auth and TLS settings and reused across scrape calls.
func New(ch config.Channel) (*Scraper, error) {
	if ch.Endpoint == "" {
		return nil, fmt.Errorf("scraper %q: no endpoint configured", ch.ID)
	}
	if ch.Metric == "" {
		return nil, fmt.Errorf("scraper %q: no metric configured", ch.ID)
	}
	return &Scraper{ch: ch, client: buildHTTPClient(ch)}, nil
}

// Scrape fetches the channel's endpoint and extracts the configured metric.
// Failures are reported in Reading.Err, never as a returned error; the
// caller turns them into liveness misses.
func (s *Scraper) Scrape(ctx context.Context) *Reading {
	r := &Reading{ChannelID: s.ch.ID, ScrapedAt: time.Now().UTC()}

	mfs, err := fetchMetrics(ctx, s.client, s.ch.Endpoint)
	if err != nil {
		r.Err = fmt.Errorf("scrape %q: %w", s.ch.ID, err)
		return r
	}

	v, err := sampleValue(mfs[s.ch.Metric])
	if err != nil {
		r.Err = fmt.Errorf("scrape %q: metric %q: %w", s.ch.ID, s.ch.Metric, err)
		return r
	}
	r.Value = v
	return r
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the channel's auth and TLS
// settings.
func buildHTTPClient(ch config.Channel) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: ch.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: ch.Auth,
		},
		Timeout: defaultScrapeTimeout,
	}
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	// Non-empty result with a non-nil err means partial parse (trailing
	// lines, format warnings). Treat as success.
	return mfs, nil
}

// sampleValue extracts the single gauge, counter, or untyped sample from mf.
// The monitored value is a physical scalar, so a family with several series
// is ambiguous and rejected rather than silently aggregated.
func sampleValue(mf *dto.MetricFamily) (float64, error) {
	if mf == nil {
		return 0, fmt.Errorf("not present in scrape")
	}
	metrics := mf.GetMetric()
	if len(metrics) == 0 {
		return 0, fmt.Errorf("family has no samples")
	}
	if len(metrics) > 1 {
		return 0, fmt.Errorf("family has %d series, want exactly 1", len(metrics))
	}

	m := metrics[0]
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), nil
	case m.Counter != nil:
		return m.Counter.GetValue(), nil
	case m.Untyped != nil:
		return m.Untyped.GetValue(), nil
	default:
		return 0, fmt.Errorf("unsupported metric type")
	}
}
