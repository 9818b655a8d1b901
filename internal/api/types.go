package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string `json:"state"`
	ChannelCount  int    `json:"channel_count"`
	StableCount   int    `json:"stable_count"`
	DriftingCount int    `json:"drifting_count"`
	FaultedCount  int    `json:"faulted_count"`
	LearningCount int    `json:"learning_count"`
	DeadCount     int    `json:"dead_count"`
	AlertCount    int    `json:"alert_count"`
}

// ChannelResponse is one channel entry in GET /api/v1/channels or
// GET /api/v1/channels/{id}.
type ChannelResponse struct {
	ChannelID string  `json:"channel_id"`
	Value     float64 `json:"value"`
	Slope     float64 `json:"slope"`
	RawSlope  float64 `json:"raw_slope"`
	TTFMillis float64 `json:"ttf_ms,omitempty"`
	HasTTF    bool    `json:"has_ttf"`
	Status    string  `json:"status"`
	Drifting  bool    `json:"drifting"`
	Liveness  string  `json:"liveness"`
	Error     string  `json:"error,omitempty"`
	LastSeen  string  `json:"last_seen"` // RFC3339
}

// GroupResponse is one group entry in GET /api/v1/groups or
// GET /api/v1/groups/{id}.
type GroupResponse struct {
	GroupID    string   `json:"group_id"`
	Value      float64  `json:"value"`
	Confidence float64  `json:"confidence"`
	Spread     float64  `json:"spread"`
	State      string   `json:"state"`
	Active     int      `json:"active"`
	Valid      bool     `json:"valid"`
	Channels   []string `json:"channels"`
	LastSeen   string   `json:"last_seen"` // RFC3339
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Channels    []ChannelResponse `json:"channels"`
	Groups      []GroupResponse   `json:"groups"`
	GeneratedAt string            `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
