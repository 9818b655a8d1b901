package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/liveness"
	"github.com/driftguard/driftguard/internal/vote"
	"github.com/driftguard/driftguard/pkg/types"
)

// ErrUnknownChannel is returned when an observation names a channel the
// engine was not configured with.
var ErrUnknownChannel = errors.New("pipeline: unknown channel")

// ChannelSpec configures one monitored channel.
type ChannelSpec struct {
	ID              string
	Drift           drift.Config
	LivenessTimeout uint64 // ticks (ms)
	MissThreshold   int
}

// GroupSpec configures one three-channel redundancy group.
type GroupSpec struct {
	ID       string
	Channels [vote.Channels]string
	Vote     vote.Config
}

// Engine maintains the monitors for all configured channels and groups.
type Engine struct {
	mu       sync.Mutex
	channels map[string]*channel
	groups   []*group
}

type channel struct {
	spec  ChannelSpec
	drift *drift.Monitor
	live  *liveness.Monitor
	last  *types.Snapshot
}

type group struct {
	spec  GroupSpec
	voter *vote.Voter
}

// New returns an empty Engine; add channels before groups.
func New() *Engine {
	return &Engine{channels: make(map[string]*channel)}
}

// AddChannel registers a channel and constructs its monitors.
func (e *Engine) AddChannel(spec ChannelSpec) error {
	d, err := drift.New(spec.Drift)
	if err != nil {
		return fmt.Errorf("channel %q: %w", spec.ID, err)
	}
	l, err := liveness.New(spec.LivenessTimeout, spec.MissThreshold)
	if err != nil {
		return fmt.Errorf("channel %q: %w", spec.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.channels[spec.ID]; exists {
		return fmt.Errorf("pipeline: duplicate channel %q", spec.ID)
	}
	e.channels[spec.ID] = &channel{spec: spec, drift: d, live: l}
	return nil
}

// AddGroup registers a redundancy group over previously added channels.
func (e *Engine) AddGroup(spec GroupSpec) error {
	v, err := vote.New(spec.Vote)
	if err != nil {
		return fmt.Errorf("group %q: %w", spec.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range spec.Channels {
		if _, ok := e.channels[id]; !ok {
			return fmt.Errorf("group %q: %w: %q", spec.ID, ErrUnknownChannel, id)
		}
	}
	e.groups = append(e.groups, &group{spec: spec, voter: v})
	return nil
}

// Observe steps a channel's monitors with one reading taken at now and
// returns the derived snapshot. Rejected observations (temporal ordering,
// domain faults) still produce a snapshot carrying the error and the
// channel's current classification.
func (e *Engine) Observe(channelID string, value float64, now time.Time) (*types.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channelID)
	}

	ticks := toTicks(now)

	// The reading arrived, whatever its quality: that is a heartbeat.
	// Presence and correctness are judged independently.
	if err := c.live.Beat(ticks); err != nil {
		slog.Debug("pipeline: heartbeat rejected", "channel", channelID, "err", err)
	}

	r, err := c.drift.Update(value, ticks)

	snap := &types.Snapshot{
		ChannelID: channelID,
		Timestamp: now,
		Value:     value,
		Slope:     r.Slope,
		RawSlope:  r.RawSlope,
		TTFMillis: r.TTF,
		HasTTF:    r.HasTTF,
		Status:    r.Status.String(),
		Drifting:  r.Drifting,
		Liveness:  c.live.Check(ticks).String(),
	}
	if err != nil {
		// The zero-valued Result must not be published: re-derive every
		// classified field from the monitor so consumers keep seeing the
		// channel's current state, with the rejection carried in Error.
		st := c.drift.Status()
		snap.Status = st.String()
		snap.Slope = c.drift.Slope()
		snap.RawSlope = 0
		snap.TTFMillis, snap.HasTTF = c.drift.TTF()
		snap.Drifting = st == drift.StatusDriftingUp || st == drift.StatusDriftingDown
		snap.Value = 0
		if c.last != nil {
			snap.Value = c.last.Value
		}
		snap.Error = err.Error()
		slog.Warn("pipeline: observation rejected",
			"channel", channelID, "value", value, "err", err)
	}

	c.last = snap
	return snap, nil
}

// ObserveMiss records a failed delivery attempt (a scrape that never
// produced a reading) and returns the channel's current snapshot view.
func (e *Engine) ObserveMiss(channelID string, cause error, now time.Time) (*types.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channelID)
	}

	c.live.Miss()
	ticks := toTicks(now)

	st := c.drift.Status()
	snap := &types.Snapshot{
		ChannelID: channelID,
		Timestamp: now,
		Status:    st.String(),
		Slope:     c.drift.Slope(),
		Drifting:  st == drift.StatusDriftingUp || st == drift.StatusDriftingDown,
		Liveness:  c.live.Check(ticks).String(),
	}
	snap.TTFMillis, snap.HasTTF = c.drift.TTF()
	if cause != nil {
		snap.Error = cause.Error()
	}
	if c.last != nil {
		snap.Value = c.last.Value
	}

	c.last = snap
	return snap, nil
}

// Vote runs every configured group's consensus over the channels' latest
// classified values and returns the group snapshots. A no-quorum vote is a
// normal outcome, not an error: the snapshot carries State "no_quorum".
func (e *Engine) Vote(now time.Time) []*types.GroupSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	ticks := toTicks(now)
	out := make([]*types.GroupSnapshot, 0, len(e.groups))

	for _, g := range e.groups {
		var inputs [vote.Channels]vote.Input
		for i, id := range g.spec.Channels {
			inputs[i] = e.channels[id].voteInput(ticks)
		}

		r, err := g.voter.Update(inputs)
		if err != nil && !errors.Is(err, vote.ErrNoQuorum) {
			slog.Error("pipeline: vote failed", "group", g.spec.ID, "err", err)
			continue
		}
		if errors.Is(err, vote.ErrNoQuorum) {
			slog.Warn("pipeline: group lost quorum",
				"group", g.spec.ID, "active", r.Active)
		}

		out = append(out, &types.GroupSnapshot{
			GroupID:    g.spec.ID,
			Timestamp:  now,
			Value:      r.Value,
			Confidence: r.Confidence,
			Spread:     r.Spread,
			State:      r.State.String(),
			Active:     r.Active,
			Valid:      r.Valid,
			Channels:   g.spec.Channels[:],
		})
	}
	return out
}

// ResetChannel returns a channel's monitors to their initial lifecycle,
// clearing any sticky faults. Used by the operator reset endpoint.
func (e *Engine) ResetChannel(channelID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.channels[channelID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channelID)
	}
	c.drift.Reset()
	c.live.Reset()
	c.last = nil
	slog.Info("pipeline: channel reset", "channel", channelID)
	return nil
}

// ChannelIDs returns the configured channel IDs in unspecified order.
func (e *Engine) ChannelIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.channels))
	for id := range e.channels {
		ids = append(ids, id)
	}
	return ids
}

// voteInput maps a channel's current classification to a voter input.
// This is the downstream contract between the trend classifier and the
// redundant-sensor voter: faulted or dead channels are excluded, drifting
// channels vote at reduced weight.
func (c *channel) voteInput(ticks uint64) vote.Input {
	if c.last == nil {
		return vote.Input{Health: vote.Faulty}
	}

	health := vote.Healthy
	switch {
	case c.drift.Faulted():
		health = vote.Faulty
	case c.live.Check(ticks) == liveness.StatusDead:
		health = vote.Faulty
	case c.drift.Status() == drift.StatusDriftingUp,
		c.drift.Status() == drift.StatusDriftingDown:
		health = vote.Degraded
	case c.live.Check(ticks) == liveness.StatusUnknown:
		health = vote.Degraded
	}

	return vote.Input{Value: c.last.Value, Health: health}
}

// toTicks converts wall-clock time to monitor ticks (milliseconds).
// The monitors treat the tick domain as wrapping, so the cast is safe even
// for pre-epoch test clocks.
func toTicks(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}
