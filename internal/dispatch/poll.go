package dispatch

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"deltabot/internal/forum"
	"deltabot/internal/logging"
)

const (
	commentsCursor = "poll:comments_since"
	messagesCursor = "poll:messages_since"

	// How far back the first poll after a fresh install reaches.
	defaultHorizon = time.Hour
)

// CursorStore persists poll resume markers.
type CursorStore interface {
	SaveCursor(ctx context.Context, key, value string) error
	LoadCursor(ctx context.Context, key string) (string, error)
}

// Monitor polls the forum for new comments and private messages and
// feeds them through the normalizer. Polling cadence is fully decoupled
// from processing cadence by the queue.
type Monitor struct {
	poller  forum.Poller
	norm    *Normalizer
	cursors CursorStore
	clock   clockwork.Clock
}

func NewMonitor(poller forum.Poller, norm *Normalizer, cursors CursorStore, clock clockwork.Clock) *Monitor {
	return &Monitor{poller: poller, norm: norm, cursors: cursors, clock: clock}
}

// RunOnce performs one poll pass over both comment and message feeds.
func (m *Monitor) RunOnce(ctx context.Context) error {
	now := m.clock.Now().UTC()

	since := m.loadSince(ctx, commentsCursor, now)
	comments, err := m.poller.ListNewComments(ctx, since)
	if err != nil {
		return err
	}
	for _, qc := range comments {
		m.norm.SubmitComment(qc)
	}
	if err := m.cursors.SaveCursor(ctx, commentsCursor, now.Format(time.RFC3339Nano)); err != nil {
		return err
	}

	since = m.loadSince(ctx, messagesCursor, now)
	messages, err := m.poller.ListNewMessages(ctx, since)
	if err != nil {
		return err
	}
	for _, qm := range messages {
		m.norm.SubmitMessage(qm)
	}
	return m.cursors.SaveCursor(ctx, messagesCursor, now.Format(time.RFC3339Nano))
}

// Run polls on a ticker until ctx is cancelled. A failed pass is logged
// and retried on the next tick.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	if err := m.RunOnce(ctx); err != nil {
		logging.Error("poll_error", map[string]any{"error": err.Error()})
	}
	for {
		select {
		case <-ctx.Done():
			logging.Info("poll_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			if err := m.RunOnce(ctx); err != nil {
				logging.Error("poll_error", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (m *Monitor) loadSince(ctx context.Context, key string, now time.Time) time.Time {
	since := now.Add(-defaultHorizon)
	if v, err := m.cursors.LoadCursor(ctx, key); err == nil && v != "" {
		if ts, err2 := time.Parse(time.RFC3339Nano, v); err2 == nil {
			since = ts
		}
	}
	return since
}
