package award

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"deltabot/internal/logging"
	"deltabot/internal/metrics"
	"deltabot/internal/model"
	"deltabot/internal/validate"
)

// Ledger is the persistence contract for award entries.
type Ledger interface {
	AddDelta(ctx context.Context, username, sourceCommentID string, awardedAt time.Time) (bool, error)
	RemoveDelta(ctx context.Context, sourceCommentID string) (bool, error)
}

// BoardPublisher rebuilds and publishes the deltaboards after a ledger
// mutation.
type BoardPublisher interface {
	Publish(ctx context.Context) error
}

// Awarder applies and reverses delta awards. The ledger mutation always
// precedes the published-document update; ranks are recomputed from the
// ledger on every publish, so a crash in between self-heals.
type Awarder struct {
	ledger Ledger
	boards BoardPublisher
	clock  clockwork.Clock
}

func New(ledger Ledger, boards BoardPublisher, clock clockwork.Clock) *Awarder {
	return &Awarder{ledger: ledger, boards: boards, clock: clock}
}

// Award credits comment.Parent's author with one delta keyed by
// comment's id. Re-awarding the same comment id is a no-op, which is
// what makes the engine's retry-after-partial-failure path safe.
func (a *Awarder) Award(ctx context.Context, comment *model.Thing) error {
	if err := requireCommentParent(comment); err != nil {
		return err
	}
	target := comment.Parent.AuthorName
	inserted, err := a.ledger.AddDelta(ctx, target, comment.ID, a.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("award delta: %w", err)
	}
	if inserted {
		metrics.DeltasAwarded.Inc()
		logging.Info("delta_awarded", map[string]any{"to": target, "comment": comment.ID})
	} else {
		logging.Info("delta_already_awarded", map[string]any{"to": target, "comment": comment.ID})
	}
	return a.boards.Publish(ctx)
}

// Unaward removes the ledger entry keyed by comment's id. Callers
// enforce the grace window; the awarder only reverses state.
func (a *Awarder) Unaward(ctx context.Context, comment *model.Thing) error {
	if err := requireCommentParent(comment); err != nil {
		return err
	}
	target := comment.Parent.AuthorName
	removed, err := a.ledger.RemoveDelta(ctx, comment.ID)
	if err != nil {
		return fmt.Errorf("unaward delta: %w", err)
	}
	if removed {
		metrics.DeltasUnawarded.Inc()
		logging.Info("delta_unawarded", map[string]any{"from": target, "comment": comment.ID})
	} else {
		logging.Info("delta_already_unawarded", map[string]any{"from": target, "comment": comment.ID})
	}
	return a.boards.Publish(ctx)
}

// requireCommentParent asserts the award precondition: deltas are only
// valid as a reply to another comment.
func requireCommentParent(comment *model.Thing) error {
	if comment.Parent == nil {
		return &validate.InvariantError{Reason: "award on comment with no populated parent"}
	}
	if comment.Parent.Type != model.TypeComment {
		return &validate.InvariantError{
			Reason: fmt.Sprintf("award parent must be a comment, got %s", comment.Parent.Type),
		}
	}
	return nil
}
