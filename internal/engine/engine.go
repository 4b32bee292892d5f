package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"deltabot/internal/award"
	"deltabot/internal/config"
	"deltabot/internal/detect"
	"deltabot/internal/forum"
	"deltabot/internal/metrics"
	"deltabot/internal/model"
	"deltabot/internal/reply"
	"deltabot/internal/validate"
)

// lastProcessedCursor records when the engine last saw a comment, so a
// restart can resume scanning from that point.
const lastProcessedCursor = "engine:last_processed_utc"

// Cursors stores opaque resume markers.
type Cursors interface {
	SaveCursor(ctx context.Context, key, value string) error
}

// Engine runs the award lifecycle state machine for one comment at a
// time: classify, detect prior replies, validate, award or unaward,
// then mutate the bot's reply. Award/unaward always precedes the reply
// mutation; if the reply step fails, the next pass over the same
// comment finds the ledger entry already present and only retries the
// reply.
type Engine struct {
	indicators    []string
	unawardWindow time.Duration
	client        forum.Client
	detector      *detect.Detector
	validator     *validate.Validator
	awarder       *award.Awarder
	replier       *reply.Replier
	cursors       Cursors
	clock         clockwork.Clock
}

func New(cfg config.ValidationConfig, client forum.Client, detector *detect.Detector,
	validator *validate.Validator, awarder *award.Awarder, replier *reply.Replier,
	cursors Cursors, clock clockwork.Clock) *Engine {
	return &Engine{
		indicators:    cfg.DeltaIndicators,
		unawardWindow: time.Duration(cfg.HoursToUnawardDelta) * time.Hour,
		client:        client,
		detector:      detector,
		validator:     validator,
		awarder:       awarder,
		replier:       replier,
		cursors:       cursors,
		clock:         clock,
	}
}

// Process runs one full lifecycle pass over a comment.
func (e *Engine) Process(ctx context.Context, comment *model.Thing) error {
	start := time.Now()
	metrics.CommentsProcessed.Inc()
	defer metrics.ObserveProcessDuration(start)

	if err := e.cursors.SaveCursor(ctx, lastProcessedCursor,
		e.clock.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save processed cursor: %w", err)
	}

	// Classify from the queued payload before any fetch.
	hasDelta := validate.HasIndicator(comment.Body, e.indicators)
	isEdited := comment.IsEdited
	if !hasDelta && !isEdited {
		return nil
	}

	// Parent and children are lazily populated; both branches below
	// need them and they are not inferable from the queued payload.
	if err := e.client.FetchParentAndChildren(ctx, comment); err != nil {
		return fmt.Errorf("fetch parent and children: %w", err)
	}

	if hasDelta {
		return e.processDelta(ctx, comment)
	}
	return e.processEditWithoutDelta(ctx, comment)
}

func (e *Engine) processDelta(ctx context.Context, comment *model.Thing) error {
	det := e.detector.DidBotReply(comment)
	switch {
	case !det.HasReplied:
		res, err := e.validateAndAward(ctx, comment)
		if err != nil {
			return err
		}
		return e.replier.Reply(ctx, comment, res)
	case !det.WasSuccess:
		// Prior reply was a fail reply; the edit may have fixed the
		// issue. Re-validate and mutate the existing reply in place.
		res, err := e.validateAndAward(ctx, comment)
		if err != nil {
			return err
		}
		return e.replier.EditReply(ctx, det.Reply, res)
	default:
		// Already awarded successfully; never re-validate.
		return nil
	}
}

// validateAndAward validates the comment and, when valid, awards the
// delta before any reply is posted.
func (e *Engine) validateAndAward(ctx context.Context, comment *model.Thing) (model.ValidationResult, error) {
	res, err := e.validator.Validate(comment)
	if err != nil {
		return model.ValidationResult{}, err
	}
	if res.IsValidDelta {
		if err := e.awarder.Award(ctx, comment); err != nil {
			return model.ValidationResult{}, err
		}
	}
	return res, nil
}

func (e *Engine) processEditWithoutDelta(ctx context.Context, comment *model.Thing) error {
	det := e.detector.DidBotReply(comment)
	if !det.HasReplied || !det.WasSuccess {
		return nil
	}
	// The indicator was edited away. The award is reversed only while
	// the comment is still inside the grace window; beyond it the
	// delta is permanent.
	if e.clock.Now().Sub(comment.CreatedUTC) > e.unawardWindow {
		return nil
	}
	if err := e.awarder.Unaward(ctx, comment); err != nil {
		return err
	}
	return e.replier.DeleteReply(ctx, det.Reply)
}
