package reply

import (
	"context"

	"deltabot/internal/logging"
	"deltabot/internal/metrics"
	"deltabot/internal/model"
	"deltabot/internal/templates"
)

// Client is the slice of the platform client the replier needs.
type Client interface {
	PostReply(ctx context.Context, parentID, body string) (*model.Thing, error)
	EditReply(ctx context.Context, replyID, body string) error
	DeleteReply(ctx context.Context, replyID string) error
}

// Replier posts, edits, and deletes the bot's reply comments. In
// read-only mode all three are no-ops that still report success, so the
// lifecycle engine's state transitions are exercised identically in a
// dry run.
type Replier struct {
	client   Client
	wrapper  string
	readOnly bool
}

func New(client Client, wrapper string, readOnly bool) *Replier {
	return &Replier{client: client, wrapper: wrapper, readOnly: readOnly}
}

// Reply posts a new reply under comment with the validation outcome.
func (r *Replier) Reply(ctx context.Context, comment *model.Thing, res model.ValidationResult) error {
	body := r.wrap(res.ReplyBody)
	if r.readOnly {
		logging.Info("readonly_skip_reply", map[string]any{"comment": comment.ID, "result": res.Type.String()})
		return nil
	}
	if _, err := r.client.PostReply(ctx, comment.ID, body); err != nil {
		return err
	}
	metrics.ReplyActions.WithLabelValues("post").Inc()
	logging.Info("replied", map[string]any{"comment": comment.ID, "result": res.Type.String()})
	return nil
}

// EditReply mutates an existing bot reply in place.
func (r *Replier) EditReply(ctx context.Context, botReply *model.Thing, res model.ValidationResult) error {
	body := r.wrap(res.ReplyBody)
	if r.readOnly {
		logging.Info("readonly_skip_edit", map[string]any{"reply": botReply.ID, "result": res.Type.String()})
		return nil
	}
	if err := r.client.EditReply(ctx, botReply.ID, body); err != nil {
		return err
	}
	metrics.ReplyActions.WithLabelValues("edit").Inc()
	logging.Info("reply_edited", map[string]any{"reply": botReply.ID, "result": res.Type.String()})
	return nil
}

// DeleteReply removes a bot reply.
func (r *Replier) DeleteReply(ctx context.Context, botReply *model.Thing) error {
	if r.readOnly {
		logging.Info("readonly_skip_delete", map[string]any{"reply": botReply.ID})
		return nil
	}
	if err := r.client.DeleteReply(ctx, botReply.ID); err != nil {
		return err
	}
	metrics.ReplyActions.WithLabelValues("delete").Inc()
	logging.Info("reply_deleted", map[string]any{"reply": botReply.ID})
	return nil
}

func (r *Replier) wrap(body string) string {
	if r.wrapper == "" {
		return body
	}
	return templates.Render(r.wrapper, map[string]string{templates.TokenBody: body})
}
