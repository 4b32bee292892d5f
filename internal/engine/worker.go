package engine

import (
	"context"
	"encoding/json"
	"errors"

	"deltabot/internal/logging"
	"deltabot/internal/metrics"
	"deltabot/internal/model"
	"deltabot/internal/pm"
	"deltabot/internal/queue"
	"deltabot/internal/validate"
)

// Handler processes one dequeued message.
type Handler func(ctx context.Context, msg model.QueueMessage) error

// Worker drains the queue with a single logical consumer, dispatching
// each message by kind. A kind without a handler is a logged no-op. A
// failed item is logged and dropped; the policy is fail and move to the
// next item, never retry forever.
type Worker struct {
	q        *queue.Queue
	handlers map[model.MessageKind]Handler
}

func NewWorker(q *queue.Queue, handlers map[model.MessageKind]Handler) *Worker {
	return &Worker{q: q, handlers: handlers}
}

// Run blocks until ctx is done or the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		msg, ok := w.q.Pop(ctx)
		if !ok {
			return
		}
		h, ok := w.handlers[msg.Kind]
		if !ok {
			logging.Debug("worker_no_handler", map[string]any{"kind": msg.Kind.String(), "msg": msg.ID})
			continue
		}
		if err := h(ctx, msg); err != nil {
			metrics.ProcessErrors.Inc()
			var inv *validate.InvariantError
			if errors.As(err, &inv) {
				logging.Error("invariant_violation", map[string]any{"msg": msg.ID, "error": err.Error()})
			} else {
				logging.Error("process_error", map[string]any{"msg": msg.ID, "error": err.Error()})
			}
		}
	}
}

// CommentHandler adapts the engine to the worker's comment messages.
func (e *Engine) CommentHandler() Handler {
	return func(ctx context.Context, msg model.QueueMessage) error {
		var qc model.QueuedComment
		if err := json.Unmarshal(msg.Payload, &qc); err != nil {
			return err
		}
		return e.Process(ctx, &model.Thing{
			ID:         qc.ID,
			Type:       model.TypeComment,
			Body:       qc.Body,
			AuthorName: qc.AuthorName,
			CreatedUTC: qc.CreatedUTC,
			IsEdited:   qc.IsEdited,
			ParentID:   qc.ParentID,
		})
	}
}

// MessageHandler adapts the private-message processor to the worker.
func MessageHandler(p *pm.Processor) Handler {
	return func(ctx context.Context, msg model.QueueMessage) error {
		var qm model.QueuedMessage
		if err := json.Unmarshal(msg.Payload, &qm); err != nil {
			return err
		}
		return p.Process(ctx, &model.Thing{
			ID:         qm.ID,
			Type:       model.TypePrivateMessage,
			Title:      qm.Subject,
			Body:       qm.Body,
			AuthorName: qm.AuthorName,
			CreatedUTC: qm.CreatedUTC,
		})
	}
}
