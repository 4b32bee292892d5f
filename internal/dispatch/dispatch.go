package dispatch

import (
	"encoding/json"

	"github.com/google/uuid"

	"deltabot/internal/logging"
	"deltabot/internal/model"
	"deltabot/internal/queue"
)

// Normalizer converts raw platform events into queue messages. An event
// missing required fields is dropped and logged; it never reaches the
// queue. Dedup is not done here, that is the reply detector's job.
type Normalizer struct {
	q *queue.Queue
}

func NewNormalizer(q *queue.Queue) *Normalizer {
	return &Normalizer{q: q}
}

// SubmitComment enqueues a normalized comment event.
func (n *Normalizer) SubmitComment(qc model.QueuedComment) bool {
	if qc.ID == "" || qc.AuthorName == "" || qc.Body == "" || qc.CreatedUTC.IsZero() {
		logging.Warn("dropped_malformed_comment", map[string]any{"id": qc.ID})
		return false
	}
	payload, err := json.Marshal(qc)
	if err != nil {
		logging.Error("marshal_comment", map[string]any{"id": qc.ID, "error": err.Error()})
		return false
	}
	return n.q.Push(model.QueueMessage{ID: uuid.NewString(), Kind: model.KindComment, Payload: payload})
}

// SubmitMessage enqueues a normalized private-message event.
func (n *Normalizer) SubmitMessage(qm model.QueuedMessage) bool {
	if qm.ID == "" || qm.AuthorName == "" || qm.CreatedUTC.IsZero() {
		logging.Warn("dropped_malformed_message", map[string]any{"id": qm.ID})
		return false
	}
	payload, err := json.Marshal(qm)
	if err != nil {
		logging.Error("marshal_message", map[string]any{"id": qm.ID, "error": err.Error()})
		return false
	}
	return n.q.Push(model.QueueMessage{ID: uuid.NewString(), Kind: model.KindPrivateMessage, Payload: payload})
}
