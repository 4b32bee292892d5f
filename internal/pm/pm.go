package pm

import (
	"context"
	"fmt"
	"strings"

	"deltabot/internal/logging"
	"deltabot/internal/model"
	"deltabot/internal/validate"
)

// HandlerFunc handles one kind of private message.
type HandlerFunc func(ctx context.Context, msg *model.Thing) error

// MessageClient is the slice of the platform client the processor needs.
type MessageClient interface {
	MarkMessageRead(ctx context.Context, messageID string) error
}

// Processor routes private messages to handlers by normalized subject.
// A subject with no registered handler is a valid no-op, not an error;
// either way the message is marked read afterward.
type Processor struct {
	client   MessageClient
	handlers map[string]HandlerFunc
}

func NewProcessor(client MessageClient) *Processor {
	return &Processor{client: client, handlers: map[string]HandlerFunc{}}
}

// Register binds a handler to a message subject (case-insensitive).
func (p *Processor) Register(subject string, h HandlerFunc) {
	p.handlers[normalizeSubject(subject)] = h
}

func (p *Processor) Process(ctx context.Context, msg *model.Thing) error {
	if msg.Type != model.TypePrivateMessage {
		return &validate.InvariantError{
			Reason: fmt.Sprintf("private message processor received type %s", msg.Type),
		}
	}
	if h, ok := p.handlers[normalizeSubject(msg.Title)]; ok {
		if err := h(ctx, msg); err != nil {
			return err
		}
	} else {
		logging.Debug("pm_no_handler", map[string]any{"subject": msg.Title})
	}
	return p.client.MarkMessageRead(ctx, msg.ID)
}

func normalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
