package detect

import (
	"strings"

	"deltabot/internal/config"
	"deltabot/internal/model"
	"deltabot/internal/templates"
)

// Detector recognizes the bot's own prior replies under a comment and
// classifies them as success or failure by matching their bodies
// against the configured reply templates with tokens stripped.
type Detector struct {
	botName string
	success []string
	fail    []string
}

func New(botName string, replies config.RepliesConfig) *Detector {
	return &Detector{
		botName: botName,
		success: replies.SuccessReplies(),
		fail:    replies.FailReplies(),
	}
}

// DidBotReply scans comment.Children for a reply authored by the bot.
// If several exist (tolerated, should not happen), the most recently
// created one wins.
func (d *Detector) DidBotReply(comment *model.Thing) model.ReplyDetectionResult {
	var newest *model.Thing
	for _, child := range comment.Children {
		if !strings.EqualFold(child.AuthorName, d.botName) {
			continue
		}
		if newest == nil || child.CreatedUTC.After(newest.CreatedUTC) {
			newest = child
		}
	}
	if newest == nil {
		return model.ReplyDetectionResult{}
	}
	return model.ReplyDetectionResult{
		HasReplied: true,
		WasSuccess: d.isSuccessBody(newest.Body),
		Reply:      newest,
	}
}

func (d *Detector) isSuccessBody(body string) bool {
	for _, tmpl := range d.success {
		if templates.Matches(body, tmpl) {
			return true
		}
	}
	return false
}
