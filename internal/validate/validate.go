package validate

import (
	"fmt"
	"strconv"
	"strings"

	"deltabot/internal/config"
	"deltabot/internal/metrics"
	"deltabot/internal/model"
	"deltabot/internal/templates"
)

// quoteMarker starts a quoted line; quoted lines never count toward
// indicator detection or the minimum-length check.
const quoteMarker = "&gt;"

// InvariantError marks a programming-invariant failure: the item must
// be aborted loudly, never answered with a user-facing fail reply.
type InvariantError struct{ Reason string }

func (e *InvariantError) Error() string { return "invariant violated: " + e.Reason }

// HasIndicator reports whether any configured award indicator appears
// on a non-quoted line of body.
func HasIndicator(body string, indicators []string) bool {
	for _, line := range splitLines(body) {
		if strings.HasPrefix(line, quoteMarker) {
			continue
		}
		for _, ind := range indicators {
			if ind != "" && strings.Contains(line, ind) {
				return true
			}
		}
	}
	return false
}

// StripQuotedLines removes quoted lines from body and rejoins the rest.
func StripQuotedLines(body string) string {
	var kept []string
	for _, line := range splitLines(body) {
		if !strings.HasPrefix(line, quoteMarker) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func splitLines(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Validator decides whether a candidate award is legal.
type Validator struct {
	cfg     config.ValidationConfig
	replies config.RepliesConfig
	botName string
}

func New(cfg config.ValidationConfig, replies config.RepliesConfig, botName string) *Validator {
	return &Validator{cfg: cfg, replies: replies, botName: botName}
}

// Validate evaluates the award rules in order. The first failed rule is
// the primary reason; with tallyAllIssues set, every failed rule counts
// toward IssueCount. Failures are expected business outcomes: they
// produce a rendered fail reply, not an error. An error is returned
// only for invariant violations the commenter did not cause.
func (v *Validator) Validate(comment *model.Thing) (model.ValidationResult, error) {
	if comment.Parent == nil {
		return model.ValidationResult{}, &InvariantError{Reason: "comment has no populated parent"}
	}
	if comment.Parent.Type != model.TypeComment {
		return model.ValidationResult{}, &InvariantError{
			Reason: fmt.Sprintf("award target must be a comment, parent is %s", comment.Parent.Type),
		}
	}

	var issues []model.ResultType

	stripped := StripQuotedLines(comment.Body)
	if len(stripped) < v.cfg.MinCommentLength {
		issues = append(issues, model.ResultCommentTooShort)
	}
	target := comment.Parent.AuthorName
	if !v.cfg.AllowOPAward && comment.Root != nil && equalNames(target, comment.Root.AuthorName) {
		issues = append(issues, model.ResultCannotAwardOP)
	}
	if equalNames(target, v.botName) {
		issues = append(issues, model.ResultCannotAwardBot)
	}
	if equalNames(target, comment.AuthorName) {
		issues = append(issues, model.ResultCannotAwardSelf)
	}

	if len(issues) == 0 {
		return model.ValidationResult{
			Type:         model.ResultSuccess,
			IsValidDelta: true,
			ReplyBody:    v.renderSuccess(target),
		}, nil
	}

	primary := issues[0]
	count := 1
	if v.cfg.TallyAllIssues {
		count = len(issues)
	}
	metrics.ValidationFailures.WithLabelValues(primary.String()).Inc()
	return model.ValidationResult{
		Type:       primary,
		IssueCount: count,
		ReplyBody:  v.renderFailure(primary, count, target),
	}, nil
}

func (v *Validator) renderSuccess(target string) string {
	return templates.Render(v.replies.DeltaAwarded, map[string]string{
		templates.TokenParentAuthor: target,
	})
}

func (v *Validator) renderFailure(primary model.ResultType, count int, target string) string {
	bindings := map[string]string{
		templates.TokenParentAuthor: target,
		templates.TokenMinLength:    strconv.Itoa(v.cfg.MinCommentLength),
		templates.TokenIssueCount:   strconv.Itoa(count),
	}
	tmpl := v.failTemplate(primary)
	if count > 1 {
		bindings[templates.TokenReason] = templates.Render(tmpl, bindings)
		tmpl = v.replies.WithIssues
	}
	return templates.Render(tmpl, bindings)
}

func (v *Validator) failTemplate(t model.ResultType) string {
	switch t {
	case model.ResultCommentTooShort:
		return v.replies.CommentTooShort
	case model.ResultCannotAwardOP:
		return v.replies.CannotAwardOP
	case model.ResultCannotAwardBot:
		return v.replies.CannotAwardBot
	case model.ResultCannotAwardSelf:
		return v.replies.CannotAwardSelf
	}
	return v.replies.WithIssues
}

func equalNames(a, b string) bool { return strings.EqualFold(a, b) }
