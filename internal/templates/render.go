package templates

import "strings"

// Replace tokens understood by the reply and deltaboard templates.
const (
	TokenUsername     = "%username%"
	TokenParentAuthor = "%parentauthor%"
	TokenIssueCount   = "%issuecount%"
	TokenReason       = "%reason%"
	TokenMinLength    = "%minlength%"
	TokenBody         = "%body%"
	TokenCommunity    = "%community%"
	TokenDate         = "%date%"
	TokenWindow       = "%window%"
	TokenRows         = "%rows%"
	TokenRank         = "%rank%"
	TokenCount        = "%count%"
	TokenDaily        = "%daily%"
	TokenWeekly       = "%weekly%"
	TokenMonthly      = "%monthly%"
	TokenYearly       = "%yearly%"
	TokenAllTime      = "%alltime%"
)

// Render substitutes every binding token with its value. Plain textual
// replacement only; templates never nest or escape.
func Render(template string, bindings map[string]string) string {
	out := template
	for token, value := range bindings {
		out = strings.ReplaceAll(out, token, value)
	}
	return out
}

// Tokens lists every token a template may carry, used to split
// templates into literal fragments for reply classification.
func Tokens() []string {
	return []string{
		TokenUsername, TokenParentAuthor, TokenIssueCount, TokenReason,
		TokenMinLength, TokenBody, TokenCommunity, TokenDate, TokenWindow,
		TokenRows, TokenRank, TokenCount, TokenDaily, TokenWeekly,
		TokenMonthly, TokenYearly, TokenAllTime,
	}
}

// Fragments splits a template into its literal, token-free pieces in
// order of appearance. Empty pieces are dropped.
func Fragments(template string) []string {
	parts := []string{template}
	for _, token := range Tokens() {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, token)...)
		}
		parts = next
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Matches reports whether body was rendered from template: every
// literal fragment of the template must appear in the body in order.
func Matches(body, template string) bool {
	rest := body
	for _, frag := range Fragments(template) {
		idx := strings.Index(rest, frag)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(frag):]
	}
	return true
}
