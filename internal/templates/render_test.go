package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubstitutesAllBindings(t *testing.T) {
	got := Render("Hi %username%, rank %rank%", map[string]string{
		TokenUsername: "alice",
		TokenRank:     "3",
	})
	assert.Equal(t, "Hi alice, rank 3", got)
}

func TestRenderLeavesUnknownTextAlone(t *testing.T) {
	got := Render("100% organic %username%", map[string]string{TokenUsername: "bob"})
	assert.Equal(t, "100% organic bob", got)
}

func TestFragmentsSplitsOnTokens(t *testing.T) {
	frags := Fragments("Confirmed: 1 delta awarded to /u/%parentauthor%.")
	assert.Equal(t, []string{"Confirmed: 1 delta awarded to /u/", "."}, frags)
}

func TestMatchesRenderedBody(t *testing.T) {
	tmpl := "Confirmed: 1 delta awarded to /u/%parentauthor%."
	assert.True(t, Matches("Confirmed: 1 delta awarded to /u/bob.", tmpl))
	assert.True(t, Matches("Confirmed: 1 delta awarded to /u/bob.\n\n---\n\nfooter", tmpl))
	assert.False(t, Matches("You cannot award yourself a delta.", tmpl))
}

func TestMatchesRequiresFragmentOrder(t *testing.T) {
	tmpl := "a %username% b"
	assert.True(t, Matches("a x b", tmpl))
	assert.False(t, Matches("b x", tmpl))
}
