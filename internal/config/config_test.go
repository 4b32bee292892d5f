package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "DeltaBot", cfg.Account.Username)
	assert.Contains(t, cfg.Validation.DeltaIndicators, "!delta")
	assert.Equal(t, 48, cfg.Validation.HoursToUnawardDelta)
	assert.Equal(t, 10, cfg.Deltaboard.RanksToShow)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := map[string]func(*Config){
		"empty username":  func(c *Config) { c.Account.Username = "" },
		"no indicators":   func(c *Config) { c.Validation.DeltaIndicators = nil },
		"negative window": func(c *Config) { c.Validation.HoursToUnawardDelta = -1 },
		"zero ranks":      func(c *Config) { c.Deltaboard.RanksToShow = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "deltabot.yaml")
	want := Default()
	want.Forum.Community = "testcommunity"
	want.ReadOnly = true
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.Forum.Community, got.Forum.Community)
	assert.True(t, got.ReadOnly)
	assert.Equal(t, want.Replies, got.Replies)
	assert.Equal(t, want.Templates, got.Templates)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestResolveEnvFillsToken(t *testing.T) {
	t.Setenv("DELTABOT_TOKEN", "env-secret")
	cfg := Default()
	cfg.ResolveEnv()
	assert.Equal(t, "env-secret", cfg.Credentials.Token)

	cfg.Credentials.Token = "explicit"
	cfg.ResolveEnv()
	assert.Equal(t, "explicit", cfg.Credentials.Token)
}

func TestFailRepliesCoverEveryIssue(t *testing.T) {
	r := Default().Replies
	assert.Len(t, r.SuccessReplies(), 1)
	assert.Len(t, r.FailReplies(), 5)
	for _, tpl := range r.FailReplies() {
		assert.NotEmpty(t, tpl)
	}
}
