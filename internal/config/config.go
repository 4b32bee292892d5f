package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model. It is loaded once at
// process start and treated as immutable for the process lifetime.
type Config struct {
	Account             AccountConfig     `yaml:"account"`
	Credentials         CredentialsConfig `yaml:"credentials"`
	Forum               ForumConfig       `yaml:"forum"`
	Validation          ValidationConfig  `yaml:"validation"`
	Deltaboard          DeltaboardConfig  `yaml:"deltaboard"`
	Replies             RepliesConfig     `yaml:"replies"`
	Templates           TemplatesConfig   `yaml:"templates"`
	Storage             StorageConfig     `yaml:"storage"`
	Metrics             MetricsConfig     `yaml:"metrics"`
	ReadOnly            bool              `yaml:"readOnly"`
	PollIntervalSeconds int               `yaml:"pollIntervalSeconds"`
}

type AccountConfig struct {
	// The bot's own forum account, used to recognize its prior replies
	// and to forbid awarding deltas to itself.
	Username string `yaml:"username"`
}

type CredentialsConfig struct {
	// API bearer token. If empty, read from env DELTABOT_TOKEN.
	Token string `yaml:"token"`
}

type ForumConfig struct {
	BaseURL   string `yaml:"baseUrl"`
	Community string `yaml:"community"`
	// Published-document paths owned by the bot.
	DeltaboardsPage string `yaml:"deltaboardsPage"`
	SidebarPage     string `yaml:"sidebarPage"`
}

type ValidationConfig struct {
	// Substrings that mark a comment as granting a delta.
	DeltaIndicators []string `yaml:"deltaIndicators"`
	// Minimum body length after quoted lines are stripped.
	MinCommentLength int `yaml:"minCommentLength"`
	// Grace period during which an edit can retract an award.
	HoursToUnawardDelta int `yaml:"hoursToUnawardDelta"`
	// Permit awarding the thread's original poster.
	AllowOPAward bool `yaml:"allowOpAward"`
	// Report the total number of detected issues, not just the first.
	TallyAllIssues bool `yaml:"tallyAllIssues"`
}

type DeltaboardConfig struct {
	RanksToShow int `yaml:"ranksToShow"`
	// Regex with one capture group delimiting the sidebar region the
	// bot owns. Only the captured region is replaced on update.
	SidebarMarker string `yaml:"sidebarMarker"`
}

type RepliesConfig struct {
	DeltaAwarded    string `yaml:"deltaAwarded"`
	CommentTooShort string `yaml:"commentTooShort"`
	CannotAwardOP   string `yaml:"cannotAwardOp"`
	CannotAwardBot  string `yaml:"cannotAwardBot"`
	CannotAwardSelf string `yaml:"cannotAwardSelf"`
	WithIssues      string `yaml:"withIssues"`
	// Outer wrapper every posted reply is embedded in (%body% token).
	Wrapper string `yaml:"wrapper"`
}

// SuccessReplies returns the reply templates that mean an award succeeded.
func (r RepliesConfig) SuccessReplies() []string {
	return []string{r.DeltaAwarded}
}

// FailReplies returns the reply templates that mean validation failed.
func (r RepliesConfig) FailReplies() []string {
	return []string{r.CommentTooShort, r.CannotAwardOP, r.CannotAwardBot, r.CannotAwardSelf, r.WithIssues}
}

type TemplatesConfig struct {
	DeltaboardDocument string `yaml:"deltaboardDocument"`
	Deltaboard         string `yaml:"deltaboard"`
	DeltaboardRow      string `yaml:"deltaboardRow"`
	DeltaboardSidebar  string `yaml:"deltaboardSidebar"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account:     AccountConfig{Username: "DeltaBot"},
		Credentials: CredentialsConfig{Token: ""},
		Forum: ForumConfig{
			BaseURL:         "https://forum.example.com/api",
			Community:       "changemyview",
			DeltaboardsPage: "deltaboards",
			SidebarPage:     "config/sidebar",
		},
		Validation: ValidationConfig{
			DeltaIndicators:     []string{"!delta", "Δ", "&#8710;"},
			MinCommentLength:    50,
			HoursToUnawardDelta: 48,
			AllowOPAward:        false,
			TallyAllIssues:      true,
		},
		Deltaboard: DeltaboardConfig{
			RanksToShow:   10,
			SidebarMarker: `(?s)\[\]\(#deltaboard\)(.*)\[\]\(/deltaboard\)`,
		},
		Replies: RepliesConfig{
			DeltaAwarded:    "Confirmed: 1 delta awarded to /u/%parentauthor%.",
			CommentTooShort: "This comment is too short to explain how your view changed. Write at least %minlength% characters and the delta will be rescanned.",
			CannotAwardOP:   "You cannot award the original poster of this thread a delta.",
			CannotAwardBot:  "You cannot award a delta to the delta system itself.",
			CannotAwardSelf: "You cannot award yourself a delta.",
			WithIssues:      "This delta could not be awarded: %reason% (%issuecount% issues found).",
			Wrapper:         "%body%\n\n---\n\n^(Delta System Explained) ^| ^(Deltaboards)",
		},
		Templates: TemplatesConfig{
			DeltaboardDocument: "# Deltaboards\n\n%daily%\n\n%weekly%\n\n%monthly%\n\n%yearly%\n\n%alltime%\n",
			Deltaboard:         "###### %window% Deltaboard\n\n| Rank | Username | Deltas |\n| :-: | :-: | :-: |\n%rows%\n\n*Updated %date%*",
			DeltaboardRow:      "| %rank% | /u/%username% | %count% |",
			DeltaboardSidebar:  "**Monthly Deltaboard**\n\n%rows%\n\n*Updated %date%*",
		},
		Storage:             StorageConfig{DBPath: "./deltabot.db"},
		Metrics:             MetricsConfig{Addr: ""},
		ReadOnly:            false,
		PollIntervalSeconds: 30,
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.Token == "" {
		c.Credentials.Token = os.Getenv("DELTABOT_TOKEN")
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = os.Getenv("DELTABOT_DB")
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

// Validate rejects configurations the award engine cannot run with.
func (c *Config) Validate() error {
	if c.Account.Username == "" {
		return errors.New("account.username is required")
	}
	if len(c.Validation.DeltaIndicators) == 0 {
		return errors.New("validation.deltaIndicators must not be empty")
	}
	if c.Validation.HoursToUnawardDelta < 0 {
		return fmt.Errorf("validation.hoursToUnawardDelta must be >= 0, got %d", c.Validation.HoursToUnawardDelta)
	}
	if c.Deltaboard.RanksToShow <= 0 {
		return fmt.Errorf("deltaboard.ranksToShow must be > 0, got %d", c.Deltaboard.RanksToShow)
	}
	return nil
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
