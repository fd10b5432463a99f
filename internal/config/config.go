package config

import (
	"errors"
	"fmt"
	"time"

	"celebrator/internal/milestone"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

// Environment keys.
const (
	KeyServer            = "MASTODON_SERVER"
	KeyStreamingURL      = "MASTODON_STREAMING_API_URL"
	KeyAccessToken       = "MASTODON_ACCESS_TOKEN"
	KeySelfID            = "MASTODON_SELF_BOT_ID"
	KeyStream            = "MASTODON_STREAM"
	KeyLedgerPath        = "LEDGER_PATH"
	KeyRestartCooldown   = "RESTART_COOLDOWN"
	KeyMilestones        = "MILESTONES"
	KeyLogLevel          = "LOG_LEVEL"
	KeyLogFormat         = "LOG_FORMAT"
	KeyStatusAddr        = "STATUS_ADDR"
	KeyStreamIdleTimeout = "STREAM_IDLE_TIMEOUT"
	KeyStormLimit        = "RESTART_STORM_LIMIT"
	KeyStormWindow       = "RESTART_STORM_WINDOW"
	KeyStormCooldown     = "RESTART_STORM_COOLDOWN"
)

const (
	DefaultEnvFile           = ".env"
	DefaultStream            = "public:local"
	DefaultLedgerPath        = "./data/milestone_log.json"
	DefaultRestartCooldown   = 10 * time.Second
	DefaultStreamIdleTimeout = 2 * time.Minute
	DefaultStormWindow       = 10 * time.Minute
	DefaultStormCooldown     = 5 * time.Minute
)

// RuntimeConfig captures everything the bot needs to run.
type RuntimeConfig struct {
	Server            string
	StreamingURL      string
	AccessToken       string
	SelfID            string
	Stream            string
	LedgerPath        string
	RestartCooldown   time.Duration
	Milestones        milestone.Set
	LogLevel          string
	LogFormat         string
	StatusAddr        string
	StreamIdleTimeout time.Duration
	StormLimit        int
	StormWindow       time.Duration
	StormCooldown     time.Duration
}

// Defaults returns the configuration used before any source is applied.
func Defaults() RuntimeConfig {
	return RuntimeConfig{
		Stream:            DefaultStream,
		LedgerPath:        DefaultLedgerPath,
		RestartCooldown:   DefaultRestartCooldown,
		Milestones:        milestone.Default(),
		LogLevel:          "info",
		LogFormat:         "text",
		StreamIdleTimeout: DefaultStreamIdleTimeout,
		StormWindow:       DefaultStormWindow,
		StormCooldown:     DefaultStormCooldown,
	}
}

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
	envFile  string
}

// Source returns the origin for the given key.
func (m Metadata) Source(key string) ValueSource {
	if m.sources == nil {
		return SourceDefault
	}
	if src, ok := m.sources[key]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// EnvFile returns the dotenv file that was read, or "" if none was.
func (m Metadata) EnvFile() string {
	return m.envFile
}

// Overrides conveys caller-specified values that win over file and env.
type Overrides struct {
	Server          *string
	StreamingURL    *string
	AccessToken     *string
	SelfID          *string
	Stream          *string
	LedgerPath      *string
	RestartCooldown *time.Duration
	Milestones      *string
	LogLevel        *string
	LogFormat       *string
	StatusAddr      *string
}

// ErrMissing marks a required key with no value.
var ErrMissing = errors.New("is required")

// Error is a configuration problem. It is fatal before the bot starts.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
