package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"celebrator/internal/milestone"

	"github.com/spf13/viper"
)

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	envFile    string
	envFileSet bool
	overrides  Overrides
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithEnvFile reads the given dotenv file. Unlike the default ".env", an
// explicitly named file must exist. An empty path disables file loading.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) {
		o.envFile = path
		o.envFileSet = true
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnvLookup serves values from a map, used by tests and the CLI.
func MapEnvLookup(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

type setter func(cfg *RuntimeConfig, raw string) error

var fields = []struct {
	key string
	set setter
}{
	{KeyServer, func(c *RuntimeConfig, v string) error { c.Server = v; return nil }},
	{KeyStreamingURL, func(c *RuntimeConfig, v string) error { c.StreamingURL = v; return nil }},
	{KeyAccessToken, func(c *RuntimeConfig, v string) error { c.AccessToken = v; return nil }},
	{KeySelfID, func(c *RuntimeConfig, v string) error { c.SelfID = v; return nil }},
	{KeyStream, func(c *RuntimeConfig, v string) error { c.Stream = v; return nil }},
	{KeyLedgerPath, func(c *RuntimeConfig, v string) error { c.LedgerPath = v; return nil }},
	{KeyRestartCooldown, durationSetter(func(c *RuntimeConfig) *time.Duration { return &c.RestartCooldown })},
	{KeyMilestones, func(c *RuntimeConfig, v string) error {
		set, err := milestone.Parse(v)
		if err != nil {
			return err
		}
		c.Milestones = set
		return nil
	}},
	{KeyLogLevel, func(c *RuntimeConfig, v string) error { c.LogLevel = strings.ToLower(v); return nil }},
	{KeyLogFormat, func(c *RuntimeConfig, v string) error { c.LogFormat = strings.ToLower(v); return nil }},
	{KeyStatusAddr, func(c *RuntimeConfig, v string) error { c.StatusAddr = v; return nil }},
	{KeyStreamIdleTimeout, durationSetter(func(c *RuntimeConfig) *time.Duration { return &c.StreamIdleTimeout })},
	{KeyStormLimit, func(c *RuntimeConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("must be an integer: %w", err)
		}
		c.StormLimit = n
		return nil
	}},
	{KeyStormWindow, durationSetter(func(c *RuntimeConfig) *time.Duration { return &c.StormWindow })},
	{KeyStormCooldown, durationSetter(func(c *RuntimeConfig) *time.Duration { return &c.StormCooldown })},
}

func durationSetter(target func(*RuntimeConfig) *time.Duration) setter {
	return func(c *RuntimeConfig, v string) error {
		d, err := parseDuration(v)
		if err != nil {
			return err
		}
		*target(c) = d
		return nil
	}
}

// parseDuration accepts Go durations ("30s") and bare seconds ("30").
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("must be a duration: %w", err)
	}
	return d, nil
}

// Load merges defaults, the dotenv file, the environment and overrides, in
// that order, then validates the result.
func Load(opts ...Option) (RuntimeConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		envFile:   DefaultEnvFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := Defaults()
	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	if err := applyFile(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	if err := applyEnv(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	if err := applyOverrides(&cfg, &meta, options.overrides); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	if err := Validate(&cfg); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	return cfg, meta, nil
}

func applyFile(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	path := strings.TrimSpace(opts.envFile)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !opts.envFileSet {
			return nil
		}
		return &Error{Err: fmt.Errorf("env file %s: %w", path, err)}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return &Error{Err: fmt.Errorf("read env file %s: %w", path, err)}
	}
	meta.envFile = path

	for _, f := range fields {
		if !v.IsSet(f.key) {
			continue
		}
		value := strings.TrimSpace(v.GetString(f.key))
		if value == "" {
			continue
		}
		if err := f.set(cfg, value); err != nil {
			return &Error{Key: f.key, Err: err}
		}
		meta.sources[f.key] = SourceFile
	}
	return nil
}

func applyEnv(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	lookup := opts.envLookup
	if lookup == nil {
		lookup = DefaultEnvLookup
	}
	for _, f := range fields {
		value, ok := lookup(f.key)
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		if err := f.set(cfg, value); err != nil {
			return &Error{Key: f.key, Err: err}
		}
		meta.sources[f.key] = SourceEnv
	}
	return nil
}

func applyOverrides(cfg *RuntimeConfig, meta *Metadata, overrides Overrides) error {
	strs := []struct {
		key   string
		value *string
	}{
		{KeyServer, overrides.Server},
		{KeyStreamingURL, overrides.StreamingURL},
		{KeyAccessToken, overrides.AccessToken},
		{KeySelfID, overrides.SelfID},
		{KeyStream, overrides.Stream},
		{KeyLedgerPath, overrides.LedgerPath},
		{KeyMilestones, overrides.Milestones},
		{KeyLogLevel, overrides.LogLevel},
		{KeyLogFormat, overrides.LogFormat},
		{KeyStatusAddr, overrides.StatusAddr},
	}
	for _, o := range strs {
		if o.value == nil {
			continue
		}
		if err := lookupField(o.key)(cfg, strings.TrimSpace(*o.value)); err != nil {
			return &Error{Key: o.key, Err: err}
		}
		meta.sources[o.key] = SourceOverride
	}
	if overrides.RestartCooldown != nil {
		cfg.RestartCooldown = *overrides.RestartCooldown
		meta.sources[KeyRestartCooldown] = SourceOverride
	}
	return nil
}

func lookupField(key string) setter {
	for _, f := range fields {
		if f.key == key {
			return f.set
		}
	}
	return func(*RuntimeConfig, string) error { return fmt.Errorf("unknown key") }
}

// Validate checks required values and fills derived defaults.
func Validate(cfg *RuntimeConfig) error {
	cfg.Server = strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	if cfg.Server == "" {
		return &Error{Key: KeyServer, Err: ErrMissing}
	}
	if err := validateURL(cfg.Server, "http", "https"); err != nil {
		return &Error{Key: KeyServer, Err: err}
	}
	if strings.TrimSpace(cfg.StreamingURL) == "" {
		cfg.StreamingURL = cfg.Server
	}
	if err := validateURL(cfg.StreamingURL, "http", "https", "ws", "wss"); err != nil {
		return &Error{Key: KeyStreamingURL, Err: err}
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return &Error{Key: KeyAccessToken, Err: ErrMissing}
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = DefaultLedgerPath
	}
	if cfg.RestartCooldown <= 0 {
		return &Error{Key: KeyRestartCooldown, Err: errors.New("must be positive")}
	}
	if cfg.StreamIdleTimeout <= 0 {
		return &Error{Key: KeyStreamIdleTimeout, Err: errors.New("must be positive")}
	}
	if cfg.Milestones.Len() == 0 {
		cfg.Milestones = milestone.Default()
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return &Error{Key: KeyLogFormat, Err: fmt.Errorf("must be text or json, got %q", cfg.LogFormat)}
	}
	if cfg.StormLimit < 0 {
		return &Error{Key: KeyStormLimit, Err: errors.New("must not be negative")}
	}
	if cfg.StormLimit > 0 {
		if cfg.StormWindow <= 0 {
			return &Error{Key: KeyStormWindow, Err: errors.New("must be positive when storm detection is enabled")}
		}
		if cfg.StormCooldown <= 0 {
			return &Error{Key: KeyStormCooldown, Err: errors.New("must be positive when storm detection is enabled")}
		}
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("must be an absolute URL, got %q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("must use one of %v, got %q", schemes, u.Scheme)
}
