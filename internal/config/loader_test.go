package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func emptyEnv() Option {
	return WithEnv(MapEnvLookup(nil))
}

func TestLoadFromEnvFile(t *testing.T) {
	path := writeEnvFile(t,
		"MASTODON_SERVER=https://example.social/",
		"MASTODON_STREAMING_API_URL=wss://streaming.example.social",
		`MASTODON_ACCESS_TOKEN="file-token"`,
		"MASTODON_SELF_BOT_ID=109",
	)

	cfg, meta, err := Load(WithEnvFile(path), emptyEnv())
	require.NoError(t, err)
	require.Equal(t, "https://example.social", cfg.Server)
	require.Equal(t, "wss://streaming.example.social", cfg.StreamingURL)
	require.Equal(t, "file-token", cfg.AccessToken)
	require.Equal(t, "109", cfg.SelfID)
	require.Equal(t, DefaultStream, cfg.Stream)
	require.Equal(t, DefaultLedgerPath, cfg.LedgerPath)
	require.Equal(t, DefaultRestartCooldown, cfg.RestartCooldown)
	require.Equal(t, 19, cfg.Milestones.Len())

	require.Equal(t, SourceFile, meta.Source(KeyServer))
	require.Equal(t, SourceDefault, meta.Source(KeyLedgerPath))
	require.Equal(t, path, meta.EnvFile())
	require.False(t, meta.LoadedAt().IsZero())
}

func TestPrecedenceOverridesEnvOverFile(t *testing.T) {
	path := writeEnvFile(t,
		"MASTODON_SERVER=https://file.example",
		"MASTODON_ACCESS_TOKEN=file-token",
		"RESTART_COOLDOWN=30s",
		"LEDGER_PATH=/var/lib/celebrator/file.json",
	)
	env := MapEnvLookup(map[string]string{
		"MASTODON_ACCESS_TOKEN": "env-token",
		"RESTART_COOLDOWN":      "45",
		"MILESTONES":            "10, 1_000",
	})
	ledger := "/tmp/override.json"
	cooldown := 2 * time.Second

	cfg, meta, err := Load(WithEnvFile(path), WithEnv(env), WithOverrides(Overrides{
		LedgerPath:      &ledger,
		RestartCooldown: &cooldown,
	}))
	require.NoError(t, err)

	require.Equal(t, "https://file.example", cfg.Server)
	require.Equal(t, "https://file.example", cfg.StreamingURL, "streaming url defaults to the server")
	require.Equal(t, "env-token", cfg.AccessToken)
	require.Equal(t, ledger, cfg.LedgerPath)
	require.Equal(t, cooldown, cfg.RestartCooldown)
	require.Equal(t, []int64{10, 1000}, cfg.Milestones.Values())

	require.Equal(t, SourceFile, meta.Source(KeyServer))
	require.Equal(t, SourceEnv, meta.Source(KeyAccessToken))
	require.Equal(t, SourceEnv, meta.Source(KeyMilestones))
	require.Equal(t, SourceOverride, meta.Source(KeyLedgerPath))
	require.Equal(t, SourceOverride, meta.Source(KeyRestartCooldown))
}

func TestMissingDefaultEnvFileIsIgnored(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	env := MapEnvLookup(map[string]string{
		"MASTODON_SERVER":       "https://example.social",
		"MASTODON_ACCESS_TOKEN": "token",
	})
	_, meta, err := Load(WithEnv(env))
	require.NoError(t, err)
	require.Empty(t, meta.EnvFile())
}

func TestExplicitMissingEnvFileFails(t *testing.T) {
	_, _, err := Load(WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), emptyEnv())
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
}

func TestRequiredKeys(t *testing.T) {
	_, _, err := Load(WithEnvFile(""), emptyEnv())
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, KeyServer, cfgErr.Key)
	require.True(t, errors.Is(err, ErrMissing))
	require.Equal(t, "config: MASTODON_SERVER is required", err.Error())

	_, _, err = Load(WithEnvFile(""), WithEnv(MapEnvLookup(map[string]string{
		"MASTODON_SERVER": "https://example.social",
	})))
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, KeyAccessToken, cfgErr.Key)
}

func TestInvalidValues(t *testing.T) {
	base := map[string]string{
		"MASTODON_SERVER":       "https://example.social",
		"MASTODON_ACCESS_TOKEN": "token",
	}
	cases := map[string]struct {
		key   string
		value string
	}{
		"server scheme":    {KeyServer, "ftp://example.social"},
		"server relative":  {KeyServer, "example.social"},
		"streaming scheme": {KeyStreamingURL, "gopher://example.social"},
		"cooldown garbage": {KeyRestartCooldown, "soon"},
		"cooldown zero":    {KeyRestartCooldown, "0s"},
		"milestones order": {KeyMilestones, "200,100"},
		"milestones one":   {KeyMilestones, "1,100"},
		"log format":       {KeyLogFormat, "xml"},
		"storm limit":      {KeyStormLimit, "many"},
		"negative storm":   {KeyStormLimit, "-1"},
		"idle timeout":     {KeyStreamIdleTimeout, "-5s"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env := map[string]string{}
			for k, v := range base {
				env[k] = v
			}
			env[tc.key] = tc.value
			_, _, err := Load(WithEnvFile(""), WithEnv(MapEnvLookup(env)))
			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tc.key, cfgErr.Key)
		})
	}
}

func TestStormSettings(t *testing.T) {
	cfg, _, err := Load(WithEnvFile(""), WithEnv(MapEnvLookup(map[string]string{
		"MASTODON_SERVER":        "https://example.social",
		"MASTODON_ACCESS_TOKEN":  "token",
		"RESTART_STORM_LIMIT":    "5",
		"RESTART_STORM_WINDOW":   "2m",
		"RESTART_STORM_COOLDOWN": "15m",
		"STREAM_IDLE_TIMEOUT":    "90s",
		"LOG_LEVEL":              "DEBUG",
		"LOG_FORMAT":             "JSON",
	})))
	require.NoError(t, err)
	require.Equal(t, 5, cfg.StormLimit)
	require.Equal(t, 2*time.Minute, cfg.StormWindow)
	require.Equal(t, 15*time.Minute, cfg.StormCooldown)
	require.Equal(t, 90*time.Second, cfg.StreamIdleTimeout)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
}
