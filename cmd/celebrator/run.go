package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"celebrator/internal/bot"
	"celebrator/internal/config"
	"celebrator/internal/observability"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type runFlags struct {
	envFile      string
	server       string
	streamingURL string
	selfID       string
	stream       string
	ledgerPath   string
	cooldown     time.Duration
	milestones   string
	logLevel     string
	logFormat    string
	statusAddr   string
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the streaming API and celebrate milestones until interrupted",
		Long: `Reads MASTODON_SERVER, MASTODON_ACCESS_TOKEN and the optional settings from
the environment and from a dotenv file (".env" by default). Flags override both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []config.Option{config.WithOverrides(flags.overrides(cmd.Flags()))}
			if cmd.Flags().Changed("env-file") {
				opts = append(opts, config.WithEnvFile(flags.envFile))
			}
			cfg, meta, err := config.Load(opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg, meta)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.envFile, "env-file", config.DefaultEnvFile, "dotenv file to read; empty disables file loading")
	f.StringVar(&flags.server, "server", "", "Mastodon server base URL")
	f.StringVar(&flags.streamingURL, "streaming-url", "", "streaming API base URL, defaults to the server")
	f.StringVar(&flags.selfID, "self-id", "", "the bot's own account id; resolved via verify_credentials when empty")
	f.StringVar(&flags.stream, "stream", "", "stream to subscribe to (public, public:local, user)")
	f.StringVar(&flags.ledgerPath, "ledger", "", "path of the milestone ledger")
	f.DurationVar(&flags.cooldown, "cooldown", 0, "delay between reconnects")
	f.StringVar(&flags.milestones, "milestones", "", "comma separated milestone thresholds")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&flags.logFormat, "log-format", "", "text or json")
	f.StringVar(&flags.statusAddr, "status-addr", "", "serve /healthz, /status and /metrics on this address")
	return cmd
}

// overrides maps explicitly set flags onto config overrides.
func (f *runFlags) overrides(set *pflag.FlagSet) config.Overrides {
	var o config.Overrides
	str := func(name string, value string, dst **string) {
		if set.Changed(name) {
			v := value
			*dst = &v
		}
	}
	str("server", f.server, &o.Server)
	str("streaming-url", f.streamingURL, &o.StreamingURL)
	str("self-id", f.selfID, &o.SelfID)
	str("stream", f.stream, &o.Stream)
	str("ledger", f.ledgerPath, &o.LedgerPath)
	str("milestones", f.milestones, &o.Milestones)
	str("log-level", f.logLevel, &o.LogLevel)
	str("log-format", f.logFormat, &o.LogFormat)
	str("status-addr", f.statusAddr, &o.StatusAddr)
	if set.Changed("cooldown") {
		d := f.cooldown
		o.RestartCooldown = &d
	}
	return o
}

func runBot(ctx context.Context, cfg config.RuntimeConfig, meta config.Metadata) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	logger.Info("starting celebrator",
		"version", appVersion(),
		"server", cfg.Server,
		"stream", cfg.Stream,
		"ledger", cfg.LedgerPath,
		"env_file", meta.EnvFile(),
		"token_source", string(meta.Source(config.KeyAccessToken)),
	)

	app, err := bot.New(ctx, cfg, bot.Deps{Logger: logger, Version: appVersion()})
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
