// Package bot wires configuration, the Mastodon clients, the ledger, the
// celebration policy and the stream supervisor into a runnable process.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"celebrator/internal/celebration"
	"celebrator/internal/config"
	"celebrator/internal/ledger"
	"celebrator/internal/logging"
	"celebrator/internal/mastodon"
	"celebrator/internal/observability"
	"celebrator/internal/server"
	"celebrator/internal/supervisor"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// RESTClient is the subset of the Mastodon REST API the bot calls.
type RESTClient interface {
	celebration.Poster
	VerifyCredentials(ctx context.Context) (mastodon.Account, error)
}

// Deps carries optional collaborators. Nil fields are built from the config.
type Deps struct {
	Logger     *observability.Logger
	Registry   *prometheus.Registry
	REST       RESTClient
	Subscriber supervisor.Subscriber
	Version    string
}

// App is a fully wired bot.
type App struct {
	cfg        config.RuntimeConfig
	ledger     *ledger.Ledger
	policy     *celebration.Policy
	supervisor *supervisor.Supervisor
	status     *server.StatusServer
	logger     logging.Logger
}

// New validates dependencies, loads the ledger and resolves the bot's own
// account id. Any error here is fatal: the supervisor has not started.
func New(ctx context.Context, cfg config.RuntimeConfig, deps Deps) (*App, error) {
	obs := deps.Logger
	if obs == nil {
		obs = observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}
	logger := logging.FromObservabilityWithComponent(obs, "bot")

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	store := ledger.New(cfg.LedgerPath)
	if err := store.Load(); err != nil {
		return nil, err
	}
	logger.Info("ledger %s loaded with %d entries", store.Path(), store.Len())

	rest := deps.REST
	if rest == nil {
		client, err := mastodon.NewRESTClient(mastodon.RESTConfig{
			Server:      cfg.Server,
			AccessToken: cfg.AccessToken,
			UserAgent:   userAgent(deps.Version),
		})
		if err != nil {
			return nil, err
		}
		rest = client
	}

	selfID := strings.TrimSpace(cfg.SelfID)
	if selfID == "" {
		me, err := rest.VerifyCredentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve bot account: %w", err)
		}
		if me.ID == "" {
			return nil, errors.New("resolve bot account: empty account id")
		}
		selfID = me.ID
		logger.Info("running as @%s (%s)", me.Username, me.ID)
	}

	policy, err := celebration.NewPolicy(celebration.Config{
		SelfID:     selfID,
		Milestones: cfg.Milestones,
	}, store, rest, logging.FromObservabilityWithComponent(obs, "celebration"), celebration.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	subscriber := deps.Subscriber
	if subscriber == nil {
		streaming, err := mastodon.NewStreamingClient(mastodon.StreamingConfig{
			BaseURL:     cfg.StreamingURL,
			AccessToken: cfg.AccessToken,
			Stream:      cfg.Stream,
			IdleTimeout: cfg.StreamIdleTimeout,
		}, logging.FromObservabilityWithComponent(obs, "streaming"))
		if err != nil {
			return nil, err
		}
		subscriber = StreamingSubscriber(streaming)
	}

	sup, err := supervisor.New(supervisor.Config{
		Cooldown:      cfg.RestartCooldown,
		StormLimit:    cfg.StormLimit,
		StormWindow:   cfg.StormWindow,
		StormCooldown: cfg.StormCooldown,
		Teardown: func(context.Context) error {
			if err := store.Save(); err != nil {
				metrics.IncLedgerSaveFailure()
				return fmt.Errorf("flush ledger: %w", err)
			}
			logger.Info("ledger flushed with %d entries", store.Len())
			return nil
		},
	}, subscriber, policy, logging.FromObservabilityWithComponent(obs, "supervisor"), supervisor.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:        cfg,
		ledger:     store,
		policy:     policy,
		supervisor: sup,
		logger:     logger,
	}
	if cfg.StatusAddr != "" {
		app.status = server.NewStatusServer(server.Config{Addr: cfg.StatusAddr}, sup, registry,
			logging.FromObservabilityWithComponent(obs, "status"))
	}
	return app, nil
}

// Run blocks until ctx is cancelled or Stop is called, then flushes the
// ledger. The status server, when enabled, runs alongside and stops with the
// supervisor.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	statusCtx, stopStatus := context.WithCancel(gctx)
	defer stopStatus()

	g.Go(func() error {
		defer stopStatus()
		return a.supervisor.Run(gctx)
	})
	if a.status != nil {
		g.Go(func() error {
			return a.status.Run(statusCtx)
		})
	}
	err := g.Wait()
	a.logger.Info("bot stopped")
	return err
}

// Stop requests a graceful shutdown.
func (a *App) Stop() {
	a.supervisor.Stop()
}

// Supervisor exposes the supervisor for status reporting.
func (a *App) Supervisor() *supervisor.Supervisor {
	return a.supervisor
}

// StreamingSubscriber adapts a streaming client to the supervisor.
func StreamingSubscriber(client *mastodon.StreamingClient) supervisor.Subscriber {
	return supervisor.SubscriberFunc(func(ctx context.Context) (supervisor.Subscription, error) {
		sub, err := client.Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})
}

func userAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return "celebrator/" + version
}
