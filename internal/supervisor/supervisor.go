// Package supervisor keeps one streaming subscription alive, dispatches its
// events one at a time and reconnects after a cooldown when it ends.
//
// Each subscription runs in an epoch. The epoch is bumped when a
// subscription is opened and again when it is drained, so events still in
// flight from a superseded subscription are recognized and dropped before
// they reach the handler.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "celebrator/internal/errors"
	"celebrator/internal/logging"
	"celebrator/internal/mastodon"
	"celebrator/internal/observability"
)

const (
	DefaultCooldown        = 10 * time.Second
	DefaultTeardownTimeout = 30 * time.Second
	inboxSize              = 64
)

var ErrAlreadyRunning = errors.New("supervisor: already running")

// Subscription is one live event subscription.
type Subscription interface {
	// Events is closed when the subscription ends for any reason.
	Events() <-chan mastodon.Event
	// Err reports why the stream ended; nil for a clean remote close.
	Err() error
	// Unsubscribe must be idempotent and safe after a remote close.
	Unsubscribe() error
}

// Subscriber opens subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context) (Subscription, error)

func (f SubscriberFunc) Subscribe(ctx context.Context) (Subscription, error) {
	return f(ctx)
}

// Handler processes one event. A returned error ends the current epoch.
type Handler interface {
	HandleEvent(ctx context.Context, ev mastodon.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev mastodon.Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, ev mastodon.Event) error {
	return f(ctx, ev)
}

// Config controls reconnect timing and the final teardown.
type Config struct {
	Cooldown time.Duration
	// Storm detection is disabled when StormLimit is 0.
	StormLimit    int
	StormWindow   time.Duration
	StormCooldown time.Duration
	// Teardown runs once after the supervisor terminates, e.g. a ledger flush.
	Teardown        func(ctx context.Context) error
	TeardownTimeout time.Duration
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithMetrics records supervisor metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithClock overrides the clock used for storm detection.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

type envelope struct {
	epoch uint64
	event mastodon.Event
}

// Supervisor owns the subscription lifecycle.
type Supervisor struct {
	cfg        Config
	subscriber Subscriber
	handler    Handler
	logger     logging.Logger
	metrics    *observability.Metrics
	storm      *RestartPolicy
	now        func() time.Time

	inbox chan envelope

	state    atomic.Int32
	epoch    atomic.Uint64
	restarts atomic.Uint64
	running  atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}

	mu             sync.Mutex
	lastErr        error
	streamingSince time.Time
}

// New returns an idle supervisor.
func New(cfg Config, subscriber Subscriber, handler Handler, logger logging.Logger, opts ...Option) (*Supervisor, error) {
	if subscriber == nil {
		return nil, errors.New("supervisor: subscriber is required")
	}
	if handler == nil {
		return nil, errors.New("supervisor: handler is required")
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}
	s := &Supervisor{
		cfg:        cfg,
		subscriber: subscriber,
		handler:    handler,
		logger:     logging.OrNop(logger),
		storm:      NewRestartPolicy(cfg.StormLimit, cfg.StormWindow, cfg.StormCooldown),
		now:        time.Now,
		inbox:      make(chan envelope, inboxSize),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Epoch returns the current epoch.
func (s *Supervisor) Epoch() uint64 {
	return s.epoch.Load()
}

// Status returns a snapshot for status reporting.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:          s.State().String(),
		Epoch:          s.Epoch(),
		Restarts:       s.restarts.Load(),
		StreamingSince: s.streamingSince,
	}
	if s.storm != nil {
		st.StormRestarts = s.storm.RestartCount(s.now())
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Stop requests shutdown. It is equivalent to cancelling the context passed
// to Run and may be called from any goroutine, any number of times.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run connects, dispatches and reconnects until ctx is cancelled or Stop is
// called. Connect, stream and handler failures only end the current epoch.
// After termination the configured teardown runs and its error, if any, is
// returned.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	for runCtx.Err() == nil {
		s.runEpoch(runCtx)
		if runCtx.Err() != nil {
			break
		}
		if !s.coolDown(runCtx) {
			break
		}
	}

	s.setState(StateTerminated)
	s.logger.Info("supervisor: terminated at epoch %d", s.Epoch())
	return s.teardown(ctx)
}

func (s *Supervisor) runEpoch(ctx context.Context) {
	s.setState(StateConnecting)
	epoch := s.bumpEpoch()
	logID := logging.NewLogID()
	ctx = logging.ContextWithLogID(ctx, logID)
	logger := logging.WithLogID(s.logger, logID)
	logger.Info("supervisor: connecting, epoch %d", epoch)

	sub, err := s.subscriber.Subscribe(ctx)
	s.metrics.ObserveSubscribe(err)
	if err != nil {
		if ctx.Err() == nil {
			s.recordErr(err)
			logger.Warn("supervisor: subscribe failed (%s): %v", apperrors.Classify(err), err)
		}
		return
	}

	quit := make(chan struct{})
	ended := make(chan struct{})
	go s.pump(epoch, sub.Events(), quit, ended)

	s.setState(StateStreaming)
	s.mu.Lock()
	s.streamingSince = s.now()
	s.mu.Unlock()

	if err := s.dispatch(ctx, logger, ended); err != nil {
		s.recordErr(err)
		logger.Warn("supervisor: epoch %d ended (%s): %v", epoch, apperrors.Classify(err), err)
	} else if ctx.Err() == nil {
		if streamErr := sub.Err(); streamErr != nil {
			s.recordErr(streamErr)
			logger.Warn("supervisor: stream failed (%s): %v", apperrors.Classify(streamErr), streamErr)
		} else {
			logger.Info("supervisor: stream closed by server")
		}
	}

	s.drain(sub, quit, logger)
}

// pump forwards events into the shared inbox tagged with their epoch. It
// closes ended only when the subscription itself ends.
func (s *Supervisor) pump(epoch uint64, events <-chan mastodon.Event, quit <-chan struct{}, ended chan<- struct{}) {
	for {
		select {
		case <-quit:
			return
		case ev, ok := <-events:
			if !ok {
				close(ended)
				return
			}
			select {
			case s.inbox <- envelope{epoch: epoch, event: ev}:
			case <-quit:
				return
			}
		}
	}
}

// dispatch hands events to the handler one at a time until the stream ends,
// the context is cancelled or the handler fails.
func (s *Supervisor) dispatch(ctx context.Context, logger logging.Logger, ended <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-s.inbox:
			if err := s.deliver(ctx, logger, env); err != nil {
				return err
			}
		case <-ended:
			// The pump closes ended after its last send; flush what it queued.
			for {
				select {
				case env := <-s.inbox:
					if err := s.deliver(ctx, logger, env); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}

func (s *Supervisor) deliver(ctx context.Context, logger logging.Logger, env envelope) (err error) {
	if env.epoch != s.epoch.Load() {
		s.metrics.IncStaleEvent()
		logger.Debug("supervisor: dropped %s event from stale epoch %d", env.event.Kind(), env.epoch)
		return nil
	}
	s.metrics.ObserveEvent(string(env.event.Kind()))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if err := s.handler.HandleEvent(ctx, env.event); err != nil && ctx.Err() == nil {
		return fmt.Errorf("handle %s event: %w", env.event.Kind(), err)
	}
	return nil
}

func (s *Supervisor) drain(sub Subscription, quit chan struct{}, logger logging.Logger) {
	s.setState(StateDraining)
	close(quit)
	if err := sub.Unsubscribe(); err != nil {
		logger.Warn("supervisor: unsubscribe failed: %v", err)
	}
	epoch := s.bumpEpoch()
	s.mu.Lock()
	s.streamingSince = time.Time{}
	s.mu.Unlock()
	logger.Debug("supervisor: drained, epoch now %d", epoch)
}

// coolDown waits before the next connect. It returns false if the wait was
// interrupted by shutdown.
func (s *Supervisor) coolDown(ctx context.Context) bool {
	s.setState(StateCoolingDown)
	s.restarts.Add(1)
	s.metrics.IncRestart()

	delay := s.cfg.Cooldown
	if s.storm != nil {
		now := s.now()
		s.storm.RecordRestart(now)
		if !s.storm.ShouldRestart(now) {
			s.storm.EnterCooldown(now)
			if s.storm.CooldownDuration > delay {
				delay = s.storm.CooldownDuration
			}
			s.logger.Warn("supervisor: %d restarts within %s, backing off for %s",
				s.storm.MaxInWindow, s.storm.WindowDuration, delay)
		}
	}

	s.logger.Info("supervisor: reconnecting in %s", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Supervisor) teardown(parent context.Context) error {
	if s.cfg.Teardown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.TeardownTimeout)
	defer cancel()
	if err := s.cfg.Teardown(ctx); err != nil {
		s.logger.Error("supervisor: teardown failed: %v", err)
		return fmt.Errorf("teardown: %w", err)
	}
	return nil
}

func (s *Supervisor) bumpEpoch() uint64 {
	epoch := s.epoch.Add(1)
	s.metrics.SetEpoch(epoch)
	return epoch
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Supervisor) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
