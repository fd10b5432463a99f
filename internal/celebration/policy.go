// Package celebration decides which celebratory posts an observed account
// earns and publishes them at most once per (milestone, account).
package celebration

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "celebrator/internal/errors"
	"celebrator/internal/ledger"
	"celebrator/internal/logging"
	"celebrator/internal/mastodon"
	"celebrator/internal/milestone"
	"celebrator/internal/observability"
)

// Kind labels a celebration in logs and metrics.
type Kind string

const (
	KindNewMember Kind = "new_member"
	KindMilestone Kind = "milestone"
)

// Poster publishes a status.
type Poster interface {
	PostStatus(ctx context.Context, text string, visibility mastodon.Visibility) (mastodon.Status, error)
}

// Celebration is one post that was published and recorded.
type Celebration struct {
	Kind      Kind
	Milestone int64
	Text      string
	StatusID  string
}

// Config holds the policy settings.
type Config struct {
	SelfID      string
	Milestones  milestone.Set // zero value means milestone.Default()
	Visibility  mastodon.Visibility
	TrackerSize int
}

// Option customizes a Policy.
type Option func(*Policy)

// WithClock overrides the clock used for account age.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMetrics records celebration and ledger metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Policy) {
		p.metrics = m
	}
}

// Policy evaluates account snapshots. It owns the ledger and must be driven
// by a single goroutine.
type Policy struct {
	selfID     string
	milestones milestone.Set
	visibility mastodon.Visibility
	ledger     *ledger.Ledger
	poster     Poster
	tracker    *Tracker
	logger     logging.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewPolicy builds a policy on top of an already loaded ledger.
func NewPolicy(cfg Config, store *ledger.Ledger, poster Poster, logger logging.Logger, opts ...Option) (*Policy, error) {
	if store == nil {
		return nil, errors.New("celebration: ledger is required")
	}
	if poster == nil {
		return nil, errors.New("celebration: poster is required")
	}
	milestones := cfg.Milestones
	if milestones.Len() == 0 {
		milestones = milestone.Default()
	}
	visibility := cfg.Visibility
	if visibility == "" {
		visibility = mastodon.VisibilityPublic
	}
	tracker, err := NewTracker(milestones, cfg.TrackerSize)
	if err != nil {
		return nil, err
	}
	p := &Policy{
		selfID:     strings.TrimSpace(cfg.SelfID),
		milestones: milestones,
		visibility: visibility,
		ledger:     store,
		poster:     poster,
		tracker:    tracker,
		logger:     logging.OrNop(logger),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics.SetLedgerEntries(store.Len())
	return p, nil
}

// Evaluate publishes every celebration acct earns and has not received yet.
// The new-member and milestone rules are checked independently. A failed
// post is logged and skipped; it leaves no ledger entry.
func (p *Policy) Evaluate(ctx context.Context, acct mastodon.Account) []Celebration {
	if acct.ID == "" || (p.selfID != "" && acct.ID == p.selfID) {
		return nil
	}
	days := daysSince(acct.CreatedAt, p.now())

	var out []Celebration
	if acct.StatusesCount == milestone.NewMember && !p.ledger.Has(milestone.NewMember, acct.ID) {
		if c, ok := p.publish(ctx, acct, KindNewMember, milestone.NewMember, NewMemberText(acct, days)); ok {
			out = append(out, c)
		}
	}
	if p.milestones.Contains(acct.StatusesCount) && !p.ledger.Has(acct.StatusesCount, acct.ID) {
		m := acct.StatusesCount
		if c, ok := p.publish(ctx, acct, KindMilestone, m, MilestoneText(acct, m, days)); ok {
			out = append(out, c)
		}
	}
	return out
}

func (p *Policy) publish(ctx context.Context, acct mastodon.Account, kind Kind, key int64, text string) (Celebration, bool) {
	logger := logging.FromContext(ctx, p.logger)
	status, err := p.poster.PostStatus(ctx, text, p.visibility)
	p.metrics.ObserveCelebration(string(kind), err)
	if err != nil {
		logger.Error("celebrate %s %d for @%s failed (%s): %v", kind, key, acct.Username, apperrors.Classify(err), err)
		return Celebration{}, false
	}
	logger.Info("%s", strings.ReplaceAll(text, "\n", ""))

	p.ledger.Add(key, acct, status.ID)
	p.metrics.SetLedgerEntries(p.ledger.Len())
	if err := p.ledger.Save(); err != nil {
		p.metrics.IncLedgerSaveFailure()
		logger.Error("ledger save failed, entry kept in memory: %v", err)
	}
	return Celebration{Kind: kind, Milestone: key, Text: text, StatusID: status.ID}, true
}

// Observe logs the count of an account and any milestones it skipped past.
func (p *Policy) Observe(acct mastodon.Account) {
	if next, ok := p.milestones.Next(acct.StatusesCount); ok {
		p.logger.Debug("%s: %d (%d)", acct.Username, acct.StatusesCount, next-acct.StatusesCount)
	} else {
		p.logger.Debug("%s: %d", acct.Username, acct.StatusesCount)
	}
	if skipped := p.tracker.Observe(acct.ID, acct.StatusesCount); len(skipped) > 0 {
		p.logger.Info("@%s skipped milestones %v between observations", acct.Username, skipped)
	}
}
