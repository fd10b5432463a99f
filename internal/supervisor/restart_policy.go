package supervisor

import (
	"sync"
	"time"
)

// RestartPolicy tracks reconnect history and detects restart storms: more
// than MaxInWindow reconnects within WindowDuration. During a storm the
// supervisor waits CooldownDuration instead of its regular cooldown.
type RestartPolicy struct {
	MaxInWindow      int
	WindowDuration   time.Duration
	CooldownDuration time.Duration

	history       []time.Time
	cooldownUntil time.Time
	mu            sync.Mutex
}

// NewRestartPolicy creates a new restart policy with the given parameters.
// It returns nil when maxInWindow is not positive, which disables detection.
func NewRestartPolicy(maxInWindow int, window, cooldown time.Duration) *RestartPolicy {
	if maxInWindow <= 0 || window <= 0 {
		return nil
	}
	return &RestartPolicy{
		MaxInWindow:      maxInWindow,
		WindowDuration:   window,
		CooldownDuration: cooldown,
	}
}

// RecordRestart records a restart at now and returns the number of restarts
// within the current window.
func (p *RestartPolicy) RecordRestart(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pruneHistory(now)
	p.history = append(p.history, now)
	return len(p.history)
}

// ShouldRestart reports whether another reconnect fits in the window and no
// storm cooldown is active.
func (p *RestartPolicy) ShouldRestart(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Before(p.cooldownUntil) {
		return false
	}
	p.pruneHistory(now)
	return len(p.history) < p.MaxInWindow
}

// InCooldown reports whether a storm cooldown is active.
func (p *RestartPolicy) InCooldown(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Before(p.cooldownUntil)
}

// EnterCooldown starts a storm cooldown at now and clears the history, so
// counting starts over once the cooldown ends.
func (p *RestartPolicy) EnterCooldown(now time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cooldownUntil = now.Add(p.CooldownDuration)
	p.history = p.history[:0]
	return p.cooldownUntil
}

// RestartCount returns the number of restarts in the current window.
func (p *RestartPolicy) RestartCount(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneHistory(now)
	return len(p.history)
}

// Reset clears history and any cooldown.
func (p *RestartPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
	p.cooldownUntil = time.Time{}
}

func (p *RestartPolicy) pruneHistory(now time.Time) {
	cutoff := now.Add(-p.WindowDuration)
	pruned := p.history[:0]
	for _, t := range p.history {
		if !t.Before(cutoff) {
			pruned = append(pruned, t)
		}
	}
	p.history = pruned
}
