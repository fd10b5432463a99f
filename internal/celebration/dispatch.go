package celebration

import (
	"context"

	"celebrator/internal/mastodon"
)

// HandleEvent routes one stream event. Only updates carry an account
// snapshot worth evaluating; every other kind is ignored.
func (p *Policy) HandleEvent(ctx context.Context, ev mastodon.Event) error {
	switch e := ev.(type) {
	case mastodon.UpdateEvent:
		p.Observe(e.Status.Account)
		p.Evaluate(ctx, e.Status.Account)
	case mastodon.NotificationEvent, mastodon.DeleteEvent, mastodon.UnknownEvent:
	}
	return ctx.Err()
}
