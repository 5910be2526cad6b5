package publisher

import (
	"context"
	"errors"
	"log/slog"

	"hemogrid/internal/notification/models"
	"hemogrid/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the broker is considered down.
var ErrCircuitOpen = errors.New("notification publisher circuit open")

// Publisher is the delivery port wrapped by Guarded.
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification) error
}

// Guarded stops calling a failing broker until its cooldown passes, so a
// broker outage does not add a produce timeout to every lifecycle operation.
// Notifications are already persisted; skipped ones stay readable in the inbox.
type Guarded struct {
	next    Publisher
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next Publisher, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Publish(ctx context.Context, n *models.Notification) error {
	if !g.breaker.Allow() {
		return ErrCircuitOpen
	}
	if err := g.next.Publish(ctx, n); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "notification publisher circuit opened",
				"breaker", g.breaker.Name(),
				"error", err,
			)
		}
		return err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "notification publisher circuit closed", "breaker", g.breaker.Name())
	}
	return nil
}
