package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"simrelease/pkg/platform/circuit"
)

// ErrCircuitOpen is returned without contacting the inbox while recent
// deliveries have kept failing. It wraps ErrDelivery.
var ErrCircuitOpen = fmt.Errorf("%w: circuit open", ErrDelivery)

// Guarded short-circuits deliveries to a channel that keeps failing.
type Guarded struct {
	next    Channel
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// WithBreaker wraps next so that a run of failed deliveries opens b. A nil
// breaker returns next unchanged.
func WithBreaker(next Channel, b *circuit.Breaker, logger *slog.Logger) Channel {
	if b == nil {
		return next
	}
	return &Guarded{next: next, breaker: b, logger: logger}
}

// Deliver implements Channel.
func (g *Guarded) Deliver(ctx context.Context, payload []byte) (string, error) {
	if !g.breaker.Allow() {
		return "", ErrCircuitOpen
	}
	name, err := g.next.Deliver(ctx, payload)
	if err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "delivery circuit opened", "breaker", g.breaker.Name(), "error", err)
		}
		return "", err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "delivery circuit closed", "breaker", g.breaker.Name())
	}
	return name, nil
}
