package memory

import (
	"context"

	"golang.org/x/time/rate"

	"reactor/eventbus"
)

// RateLimitedPublisher throttles publishes to a fixed rate, for load
// tests that want to exercise the bus's bounded-buffer backpressure
// (spec.md §4.5) without a real external broker to rate-limit against.
type RateLimitedPublisher struct {
	bus     *Bus
	limiter *rate.Limiter
}

// NewRateLimitedPublisher wraps bus with a token-bucket limiter
// allowing up to ratePerSecond publishes per second, bursting up to
// burst.
func NewRateLimitedPublisher(bus *Bus, ratePerSecond float64, burst int) *RateLimitedPublisher {
	return &RateLimitedPublisher{bus: bus, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Publish blocks until the limiter admits the call, then publishes.
func (p *RateLimitedPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return &eventbus.TransientError{BusError: eventbus.BusError{Op: "Publish", Err: err}}
	}
	return p.bus.Publish(ctx, topic, key, payload)
}
