package visitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/TwigBush/ordergate/internal/policy"
)

// Breaker guards a remote Lookup. While the circuit is open the visitor is
// treated as having no cart customer, which only ever narrows access.
type Breaker struct {
	next Lookup
	cb   *gobreaker.CircuitBreaker
}

type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// consecutive failures before the circuit opens
	Failures uint32
}

func NewBreaker(next Lookup, cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "visitor"
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	failures := cfg.Failures

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("visitor lookup breaker", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) CartCustomer(ctx context.Context, token string) (policy.CartCustomer, error) {
	if token == "" {
		return policy.NoCartCustomer, nil
	}
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.CartCustomer(ctx, token)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return policy.NoCartCustomer, nil
	}
	if err != nil {
		return policy.NoCartCustomer, err
	}
	return v.(policy.CartCustomer), nil
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }
