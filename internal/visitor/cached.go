package visitor

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/TwigBush/ordergate/internal/policy"
)

// Cached memoises another Lookup. Misses are cached as well; errors are not.
type Cached struct {
	next  Lookup
	cache *expirable.LRU[string, policy.CartCustomer]
}

func NewCached(next Lookup, size int, ttl time.Duration) (*Cached, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, policy.CartCustomer](size, nil, ttl),
	}, nil
}

func (c *Cached) CartCustomer(ctx context.Context, token string) (policy.CartCustomer, error) {
	if token == "" {
		return policy.NoCartCustomer, nil
	}
	if v, ok := c.cache.Get(token); ok {
		return v, nil
	}
	v, err := c.next.CartCustomer(ctx, token)
	if err != nil {
		return policy.NoCartCustomer, err
	}
	c.cache.Add(token, v)
	return v, nil
}

// Invalidate drops a cached token, e.g. after the cart changed hands.
func (c *Cached) Invalidate(token string) { c.cache.Remove(token) }
