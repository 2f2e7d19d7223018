package visitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/TwigBush/ordergate/internal/policy"
)

const redisKeyPrefix = "ordergate:cart:"

// Redis reads cart correlations written by the storefront session layer:
// key ordergate:cart:<token>, value the decimal customer id.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func redisKey(token string) string { return redisKeyPrefix + token }

func (r *Redis) CartCustomer(ctx context.Context, token string) (policy.CartCustomer, error) {
	if token == "" {
		return policy.NoCartCustomer, nil
	}
	v, err := r.rdb.Get(ctx, redisKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return policy.NoCartCustomer, nil
	}
	if err != nil {
		return policy.NoCartCustomer, fmt.Errorf("redis_get: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return policy.NoCartCustomer, fmt.Errorf("redis_value %q: %w", v, err)
	}
	return policy.CartCustomerOf(policy.CustomerID(id)), nil
}

// Remember correlates token with id; ttl 0 keeps the key forever.
func (r *Redis) Remember(ctx context.Context, token string, id policy.CustomerID, ttl time.Duration) error {
	return r.rdb.Set(ctx, redisKey(token), strconv.FormatInt(int64(id), 10), ttl).Err()
}

func (r *Redis) Link(ctx context.Context, token string, id policy.CustomerID) error {
	return r.Remember(ctx, token, id, 0)
}
