package visitor

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	KindStatic = "static"
	KindRedis  = "redis"
	KindFGA    = "fga"
)

type Config struct {
	Kind      string
	RedisAddr string
	FGA       OpenFGAConfig
	CacheSize int
	CacheTTL  time.Duration
}

// Provide builds the configured Lookup. Remote lookups are wrapped in a
// circuit breaker and, when CacheSize > 0, an LRU cache. The Linker writes
// to the same backend and is nil for fga.
func Provide(cfg Config) (Lookup, Linker, error) {
	var (
		remote Lookup
		linker Linker
	)
	switch cfg.Kind {
	case KindRedis:
		r := NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		remote, linker = r, r
	case KindFGA:
		a, err := NewOpenFGA(cfg.FGA)
		if err != nil {
			return nil, nil, err
		}
		remote = a
	case KindStatic, "":
		s := NewStatic(nil)
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown visitor lookup kind %q", cfg.Kind)
	}

	var l Lookup = NewBreaker(remote, BreakerConfig{Name: "visitor-" + cfg.Kind})
	if cfg.CacheSize > 0 {
		c, err := NewCached(l, cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		l = c
	}
	return l, linker, nil
}
