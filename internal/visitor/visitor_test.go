package visitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TwigBush/ordergate/internal/policy"
)

type countingLookup struct {
	calls atomic.Int32
	err   error
	carts map[string]policy.CustomerID
}

func (c *countingLookup) CartCustomer(_ context.Context, token string) (policy.CartCustomer, error) {
	c.calls.Add(1)
	if c.err != nil {
		return policy.NoCartCustomer, c.err
	}
	if id, ok := c.carts[token]; ok {
		return policy.CartCustomerOf(id), nil
	}
	return policy.NoCartCustomer, nil
}

func TestCartToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/orders/x", nil)
	assert.Equal(t, "", CartToken(r))

	r.AddCookie(&http.Cookie{Name: CartTokenCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", CartToken(r))

	r.Header.Set(CartTokenHeader, " from-header ")
	assert.Equal(t, "from-header", CartToken(r))
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(map[string]policy.CustomerID{"abc": 4})

	got, err := s.CartCustomer(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, policy.CartCustomerOf(4), got)

	got, err = s.CartCustomer(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, got.Valid)

	s.Set("def", 9)
	got, _ = s.CartCustomer(ctx, "def")
	assert.Equal(t, policy.CustomerID(9), got.ID)

	s.Forget("def")
	got, _ = s.CartCustomer(ctx, "def")
	assert.False(t, got.Valid)

	got, _ = s.CartCustomer(ctx, "")
	assert.False(t, got.Valid)
}

func TestRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	require.NoError(t, r.Remember(ctx, "abc", 12, time.Minute))
	assert.Equal(t, "12", mustGet(t, mr, "ordergate:cart:abc"))

	got, err := r.CartCustomer(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, policy.CartCustomerOf(12), got)

	got, err = r.CartCustomer(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, got.Valid)

	mr.FastForward(2 * time.Minute)
	got, err = r.CartCustomer(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, got.Valid, "expired correlation")

	require.NoError(t, mr.Set("ordergate:cart:bad", "not-a-number"))
	_, err = r.CartCustomer(ctx, "bad")
	assert.Error(t, err)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestCachedCachesHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingLookup{carts: map[string]policy.CustomerID{"abc": 1}}
	c, err := NewCached(inner, 16, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := c.CartCustomer(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, got.Valid)
		got, err = c.CartCustomer(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, got.Valid)
	}
	assert.Equal(t, int32(2), inner.calls.Load())

	c.Invalidate("abc")
	_, _ = c.CartCustomer(ctx, "abc")
	assert.Equal(t, int32(3), inner.calls.Load())

	_, err = NewCached(inner, 0, time.Minute)
	assert.Error(t, err)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	inner := &countingLookup{err: errors.New("down")}
	c, err := NewCached(inner, 16, time.Minute)
	require.NoError(t, err)

	_, err = c.CartCustomer(ctx, "abc")
	assert.Error(t, err)
	_, err = c.CartCustomer(ctx, "abc")
	assert.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestBreakerDegradesWhenOpen(t *testing.T) {
	ctx := context.Background()
	inner := &countingLookup{err: errors.New("down")}
	b := NewBreaker(inner, BreakerConfig{Failures: 2, Timeout: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := b.CartCustomer(ctx, "abc")
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	got, err := b.CartCustomer(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Equal(t, int32(2), inner.calls.Load(), "open breaker must not call through")
}

func TestBreakerPassesThrough(t *testing.T) {
	inner := &countingLookup{carts: map[string]policy.CustomerID{"abc": 3}}
	b := NewBreaker(inner, BreakerConfig{})

	got, err := b.CartCustomer(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, policy.CartCustomerOf(3), got)
}

func TestOpenFGAListObjects(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/list-objects") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"objects":["order:1","customer:42"]}`))
	}))
	defer srv.Close()

	l, err := NewOpenFGA(OpenFGAConfig{APIURL: srv.URL, StoreID: "01GXSA8YR785C4FYS3C0RTG7B1"})
	require.NoError(t, err)

	got, err := l.CartCustomer(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, policy.CartCustomerOf(42), got)
	assert.Equal(t, "cart:abc", body["user"])
	assert.Equal(t, "visitor", body["relation"])
	assert.Equal(t, "customer", body["type"])
}

func TestParseCustomerObject(t *testing.T) {
	id, ok := parseCustomerObject("customer:7")
	assert.True(t, ok)
	assert.Equal(t, policy.CustomerID(7), id)

	_, ok = parseCustomerObject("customer:x")
	assert.False(t, ok)
	_, ok = parseCustomerObject("cart:7")
	assert.False(t, ok)
}

func TestProvide(t *testing.T) {
	l, link, err := Provide(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Static{}, l)
	assert.Same(t, l, link)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	l, link, err = Provide(Config{Kind: KindRedis, RedisAddr: mr.Addr(), CacheSize: 8, CacheTTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, l)
	assert.IsType(t, &Redis{}, link)

	l, _, err = Provide(Config{Kind: KindRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Breaker{}, l)

	_, _, err = Provide(Config{Kind: "ldap"})
	assert.Error(t, err)
}

func TestLinkers(t *testing.T) {
	ctx := context.Background()

	s := NewStatic(nil)
	require.NoError(t, s.Link(ctx, "tok", 4))
	cc, err := s.CartCustomer(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, policy.CartCustomerOf(4), cc)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, r.Link(ctx, "tok", 9))
	assert.Equal(t, "9", must(mr.Get("ordergate:cart:tok")))
	assert.False(t, mr.TTL("ordergate:cart:tok") > 0)
}

func must(s string, err error) string {
	if err != nil {
		panic(err)
	}
	return s
}
