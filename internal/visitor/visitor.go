// Package visitor resolves the customer correlated with an anonymous
// visitor's cart token.
package visitor

import (
	"context"
	"net/http"
	"strings"

	"github.com/TwigBush/ordergate/internal/policy"
)

const (
	CartTokenHeader = "X-Cart-Token"
	CartTokenCookie = "cart_token"
)

// Lookup returns the customer associated with a cart token. An empty or
// unknown token yields policy.NoCartCustomer and a nil error.
type Lookup interface {
	CartCustomer(ctx context.Context, cartToken string) (policy.CartCustomer, error)
}

// CartToken extracts the visitor's cart token, header first.
func CartToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(CartTokenHeader)); v != "" {
		return v
	}
	if c, err := r.Cookie(CartTokenCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// None never correlates a cart.
type None struct{}

func (None) CartCustomer(context.Context, string) (policy.CartCustomer, error) {
	return policy.NoCartCustomer, nil
}

// Linker records a cart token to customer correlation. Static and Redis
// implement it; OpenFGA tuples are written by the storefront.
type Linker interface {
	Link(ctx context.Context, cartToken string, id policy.CustomerID) error
}
