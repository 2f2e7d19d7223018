package mw

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/TwigBush/ordergate/internal/httpx"
	"github.com/TwigBush/ordergate/internal/identity"
	"github.com/TwigBush/ordergate/internal/policy"
	"github.com/TwigBush/ordergate/internal/trace"
	"github.com/TwigBush/ordergate/internal/visitor"
)

type requestContextKey struct{}

// RequestContext is what the policy needs to know about the current request.
type RequestContext struct {
	Caller    policy.Caller
	CartToken string
	Cart      policy.CartCustomer
}

// CallerResolver is satisfied by *identity.Provider.
type CallerResolver interface {
	Caller(r *http.Request) (policy.Caller, error)
}

func WithRequestContext(r *http.Request, rc RequestContext) *http.Request {
	ctx := context.WithValue(r.Context(), requestContextKey{}, rc)
	return r.WithContext(ctx)
}

// RequestContextFrom returns an anonymous context when Identify did not run.
func RequestContextFrom(r *http.Request) RequestContext {
	v, ok := r.Context().Value(requestContextKey{}).(RequestContext)
	if !ok {
		return RequestContext{Caller: policy.Anonymous()}
	}
	return v
}

// Identify resolves the caller and the cart customer before the handler
// runs. A bad token is a 401; a failing cart lookup only drops the cart
// correlation.
func Identify(callers CallerResolver, carts visitor.Lookup) func(http.Handler) http.Handler {
	if carts == nil {
		carts = visitor.None{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := callers.Caller(r)
			if err != nil {
				if errors.Is(err, identity.ErrInvalidToken) {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
					httpx.WriteError(w, http.StatusUnauthorized, "invalid_token")
					return
				}
				httpx.WriteError(w, http.StatusInternalServerError, "identity_error")
				return
			}

			rc := RequestContext{Caller: c, Cart: policy.NoCartCustomer}
			if c.IsAnonymous() {
				rc.CartToken = visitor.CartToken(r)
				cart, err := carts.CartCustomer(r.Context(), rc.CartToken)
				if err != nil {
					slog.Warn("cart lookup failed", "trace", trace.From(r.Context()), "err", err)
				} else {
					rc.Cart = cart
				}
			}
			next.ServeHTTP(w, WithRequestContext(r, rc))
		})
	}
}
