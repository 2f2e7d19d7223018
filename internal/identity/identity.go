// Package identity turns bearer tokens into policy callers and mints them.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/TwigBush/ordergate/internal/httpx"
	"github.com/TwigBush/ordergate/internal/policy"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by an ordergate access token.
type Claims struct {
	Type       string   `json:"typ"`
	CustomerID *int64   `json:"customer_id,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Provider resolves the current caller of a request.
type Provider struct {
	keys   Keys
	issuer string
	now    func() time.Time
}

func NewProvider(keys Keys, issuer string) *Provider {
	return &Provider{keys: keys, issuer: issuer, now: time.Now}
}

// Caller returns Anonymous when the request has no bearer token, and an
// error wrapping ErrInvalidToken when the token does not verify.
func (p *Provider) Caller(r *http.Request) (policy.Caller, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return policy.Anonymous(), nil
	}
	tok, ok := httpx.BearerToken(h)
	if !ok {
		return policy.Caller{}, fmt.Errorf("%w: expected bearer authorization", ErrInvalidToken)
	}
	return p.Parse(tok)
}

func (p *Provider) Parse(raw string) (policy.Caller, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{p.keys.Method.Alg()}))
	_, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if p.keys.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != "" && kid != p.keys.KeyID {
				return nil, fmt.Errorf("unknown kid %q", kid)
			}
		}
		return p.keys.verify, nil
	})
	if err != nil {
		return policy.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if p.issuer != "" && !claims.VerifyIssuer(p.issuer, true) {
		return policy.Caller{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	return claims.caller()
}

func (c Claims) caller() (policy.Caller, error) {
	switch policy.CallerKind(c.Type) {
	case policy.KindShopUser:
		if c.CustomerID == nil {
			return policy.Caller{}, fmt.Errorf("%w: shop token without customer_id", ErrInvalidToken)
		}
		return policy.ShopUser(policy.CustomerID(*c.CustomerID), c.Roles...), nil
	case policy.KindAdminUser:
		return policy.AdminUser(c.Roles...), nil
	case policy.KindAnonymous, "":
		if c.CustomerID != nil {
			return policy.AnonymousWithCustomer(policy.CustomerID(*c.CustomerID)), nil
		}
		return policy.Anonymous(), nil
	}
	return policy.Caller{}, fmt.Errorf("%w: unknown caller type %q", ErrInvalidToken, c.Type)
}

// Mint signs a token for c valid for ttl.
func (p *Provider) Mint(c policy.Caller, ttl time.Duration) (string, error) {
	if !p.keys.CanSign() {
		return "", errors.New("identity: no signing key configured")
	}
	now := p.now().UTC()
	claims := Claims{
		Type:  string(c.Kind),
		Roles: c.Roles.Slice(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if claims.Type == "" {
		claims.Type = string(policy.KindAnonymous)
	}
	switch {
	case c.Kind == policy.KindShopUser:
		id := int64(c.CustomerID)
		claims.CustomerID = &id
		claims.Subject = "customer:" + strconv.FormatInt(id, 10)
	case c.IsAnonymous():
		if id, ok := c.CorrelatedCustomer(); ok {
			v := int64(id)
			claims.CustomerID = &v
		}
	}

	t := jwt.NewWithClaims(p.keys.Method, claims)
	if p.keys.KeyID != "" {
		t.Header["kid"] = p.keys.KeyID
	}
	s, err := t.SignedString(p.keys.sign)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}
