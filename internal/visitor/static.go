package visitor

import (
	"context"
	"sync"

	"github.com/TwigBush/ordergate/internal/policy"
)

// Static is an in-process cart token table.
type Static struct {
	mu    sync.RWMutex
	carts map[string]policy.CustomerID
}

func NewStatic(carts map[string]policy.CustomerID) *Static {
	s := &Static{carts: make(map[string]policy.CustomerID, len(carts))}
	for k, v := range carts {
		s.carts[k] = v
	}
	return s
}

func (s *Static) Set(token string, id policy.CustomerID) {
	s.mu.Lock()
	s.carts[token] = id
	s.mu.Unlock()
}

func (s *Static) Forget(token string) {
	s.mu.Lock()
	delete(s.carts, token)
	s.mu.Unlock()
}

func (s *Static) CartCustomer(_ context.Context, token string) (policy.CartCustomer, error) {
	if token == "" {
		return policy.NoCartCustomer, nil
	}
	s.mu.RLock()
	id, ok := s.carts[token]
	s.mu.RUnlock()
	if !ok {
		return policy.NoCartCustomer, nil
	}
	return policy.CartCustomerOf(id), nil
}

func (s *Static) Link(_ context.Context, token string, id policy.CustomerID) error {
	s.Set(token, id)
	return nil
}
