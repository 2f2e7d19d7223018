package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TwigBush/ordergate/internal/policy"
)

type MemoryStore struct {
	mu        sync.RWMutex
	orders    map[string]*Order
	customers map[policy.CustomerID]Customer
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string]*Order),
		customers: make(map[policy.CustomerID]Customer),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) UpsertCustomer(ctx context.Context, c Customer) error {
	s.mu.Lock()
	s.customers[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetCustomer(ctx context.Context, id policy.CustomerID) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, ErrUnknownCustomer
	}
	return &c, nil
}

func (s *MemoryStore) Create(ctx context.Context, o *Order) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.CustomerID != nil {
		if _, ok := s.customers[*o.CustomerID]; !ok {
			return nil, ErrUnknownCustomer
		}
	}
	stored := cloneOrder(o)
	stored.Customer = nil
	prepareNew(stored, s.now())
	s.orders[stored.Token] = stored

	return s.hydrate(stored), nil
}

func (s *MemoryStore) Get(ctx context.Context, token string, filter policy.Predicate) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible(token, filter)
}

func (s *MemoryStore) List(ctx context.Context, filter policy.Predicate) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Order, 0, len(s.orders))
	for _, o := range s.orders {
		h := s.hydrate(o)
		if filter.Eval(h) {
			out = append(out, h)
		}
	}
	sortOrders(out)
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, token string, filter policy.Predicate, mutate func(*Order) error) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.visible(token, filter)
	if err != nil {
		return nil, err
	}
	if err := mutate(o); err != nil {
		return nil, err
	}
	o.Token = token
	o.UpdatedAt = s.now()
	stored := cloneOrder(o)
	stored.Customer = nil
	s.orders[token] = stored
	return o, nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string, filter policy.Predicate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.visible(token, filter); err != nil {
		return err
	}
	delete(s.orders, token)
	return nil
}

// visible must be called with s.mu held.
func (s *MemoryStore) visible(token string, filter policy.Predicate) (*Order, error) {
	o, ok := s.orders[token]
	if !ok {
		return nil, ErrNotFound
	}
	h := s.hydrate(o)
	if !filter.Eval(h) {
		return nil, ErrNotFound
	}
	return h, nil
}

func (s *MemoryStore) hydrate(o *Order) *Order {
	h := cloneOrder(o)
	if o.CustomerID != nil {
		if c, ok := s.customers[*o.CustomerID]; ok {
			h.Customer = &c
		}
	}
	return h
}

func sortOrders(out []*Order) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}
