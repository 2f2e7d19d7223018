package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TwigBush/ordergate/internal/policy"
)

// FileStore keeps one JSON document per order and per customer under root.
type FileStore struct {
	root string
	mu   sync.RWMutex // process-local concurrency
	now  func() time.Time
}

func NewFileStore(root string) (*FileStore, error) {
	for _, dir := range []string{"orders", "customers"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &FileStore{root: root, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ---------- helpers ----------

func validToken(token string) bool {
	return token != "" && token != "." && token != ".." &&
		!strings.ContainsAny(token, `/\`)
}

func (s *FileStore) orderPath(token string) string {
	return filepath.Join(s.root, "orders", token+".json")
}

func (s *FileStore) customerPath(id policy.CustomerID) string {
	return filepath.Join(s.root, "customers", strconv.FormatInt(int64(id), 10)+".json")
}

func writeJSON(path string, v any) error {
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	// 0600 since orders carry customer data
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any, missing error) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return missing
		}
		return err
	}
	return json.Unmarshal(b, v)
}

func (s *FileStore) readOrder(token string) (*Order, error) {
	if !validToken(token) {
		return nil, ErrNotFound
	}
	var o Order
	if err := readJSON(s.orderPath(token), &o, ErrNotFound); err != nil {
		return nil, err
	}
	return s.hydrate(&o)
}

func (s *FileStore) writeOrder(o *Order) error {
	stored := cloneOrder(o)
	stored.Customer = nil
	return writeJSON(s.orderPath(o.Token), stored)
}

func (s *FileStore) readCustomer(id policy.CustomerID) (*Customer, error) {
	var c Customer
	if err := readJSON(s.customerPath(id), &c, ErrUnknownCustomer); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FileStore) hydrate(o *Order) (*Order, error) {
	o.Customer = nil
	if o.CustomerID == nil {
		return o, nil
	}
	c, err := s.readCustomer(*o.CustomerID)
	if errors.Is(err, ErrUnknownCustomer) {
		return o, nil
	}
	if err != nil {
		return nil, err
	}
	o.Customer = c
	return o, nil
}

func (s *FileStore) visible(token string, filter policy.Predicate) (*Order, error) {
	o, err := s.readOrder(token)
	if err != nil {
		return nil, err
	}
	if !filter.Eval(o) {
		return nil, ErrNotFound
	}
	return o, nil
}

// ---------- interface implementation ----------

func (s *FileStore) UpsertCustomer(ctx context.Context, c Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.customerPath(c.ID), c)
}

func (s *FileStore) GetCustomer(ctx context.Context, id policy.CustomerID) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readCustomer(id)
}

func (s *FileStore) Create(ctx context.Context, o *Order) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.CustomerID != nil {
		if _, err := s.readCustomer(*o.CustomerID); err != nil {
			return nil, err
		}
	}
	stored := cloneOrder(o)
	prepareNew(stored, s.now())
	if !validToken(stored.Token) {
		return nil, fmt.Errorf("invalid order token %q", stored.Token)
	}
	if err := s.writeOrder(stored); err != nil {
		return nil, err
	}
	return s.hydrate(stored)
}

func (s *FileStore) Get(ctx context.Context, token string, filter policy.Predicate) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible(token, filter)
}

func (s *FileStore) List(ctx context.Context, filter policy.Predicate) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.root, "orders")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]*Order, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		o, err := s.readOrder(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			// skip unreadable or concurrently removed files
			continue
		}
		if filter.Eval(o) {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

func (s *FileStore) Update(ctx context.Context, token string, filter policy.Predicate, mutate func(*Order) error) (*Order, error) {
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
	if err := s.writeOrder(o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *FileStore) Delete(ctx context.Context, token string, filter policy.Predicate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.visible(token, filter); err != nil {
		return err
	}
	if err := os.Remove(s.orderPath(token)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
