// Package fixtures loads YAML data sets of customers, orders and cart
// correlations into an order store, and mints tokens for the listed admins.
package fixtures

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TwigBush/ordergate/internal/orders"
	"github.com/TwigBush/ordergate/internal/policy"
)

//go:embed administrator.yaml
var administrator []byte

//go:embed default.yaml
var defaultSet []byte

// AdminName is the admin every applied set contains.
const AdminName = "admin"

type Item struct {
	Variant  string `yaml:"variant"`
	Quantity int    `yaml:"quantity"`
}

type Order struct {
	Ref           string `yaml:"ref"`
	Token         string `yaml:"token"`
	CustomerID    *int64 `yaml:"customer_id"`
	State         string `yaml:"state"`
	PaymentMethod string `yaml:"payment_method"`
	Items         []Item `yaml:"items"`
}

type Admin struct {
	Roles []string `yaml:"roles"`
}

type Set struct {
	Customers []orders.Customer            `yaml:"customers"`
	Orders    []Order                      `yaml:"orders"`
	Carts     map[string]policy.CustomerID `yaml:"carts"`
	Admins    map[string]Admin             `yaml:"admins"`
}

// Minter is satisfied by *identity.Provider.
type Minter interface {
	Mint(c policy.Caller, ttl time.Duration) (string, error)
}

// Result maps fixture refs to what was created.
type Result struct {
	Orders     map[string]*orders.Order
	Tokens     map[string]string
	AdminToken string
}

// Load decodes and merges every document from rs, then merges the
// administrator set. Later documents override earlier admins and carts.
func Load(rs ...io.Reader) (*Set, error) {
	out := &Set{Carts: map[string]policy.CustomerID{}, Admins: map[string]Admin{}}
	for _, r := range rs {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		for {
			var s Set
			err := dec.Decode(&s)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("decode fixtures: %w", err)
			}
			out.merge(&s)
		}
	}

	var admin Set
	if err := yaml.Unmarshal(administrator, &admin); err != nil {
		return nil, err
	}
	if _, ok := out.Admins[AdminName]; !ok {
		out.merge(&admin)
	}
	return out, out.validate()
}

// Default is the embedded demo data set.
func Default() (*Set, error) {
	return Load(bytes.NewReader(defaultSet))
}

func (s *Set) merge(o *Set) {
	s.Customers = append(s.Customers, o.Customers...)
	s.Orders = append(s.Orders, o.Orders...)
	for k, v := range o.Carts {
		s.Carts[k] = v
	}
	for k, v := range o.Admins {
		s.Admins[k] = v
	}
}

func (s *Set) validate() error {
	known := map[policy.CustomerID]bool{}
	for _, c := range s.Customers {
		known[c.ID] = true
	}
	refs := map[string]bool{}
	var errs []error
	for i, o := range s.Orders {
		ref := o.ref()
		if ref == "" {
			continue
		}
		if refs[ref] {
			errs = append(errs, fmt.Errorf("orders[%d]: duplicate ref %q", i, ref))
		}
		refs[ref] = true
		if o.CustomerID != nil && !known[policy.CustomerID(*o.CustomerID)] {
			errs = append(errs, fmt.Errorf("orders[%d]: unknown customer %d", i, *o.CustomerID))
		}
	}
	for tok, id := range s.Carts {
		if !known[id] {
			errs = append(errs, fmt.Errorf("carts[%s]: unknown customer %d", tok, id))
		}
	}
	return errors.Join(errs...)
}

func (o Order) ref() string {
	if o.Ref != "" {
		return o.Ref
	}
	return o.Token
}

func (o Order) build() (*orders.Order, error) {
	out := &orders.Order{Token: o.Token, State: o.State, PaymentMethod: o.PaymentMethod}
	if o.CustomerID != nil {
		id := policy.CustomerID(*o.CustomerID)
		out.CustomerID = &id
	}
	for _, it := range o.Items {
		if _, err := out.AddItem(it.Variant, it.Quantity); err != nil {
			return nil, fmt.Errorf("item %q: %w", it.Variant, err)
		}
	}
	return out, nil
}

// Apply writes s into store. links may be nil when no cart correlations
// are listed; minter may be nil to skip token minting.
func Apply(ctx context.Context, s *Set, store orders.Store, links CartLinker, minter Minter, ttl time.Duration) (*Result, error) {
	res := &Result{Orders: map[string]*orders.Order{}, Tokens: map[string]string{}}

	for _, c := range s.Customers {
		if err := store.UpsertCustomer(ctx, c); err != nil {
			return nil, fmt.Errorf("customer %d: %w", c.ID, err)
		}
	}
	for _, fo := range s.Orders {
		o, err := fo.build()
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", fo.ref(), err)
		}
		created, err := store.Create(ctx, o)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", fo.ref(), err)
		}
		ref := fo.ref()
		if ref == "" {
			ref = created.Token
		}
		res.Orders[ref] = created
	}

	if len(s.Carts) > 0 {
		if links == nil {
			return nil, errors.New("fixtures list cart correlations but no cart linker is configured")
		}
		for tok, id := range s.Carts {
			if err := links.Link(ctx, tok, id); err != nil {
				return nil, fmt.Errorf("cart %s: %w", tok, err)
			}
		}
	}

	if minter == nil {
		return res, nil
	}
	names := make([]string, 0, len(s.Admins))
	for name := range s.Admins {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tok, err := minter.Mint(policy.AdminUser(s.Admins[name].Roles...), ttl)
		if err != nil {
			return nil, fmt.Errorf("admin %s: %w", name, err)
		}
		res.Tokens[name] = tok
	}
	res.AdminToken = res.Tokens[AdminName]
	return res, nil
}

// CartLinker is satisfied by visitor.Linker.
type CartLinker interface {
	Link(ctx context.Context, cartToken string, id policy.CustomerID) error
}
