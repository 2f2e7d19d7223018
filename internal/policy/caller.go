package policy

import (
	"fmt"
	"sort"
	"strings"
)

const (
	RoleUser      = "ROLE_USER"
	RoleAPIAccess = "ROLE_API_ACCESS"
)

type CallerKind string

const (
	KindAnonymous CallerKind = "anonymous"
	KindShopUser  CallerKind = "shop"
	KindAdminUser CallerKind = "admin"
)

type CustomerID int64

// RoleSet is matched by exact string membership, no hierarchy or wildcards.
type RoleSet map[string]struct{}

func NewRoleSet(roles ...string) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

func (s RoleSet) Has(role string) bool {
	_, ok := s[role]
	return ok
}

// Slice returns the roles sorted, for logs and JSON.
func (s RoleSet) Slice() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Caller is the resolved identity of the current request. The zero value is
// an anonymous caller.
type Caller struct {
	Kind       CallerKind
	CustomerID CustomerID
	Roles      RoleSet

	// correlated is set for anonymous sessions already linked to a customer.
	correlated bool
}

func Anonymous() Caller { return Caller{Kind: KindAnonymous} }

// AnonymousWithCustomer is an anonymous session that an earlier cart or
// checkout step linked to a known customer.
func AnonymousWithCustomer(id CustomerID) Caller {
	return Caller{Kind: KindAnonymous, CustomerID: id, correlated: true}
}

func ShopUser(id CustomerID, roles ...string) Caller {
	return Caller{Kind: KindShopUser, CustomerID: id, Roles: NewRoleSet(roles...)}
}

func AdminUser(roles ...string) Caller {
	return Caller{Kind: KindAdminUser, Roles: NewRoleSet(roles...)}
}

func (c Caller) IsAnonymous() bool {
	return c.Kind == KindAnonymous || c.Kind == ""
}

// CorrelatedCustomer reports the customer an anonymous session is linked to.
func (c Caller) CorrelatedCustomer() (CustomerID, bool) {
	if c.IsAnonymous() && c.correlated {
		return c.CustomerID, true
	}
	return 0, false
}

func (c Caller) String() string {
	switch {
	case c.IsAnonymous():
		if id, ok := c.CorrelatedCustomer(); ok {
			return fmt.Sprintf("anonymous(customer=%d)", id)
		}
		return "anonymous"
	case c.Kind == KindShopUser:
		return fmt.Sprintf("shop(customer=%d roles=%s)", c.CustomerID, strings.Join(c.Roles.Slice(), ","))
	case c.Kind == KindAdminUser:
		return fmt.Sprintf("admin(roles=%s)", strings.Join(c.Roles.Slice(), ","))
	}
	return string(c.Kind)
}

// CartCustomer is the optional customer id correlated to an anonymous cart.
type CartCustomer struct {
	ID    CustomerID
	Valid bool
}

var NoCartCustomer = CartCustomer{}

func CartCustomerOf(id CustomerID) CartCustomer {
	return CartCustomer{ID: id, Valid: true}
}

// CallerSpec is the wire form of a Caller for explicit decision requests.
type CallerSpec struct {
	Kind       CallerKind `json:"kind" yaml:"kind"`
	CustomerID *int64     `json:"customer_id,omitempty" yaml:"customer_id,omitempty"`
	Roles      []string   `json:"roles,omitempty" yaml:"roles,omitempty"`
}

func (s CallerSpec) Caller() (Caller, error) {
	switch s.Kind {
	case KindAnonymous, "":
		if s.CustomerID != nil {
			return AnonymousWithCustomer(CustomerID(*s.CustomerID)), nil
		}
		return Anonymous(), nil
	case KindShopUser:
		if s.CustomerID == nil {
			return Caller{}, fmt.Errorf("shop caller needs customer_id")
		}
		return ShopUser(CustomerID(*s.CustomerID), s.Roles...), nil
	case KindAdminUser:
		return AdminUser(s.Roles...), nil
	}
	return Caller{}, fmt.Errorf("unknown caller kind %q", s.Kind)
}
