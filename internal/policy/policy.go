// Package policy decides which orders a caller may read or mutate.
//
// Decisions are pure: they depend only on the caller, the HTTP method, the
// operation name and, for reads, the cart customer correlated to an anonymous
// session. An Allow decision carries a Predicate that the host applies as a
// filter on its order storage; Deny must become an access-denied response.
//
// Rules are evaluated in order and the first match wins. When no rule
// matches the decision is Deny.
package policy

import (
	"net/http"
	"strings"
)

type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
)

func ParseMethod(s string) Method { return Method(strings.ToUpper(strings.TrimSpace(s))) }

type Operation string

// OpSelectPaymentMethod stays reachable after the cart has been placed.
const OpSelectPaymentMethod Operation = "shop_select_payment_method"

// Checker is implemented by OrderVisibility; handlers depend on it.
type Checker interface {
	DecideForRead(c Caller, cart CartCustomer) Decision
	DecideForWrite(c Caller, m Method, op Operation) Decision
}

type readRule struct {
	name  string
	apply func(c Caller, cart CartCustomer) (Predicate, bool)
}

type writeRule struct {
	name  string
	apply func(c Caller, m Method, op Operation) (Predicate, bool)
}

// OrderVisibility holds the ordered rule lists. It has no mutable state and
// is safe for concurrent use.
type OrderVisibility struct {
	read  []readRule
	write []writeRule
}

var _ Checker = (*OrderVisibility)(nil)

func NewOrderVisibility() *OrderVisibility {
	return &OrderVisibility{
		read: []readRule{
			{"guest_without_cart", func(c Caller, cart CartCustomer) (Predicate, bool) {
				if !c.IsAnonymous() {
					return Predicate{}, false
				}
				if _, ok := cartCustomer(c, cart); ok {
					return Predicate{}, false
				}
				return CustomerIsNull(), true
			}},
			{"guest_with_cart_customer", func(c Caller, cart CartCustomer) (Predicate, bool) {
				if !c.IsAnonymous() {
					return Predicate{}, false
				}
				id, ok := cartCustomer(c, cart)
				if !ok {
					return Predicate{}, false
				}
				return CustomerEquals(id), true
			}},
			{"shop_user", func(c Caller, _ CartCustomer) (Predicate, bool) {
				if !isShopUser(c) {
					return Predicate{}, false
				}
				return CustomerEquals(c.CustomerID), true
			}},
			{"admin_api_access", func(c Caller, _ CartCustomer) (Predicate, bool) {
				if !isAPIAdmin(c) {
					return Predicate{}, false
				}
				return True(), true
			}},
		},
		write: []writeRule{
			{"guest", func(c Caller, _ Method, op Operation) (Predicate, bool) {
				if !c.IsAnonymous() {
					return Predicate{}, false
				}
				return And(Or(CustomerUserIsNull(), CustomerIsNull()), CartGuard(op)), true
			}},
			{"shop_user", func(c Caller, _ Method, op Operation) (Predicate, bool) {
				if !isShopUser(c) {
					return Predicate{}, false
				}
				return And(CustomerEquals(c.CustomerID), CartGuard(op)), true
			}},
			{"admin_api_access", func(c Caller, m Method, _ Operation) (Predicate, bool) {
				if !isAPIAdmin(c) {
					return Predicate{}, false
				}
				if m == MethodDelete {
					return StateEquals(StateCart), true
				}
				return True(), true
			}},
		},
	}
}

// DecideForRead applies to single-item GET requests.
func (p *OrderVisibility) DecideForRead(c Caller, cart CartCustomer) Decision {
	for _, r := range p.read {
		if pred, ok := r.apply(c, cart); ok {
			d := Allow(pred)
			d.Rule = "read." + r.name
			return d
		}
	}
	d := Deny()
	d.Rule = "read.default"
	return d
}

// DecideForWrite applies to every non-GET method. GET is denied here, it
// only goes through DecideForRead.
func (p *OrderVisibility) DecideForWrite(c Caller, m Method, op Operation) Decision {
	if m == MethodGet {
		d := Deny()
		d.Rule = "write.get_not_a_write"
		return d
	}
	for _, r := range p.write {
		if pred, ok := r.apply(c, m, op); ok {
			d := Allow(pred)
			d.Rule = "write." + r.name
			return d
		}
	}
	d := Deny()
	d.Rule = "write.default"
	return d
}

// Decide routes GET to the read rules and everything else to the write rules.
func (p *OrderVisibility) Decide(c Caller, m Method, op Operation, cart CartCustomer) Decision {
	if m == MethodGet {
		return p.DecideForRead(c, cart)
	}
	return p.DecideForWrite(c, m, op)
}

// CartGuard restricts writes to cart-state orders, except for payment
// method selection.
func CartGuard(op Operation) Predicate {
	if op == OpSelectPaymentMethod {
		return True()
	}
	return StateEquals(StateCart)
}

func cartCustomer(c Caller, cart CartCustomer) (CustomerID, bool) {
	if cart.Valid {
		return cart.ID, true
	}
	return c.CorrelatedCustomer()
}

func isShopUser(c Caller) bool {
	return c.Kind == KindShopUser && c.Roles.Has(RoleUser)
}

func isAPIAdmin(c Caller) bool {
	return c.Kind == KindAdminUser && c.Roles.Has(RoleAPIAccess)
}
