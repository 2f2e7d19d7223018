package policy

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// StateCart is the order state of an in-progress cart.
const StateCart = "cart"

type Op string

const (
	OpTrue               Op = "true"
	OpCustomerIsNull     Op = "customer_is_null"
	OpCustomerEquals     Op = "customer_equals"
	OpCustomerUserIsNull Op = "customer_user_is_null"
	OpStateEquals        Op = "state_equals"
	OpAnd                Op = "and"
	OpOr                 Op = "or"
)

// Predicate is a storage-independent boolean condition over an order.
// Values are immutable once built; compare them with Equal or reflect.DeepEqual.
type Predicate struct {
	Op       Op
	Customer CustomerID
	State    string
	Args     []Predicate
}

// Record is the view of an order a predicate is evaluated against.
type Record interface {
	OrderCustomer() (CustomerID, bool)
	CustomerHasUser() bool
	OrderState() string
}

func True() Predicate               { return Predicate{Op: OpTrue} }
func CustomerIsNull() Predicate     { return Predicate{Op: OpCustomerIsNull} }
func CustomerUserIsNull() Predicate { return Predicate{Op: OpCustomerUserIsNull} }

func CustomerEquals(id CustomerID) Predicate {
	return Predicate{Op: OpCustomerEquals, Customer: id}
}

func StateEquals(state string) Predicate {
	return Predicate{Op: OpStateEquals, State: state}
}

// And drops a True operand, so a guard of True leaves the other side as is.
func And(a, b Predicate) Predicate {
	switch {
	case a.IsTrue():
		return b
	case b.IsTrue():
		return a
	}
	return Predicate{Op: OpAnd, Args: []Predicate{a, b}}
}

func Or(a, b Predicate) Predicate {
	if a.IsTrue() || b.IsTrue() {
		return True()
	}
	return Predicate{Op: OpOr, Args: []Predicate{a, b}}
}

func (p Predicate) IsTrue() bool { return p.Op == OpTrue }

func (p Predicate) Eval(r Record) bool {
	switch p.Op {
	case OpTrue:
		return true
	case OpCustomerIsNull:
		_, ok := r.OrderCustomer()
		return !ok
	case OpCustomerEquals:
		id, ok := r.OrderCustomer()
		return ok && id == p.Customer
	case OpCustomerUserIsNull:
		// a missing customer has no user either, as with a LEFT JOIN
		return !r.CustomerHasUser()
	case OpStateEquals:
		return r.OrderState() == p.State
	case OpAnd:
		for _, a := range p.Args {
			if !a.Eval(r) {
				return false
			}
		}
		return true
	case OpOr:
		for _, a := range p.Args {
			if a.Eval(r) {
				return true
			}
		}
		return false
	}
	return false
}

func (p Predicate) Equal(o Predicate) bool {
	if p.Op != o.Op || p.Customer != o.Customer || p.State != o.State || len(p.Args) != len(o.Args) {
		return false
	}
	for i := range p.Args {
		if !p.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}

func (p Predicate) String() string {
	switch p.Op {
	case OpTrue:
		return "TRUE"
	case OpCustomerIsNull:
		return "customer IS NULL"
	case OpCustomerEquals:
		return "customer = " + strconv.FormatInt(int64(p.Customer), 10)
	case OpCustomerUserIsNull:
		return "customer.user IS NULL"
	case OpStateEquals:
		return "state = " + strconv.Quote(p.State)
	case OpAnd, OpOr:
		sep := " AND "
		if p.Op == OpOr {
			sep = " OR "
		}
		s := ""
		for i, a := range p.Args {
			if i > 0 {
				s += sep
			}
			if a.Op == OpAnd || a.Op == OpOr {
				s += "(" + a.String() + ")"
			} else {
				s += a.String()
			}
		}
		return s
	}
	return string(p.Op)
}

type predicateJSON struct {
	Op       Op              `json:"op"`
	Customer *CustomerID     `json:"customer,omitempty"`
	State    string          `json:"state,omitempty"`
	Args     []predicateJSON `json:"args,omitempty"`
}

func (p Predicate) toJSON() predicateJSON {
	out := predicateJSON{Op: p.Op, State: p.State}
	if p.Op == OpCustomerEquals {
		id := p.Customer
		out.Customer = &id
	}
	for _, a := range p.Args {
		out.Args = append(out.Args, a.toJSON())
	}
	return out
}

func (j predicateJSON) toPredicate() (Predicate, error) {
	switch j.Op {
	case OpTrue:
		return True(), nil
	case OpCustomerIsNull:
		return CustomerIsNull(), nil
	case OpCustomerUserIsNull:
		return CustomerUserIsNull(), nil
	case OpCustomerEquals:
		if j.Customer == nil {
			return Predicate{}, fmt.Errorf("predicate %s: missing customer", j.Op)
		}
		return CustomerEquals(*j.Customer), nil
	case OpStateEquals:
		if j.State == "" {
			return Predicate{}, fmt.Errorf("predicate %s: missing state", j.Op)
		}
		return StateEquals(j.State), nil
	case OpAnd, OpOr:
		if len(j.Args) != 2 {
			return Predicate{}, fmt.Errorf("predicate %s: want 2 args, got %d", j.Op, len(j.Args))
		}
		a, err := j.Args[0].toPredicate()
		if err != nil {
			return Predicate{}, err
		}
		b, err := j.Args[1].toPredicate()
		if err != nil {
			return Predicate{}, err
		}
		if j.Op == OpAnd {
			return And(a, b), nil
		}
		return Or(a, b), nil
	}
	return Predicate{}, fmt.Errorf("unknown predicate op %q", j.Op)
}

func (p Predicate) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toJSON())
}

func (p *Predicate) UnmarshalJSON(b []byte) error {
	var j predicateJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	out, err := j.toPredicate()
	if err != nil {
		return err
	}
	*p = out
	return nil
}
