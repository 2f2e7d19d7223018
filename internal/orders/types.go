package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/TwigBush/ordergate/internal/policy"
)

const (
	StateCart      = policy.StateCart
	StateNew       = "new"
	StateCancelled = "cancelled"
	StateFulfilled = "fulfilled"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrUnknownCustomer  = errors.New("unknown customer")
	ErrItemNotFound     = errors.New("order item not found")
	ErrEmptyCart        = errors.New("cart has no items")
	ErrInvalidState     = errors.New("operation not allowed in current order state")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrMissingReference = errors.New("missing reference")
)

type Customer struct {
	ID     policy.CustomerID `json:"id" yaml:"id"`
	Email  string            `json:"email" yaml:"email"`
	UserID *int64            `json:"user_id,omitempty" yaml:"user_id,omitempty"` // nil for guest customers
}

type Item struct {
	ID       string `json:"id" yaml:"id"`
	Variant  string `json:"variant" yaml:"variant"`
	Quantity int    `json:"quantity" yaml:"quantity"`
}

type Order struct {
	Token         string             `json:"token"`
	CustomerID    *policy.CustomerID `json:"customer_id,omitempty"`
	Customer      *Customer          `json:"customer,omitempty"` // hydrated on read
	State         string             `json:"state"`
	PaymentMethod string             `json:"payment_method,omitempty"`
	Items         []Item             `json:"items"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

var _ policy.Record = Order{}

func (o Order) OrderCustomer() (policy.CustomerID, bool) {
	if o.CustomerID == nil {
		return 0, false
	}
	return *o.CustomerID, true
}

func (o Order) CustomerHasUser() bool {
	return o.Customer != nil && o.Customer.UserID != nil
}

func (o Order) OrderState() string { return o.State }

func (o *Order) AddItem(variant string, qty int) (Item, error) {
	if variant == "" {
		return Item{}, ErrMissingReference
	}
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	for i := range o.Items {
		if o.Items[i].Variant == variant {
			o.Items[i].Quantity += qty
			return o.Items[i], nil
		}
	}
	it := Item{ID: uuid.NewString(), Variant: variant, Quantity: qty}
	o.Items = append(o.Items, it)
	return it, nil
}

func (o *Order) RemoveItem(id string) error {
	for i := range o.Items {
		if o.Items[i].ID == id {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// SelectPaymentMethod is allowed on carts and on placed orders awaiting
// payment, not on cancelled or fulfilled ones.
func (o *Order) SelectPaymentMethod(code string) error {
	if code == "" {
		return ErrMissingReference
	}
	if o.State != StateCart && o.State != StateNew {
		return ErrInvalidState
	}
	o.PaymentMethod = code
	return nil
}

// Complete places the cart.
func (o *Order) Complete() error {
	if o.State != StateCart {
		return ErrInvalidState
	}
	if len(o.Items) == 0 {
		return ErrEmptyCart
	}
	o.State = StateNew
	return nil
}

// Store persists orders. Every read or write of a single order takes a
// visibility filter; an order that exists but does not match it is reported
// as ErrNotFound.
type Store interface {
	UpsertCustomer(ctx context.Context, c Customer) error
	GetCustomer(ctx context.Context, id policy.CustomerID) (*Customer, error)

	Create(ctx context.Context, o *Order) (*Order, error)
	Get(ctx context.Context, token string, filter policy.Predicate) (*Order, error)
	List(ctx context.Context, filter policy.Predicate) ([]*Order, error)
	Update(ctx context.Context, token string, filter policy.Predicate, mutate func(*Order) error) (*Order, error)
	Delete(ctx context.Context, token string, filter policy.Predicate) error
}

// prepareNew fills the defaults every store applies on Create.
func prepareNew(o *Order, now time.Time) {
	if o.Token == "" {
		o.Token = uuid.NewString()
	}
	if o.State == "" {
		o.State = StateCart
	}
	if o.Items == nil {
		o.Items = []Item{}
	}
	o.CreatedAt = now
	o.UpdatedAt = now
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	if o.CustomerID != nil {
		id := *o.CustomerID
		cp.CustomerID = &id
	}
	if o.Customer != nil {
		c := *o.Customer
		cp.Customer = &c
	}
	return &cp
}
