package policy

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideForRead(t *testing.T) {
	p := NewOrderVisibility()

	tests := []struct {
		name   string
		caller Caller
		cart   CartCustomer
		want   Decision
		rule   string
	}{
		{
			name:   "guest without cart sees guest orders",
			caller: Anonymous(),
			cart:   NoCartCustomer,
			want:   Allow(CustomerIsNull()),
			rule:   "read.guest_without_cart",
		},
		{
			name:   "guest with cart customer sees that customer's orders",
			caller: Anonymous(),
			cart:   CartCustomerOf(42),
			want:   Allow(CustomerEquals(42)),
			rule:   "read.guest_with_cart_customer",
		},
		{
			name:   "correlated anonymous caller",
			caller: AnonymousWithCustomer(9),
			cart:   NoCartCustomer,
			want:   Allow(CustomerEquals(9)),
			rule:   "read.guest_with_cart_customer",
		},
		{
			name:   "explicit cart customer wins over correlated id",
			caller: AnonymousWithCustomer(9),
			cart:   CartCustomerOf(10),
			want:   Allow(CustomerEquals(10)),
			rule:   "read.guest_with_cart_customer",
		},
		{
			name:   "zero value caller is anonymous",
			caller: Caller{},
			want:   Allow(CustomerIsNull()),
			rule:   "read.guest_without_cart",
		},
		{
			name:   "shop user sees own orders",
			caller: ShopUser(7, RoleUser),
			want:   Allow(CustomerEquals(7)),
			rule:   "read.shop_user",
		},
		{
			name:   "shop user ignores cart customer",
			caller: ShopUser(7, RoleUser),
			cart:   CartCustomerOf(42),
			want:   Allow(CustomerEquals(7)),
			rule:   "read.shop_user",
		},
		{
			name:   "admin with api access sees everything",
			caller: AdminUser(RoleAPIAccess),
			want:   Allow(True()),
			rule:   "read.admin_api_access",
		},
		{
			name:   "admin ignores cart customer",
			caller: AdminUser(RoleAPIAccess, "ROLE_ADMINISTRATION_ACCESS"),
			cart:   CartCustomerOf(1),
			want:   Allow(True()),
			rule:   "read.admin_api_access",
		},
		{
			name:   "shop user without ROLE_USER",
			caller: ShopUser(7),
			want:   Deny(),
			rule:   "read.default",
		},
		{
			name:   "admin without ROLE_API_ACCESS",
			caller: AdminUser(),
			want:   Deny(),
			rule:   "read.default",
		},
		{
			name:   "role match is exact",
			caller: AdminUser("role_api_access", "ROLE_API"),
			want:   Deny(),
			rule:   "read.default",
		},
		{
			name:   "shop role does not satisfy admin rule",
			caller: AdminUser(RoleUser),
			want:   Deny(),
			rule:   "read.default",
		},
		{
			name:   "unknown caller kind",
			caller: Caller{Kind: "robot", Roles: NewRoleSet(RoleUser, RoleAPIAccess)},
			want:   Deny(),
			rule:   "read.default",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := p.DecideForRead(tc.caller, tc.cart)
			assert.Equal(t, tc.want.Effect, got.Effect)
			assert.True(t, tc.want.Predicate.Equal(got.Predicate), "predicate = %s, want %s", got.Predicate, tc.want.Predicate)
			assert.Equal(t, tc.rule, got.Rule)
		})
	}
}

func TestDecideForWrite(t *testing.T) {
	p := NewOrderVisibility()
	guestOwner := Or(CustomerUserIsNull(), CustomerIsNull())
	cart := StateEquals(StateCart)

	tests := []struct {
		name   string
		caller Caller
		method Method
		op     Operation
		want   Decision
	}{
		{
			name:   "guest write is limited to guest carts",
			caller: Anonymous(),
			method: MethodPost,
			op:     "other_op",
			want:   Allow(And(guestOwner, cart)),
		},
		{
			name:   "guest payment method selection skips the cart guard",
			caller: Anonymous(),
			method: MethodPost,
			op:     OpSelectPaymentMethod,
			want:   Allow(guestOwner),
		},
		{
			name:   "correlated guest is still a guest for writes",
			caller: AnonymousWithCustomer(5),
			method: MethodPatch,
			op:     "shop_add_item",
			want:   Allow(And(guestOwner, cart)),
		},
		{
			name:   "shop user removes an item from own cart",
			caller: ShopUser(3, RoleUser),
			method: MethodDelete,
			op:     "shop_remove_item",
			want:   Allow(And(CustomerEquals(3), cart)),
		},
		{
			name:   "shop user selects payment method on a placed order",
			caller: ShopUser(3, RoleUser),
			method: MethodPatch,
			op:     OpSelectPaymentMethod,
			want:   Allow(CustomerEquals(3)),
		},
		{
			name:   "admin delete is limited to carts",
			caller: AdminUser(RoleAPIAccess),
			method: MethodDelete,
			op:     "admin_delete_order",
			want:   Allow(cart),
		},
		{
			name:   "admin delete ignores the payment exemption",
			caller: AdminUser(RoleAPIAccess),
			method: MethodDelete,
			op:     OpSelectPaymentMethod,
			want:   Allow(cart),
		},
		{
			name:   "admin patch is unrestricted",
			caller: AdminUser(RoleAPIAccess),
			method: MethodPatch,
			op:     "anything",
			want:   Allow(True()),
		},
		{
			name:   "admin put is unrestricted",
			caller: AdminUser(RoleAPIAccess),
			method: MethodPut,
			want:   Allow(True()),
		},
		{
			name:   "shop user without ROLE_USER",
			caller: ShopUser(3),
			method: MethodPatch,
			op:     OpSelectPaymentMethod,
			want:   Deny(),
		},
		{
			name:   "admin without ROLE_API_ACCESS",
			caller: AdminUser("ROLE_ADMINISTRATION_ACCESS"),
			method: MethodDelete,
			want:   Deny(),
		},
		{
			name:   "GET is not a write",
			caller: AdminUser(RoleAPIAccess),
			method: MethodGet,
			want:   Deny(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := p.DecideForWrite(tc.caller, tc.method, tc.op)
			assert.Equal(t, tc.want.Effect, got.Effect)
			assert.True(t, tc.want.Predicate.Equal(got.Predicate), "predicate = %s, want %s", got.Predicate, tc.want.Predicate)
			assert.NotEmpty(t, got.Rule)
		})
	}
}

func TestShopUserRemoveItemScenario(t *testing.T) {
	d := NewOrderVisibility().DecideForWrite(ShopUser(3, RoleUser), MethodDelete, "shop_remove_item")

	require.True(t, d.Allowed())
	want := Predicate{Op: OpAnd, Args: []Predicate{CustomerEquals(3), StateEquals(StateCart)}}
	assert.Equal(t, want, d.Predicate)
	assert.Equal(t, `customer = 3 AND state = "cart"`, d.Predicate.String())
}

func TestDecideRoutesByMethod(t *testing.T) {
	p := NewOrderVisibility()

	read := p.Decide(Anonymous(), MethodGet, "shop_get_order", CartCustomerOf(4))
	assert.Equal(t, Allow(CustomerEquals(4)).Predicate, read.Predicate)

	write := p.Decide(Anonymous(), MethodPatch, "shop_complete_checkout", CartCustomerOf(4))
	assert.True(t, write.Allowed())
	assert.Equal(t, "write.guest", write.Rule)
}

func TestDecisionsAreDeterministic(t *testing.T) {
	p := NewOrderVisibility()
	callers := []Caller{
		Anonymous(),
		AnonymousWithCustomer(2),
		ShopUser(3, RoleUser),
		ShopUser(3),
		AdminUser(RoleAPIAccess),
		AdminUser(),
	}
	methods := []Method{MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, "OPTIONS"}
	ops := []Operation{"", OpSelectPaymentMethod, "shop_remove_item"}

	for _, c := range callers {
		for _, m := range methods {
			for _, op := range ops {
				first := p.Decide(c, m, op, CartCustomerOf(11))
				second := p.Decide(c, m, op, CartCustomerOf(11))
				assert.Equal(t, first, second, "%s %s %s", c, m, op)
			}
		}
	}
}

func TestDecisionsAreSafeConcurrently(t *testing.T) {
	p := NewOrderVisibility()
	want := p.DecideForWrite(ShopUser(3, RoleUser), MethodDelete, "shop_remove_item")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got := p.DecideForWrite(ShopUser(3, RoleUser), MethodDelete, "shop_remove_item")
				if !got.Predicate.Equal(want.Predicate) {
					t.Errorf("predicate = %s, want %s", got.Predicate, want.Predicate)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDecisionErrAndJSON(t *testing.T) {
	deny := NewOrderVisibility().DecideForRead(AdminUser(), NoCartCustomer)
	assert.ErrorIs(t, deny.Err(), ErrAccessDenied)

	b, err := json.Marshal(deny)
	require.NoError(t, err)
	assert.JSONEq(t, `{"effect":"deny","rule":"read.default"}`, string(b))

	allow := NewOrderVisibility().DecideForWrite(ShopUser(3, RoleUser), MethodDelete, "shop_remove_item")
	assert.NoError(t, allow.Err())

	b, err = json.Marshal(allow)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"effect": "allow",
		"rule": "write.shop_user",
		"predicate": {"op": "and", "args": [
			{"op": "customer_equals", "customer": 3},
			{"op": "state_equals", "state": "cart"}
		]}
	}`, string(b))

	var back Decision
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, allow, back)
}

func TestParseMethod(t *testing.T) {
	assert.Equal(t, MethodPatch, ParseMethod(" patch "))
	assert.Equal(t, MethodDelete, ParseMethod("DELETE"))
}

func TestCallerString(t *testing.T) {
	assert.Equal(t, "anonymous", Anonymous().String())
	assert.Equal(t, "anonymous(customer=4)", AnonymousWithCustomer(4).String())
	assert.Equal(t, "shop(customer=7 roles=ROLE_USER)", ShopUser(7, RoleUser).String())
	assert.Equal(t, "admin(roles=ROLE_API_ACCESS,ROLE_X)", AdminUser("ROLE_X", RoleAPIAccess).String())
}

func TestCallerSpec(t *testing.T) {
	id := int64(3)
	c, err := CallerSpec{Kind: KindShopUser, CustomerID: &id, Roles: []string{RoleUser}}.Caller()
	require.NoError(t, err)
	assert.Equal(t, "shop(customer=3 roles=ROLE_USER)", c.String())

	c, err = CallerSpec{CustomerID: &id}.Caller()
	require.NoError(t, err)
	got, ok := c.CorrelatedCustomer()
	assert.True(t, ok)
	assert.Equal(t, CustomerID(3), got)

	_, err = CallerSpec{Kind: KindShopUser}.Caller()
	assert.Error(t, err)
	_, err = CallerSpec{Kind: "robot"}.Caller()
	assert.Error(t, err)
}
