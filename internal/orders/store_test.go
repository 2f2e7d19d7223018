package orders

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TwigBush/ordergate/internal/policy"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	fsStore, err := NewFileStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	sqlStore, err := OpenSQL("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })
	require.NoError(t, sqlStore.Migrate(context.Background()))

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fsStore,
		"sqlite": sqlStore,
	}
}

func cust(id policy.CustomerID) *policy.CustomerID { return &id }

type fixture struct {
	guestCart     *Order
	userCart      *Order
	guestCustomer *Order
	userPlaced    *Order
}

func seed(t *testing.T, s Store) fixture {
	t.Helper()
	ctx := context.Background()
	uid := int64(10)
	require.NoError(t, s.UpsertCustomer(ctx, Customer{ID: 1, Email: "shop@example.com", UserID: &uid}))
	require.NoError(t, s.UpsertCustomer(ctx, Customer{ID: 2, Email: "guest@example.com"}))

	var f fixture
	var err error
	f.guestCart, err = s.Create(ctx, &Order{})
	require.NoError(t, err)
	f.userCart, err = s.Create(ctx, &Order{CustomerID: cust(1)})
	require.NoError(t, err)
	f.guestCustomer, err = s.Create(ctx, &Order{CustomerID: cust(2)})
	require.NoError(t, err)
	f.userPlaced, err = s.Create(ctx, &Order{CustomerID: cust(1), State: StateNew})
	require.NoError(t, err)
	return f
}

func TestStoreCreateDefaults(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)

			assert.NotEmpty(t, f.guestCart.Token)
			assert.Equal(t, StateCart, f.guestCart.State)
			assert.Empty(t, f.guestCart.Items)
			assert.Nil(t, f.guestCart.Customer)
			assert.False(t, f.guestCart.CreatedAt.IsZero())

			require.NotNil(t, f.userCart.Customer)
			assert.True(t, f.userCart.CustomerHasUser())
			assert.False(t, f.guestCustomer.CustomerHasUser())
		})
	}
}

func TestStoreCreateUnknownCustomer(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(context.Background(), &Order{CustomerID: cust(99)})
			assert.ErrorIs(t, err, ErrUnknownCustomer)
		})
	}
}

func TestStoreGetAppliesFilter(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)

			o, err := s.Get(ctx, f.userCart.Token, policy.CustomerEquals(1))
			require.NoError(t, err)
			assert.Equal(t, f.userCart.Token, o.Token)

			_, err = s.Get(ctx, f.guestCart.Token, policy.CustomerEquals(1))
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Get(ctx, "missing", policy.True())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreListAppliesFilter(t *testing.T) {
	ctx := context.Background()
	guestWrite := policy.And(policy.Or(policy.CustomerUserIsNull(), policy.CustomerIsNull()), policy.StateEquals(StateCart))

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)

			all, err := s.List(ctx, policy.True())
			require.NoError(t, err)
			assert.Len(t, all, 4)

			guest, err := s.List(ctx, guestWrite)
			require.NoError(t, err)
			tokens := []string{}
			for _, o := range guest {
				tokens = append(tokens, o.Token)
			}
			assert.ElementsMatch(t, []string{f.guestCart.Token, f.guestCustomer.Token}, tokens)

			mine, err := s.List(ctx, policy.CustomerEquals(1))
			require.NoError(t, err)
			assert.Len(t, mine, 2)
		})
	}
}

func TestStoreUpdate(t *testing.T) {
	ctx := context.Background()
	shopWrite := policy.And(policy.CustomerEquals(1), policy.StateEquals(StateCart))

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)

			var added Item
			o, err := s.Update(ctx, f.userCart.Token, shopWrite, func(o *Order) error {
				var err error
				added, err = o.AddItem("mug", 2)
				return err
			})
			require.NoError(t, err)
			require.Len(t, o.Items, 1)

			back, err := s.Get(ctx, f.userCart.Token, policy.True())
			require.NoError(t, err)
			require.Len(t, back.Items, 1)
			assert.Equal(t, added.ID, back.Items[0].ID)
			assert.Equal(t, 2, back.Items[0].Quantity)

			_, err = s.Update(ctx, f.userPlaced.Token, shopWrite, func(o *Order) error { return nil })
			assert.ErrorIs(t, err, ErrNotFound)

			boom := errors.New("boom")
			_, err = s.Update(ctx, f.userCart.Token, shopWrite, func(o *Order) error {
				o.Items = nil
				return boom
			})
			assert.ErrorIs(t, err, boom)

			back, err = s.Get(ctx, f.userCart.Token, policy.True())
			require.NoError(t, err)
			assert.Len(t, back.Items, 1, "failed mutation must not persist")
		})
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)
			cartOnly := policy.StateEquals(StateCart)

			assert.ErrorIs(t, s.Delete(ctx, f.userPlaced.Token, cartOnly), ErrNotFound)
			require.NoError(t, s.Delete(ctx, f.userCart.Token, cartOnly))

			_, err := s.Get(ctx, f.userCart.Token, policy.True())
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Get(ctx, f.userPlaced.Token, policy.True())
			assert.NoError(t, err)
		})
	}
}

func TestStoreCustomerLinkIsLive(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)

			uid := int64(20)
			require.NoError(t, s.UpsertCustomer(ctx, Customer{ID: 2, Email: "guest@example.com", UserID: &uid}))

			o, err := s.Get(ctx, f.guestCustomer.Token, policy.True())
			require.NoError(t, err)
			assert.True(t, o.CustomerHasUser())

			c, err := s.GetCustomer(ctx, 2)
			require.NoError(t, err)
			require.NotNil(t, c.UserID)
			assert.Equal(t, int64(20), *c.UserID)
		})
	}
}

func TestOrderMutations(t *testing.T) {
	o := &Order{State: StateCart}

	_, err := o.AddItem("", 1)
	assert.ErrorIs(t, err, ErrMissingReference)
	_, err = o.AddItem("mug", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assert.ErrorIs(t, o.Complete(), ErrEmptyCart)

	a, err := o.AddItem("mug", 1)
	require.NoError(t, err)
	b, err := o.AddItem("mug", 2)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 3, b.Quantity)

	assert.ErrorIs(t, o.RemoveItem("nope"), ErrItemNotFound)
	require.NoError(t, o.SelectPaymentMethod("cash_on_delivery"))
	require.NoError(t, o.Complete())
	assert.Equal(t, StateNew, o.State)
	assert.ErrorIs(t, o.Complete(), ErrInvalidState)

	require.NoError(t, o.SelectPaymentMethod("bank_transfer"))
	o.State = StateCancelled
	assert.ErrorIs(t, o.SelectPaymentMethod("bank_transfer"), ErrInvalidState)

	require.NoError(t, o.RemoveItem(a.ID))
	assert.Empty(t, o.Items)
}
