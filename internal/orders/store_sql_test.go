package orders

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TwigBush/ordergate/internal/policy"
)

var orderColumns = []string{
	"token", "customer_id", "state", "payment_method", "items", "created_at", "updated_at",
	"joined_customer", "customer_email", "customer_user_id",
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "postgres")), mock
}

func TestSQLStoreGetPostgresQuery(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.token = $1 AND (o.customer_id = $2 AND o.state = $3)")).
		WithArgs("tok", int64(3), "cart").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("tok", int64(3), "cart", "", `[{"id":"i1","variant":"mug","quantity":1}]`, int64(0), int64(0),
				int64(3), "shop@example.com", int64(10)))

	o, err := s.Get(context.Background(), "tok",
		policy.And(policy.CustomerEquals(3), policy.StateEquals(policy.StateCart)))
	require.NoError(t, err)

	assert.Equal(t, "tok", o.Token)
	require.NotNil(t, o.CustomerID)
	assert.Equal(t, policy.CustomerID(3), *o.CustomerID)
	assert.True(t, o.CustomerHasUser())
	require.Len(t, o.Items, 1)
	assert.Equal(t, "mug", o.Items[0].Variant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetFilteredOutIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.token = $1 AND o.customer_id IS NULL")).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(orderColumns))

	_, err := s.Get(context.Background(), "tok", policy.CustomerIsNull())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreDeleteRunsInTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.token = $1 AND o.state = $2 FOR UPDATE OF o")).
		WithArgs("tok", "cart").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("tok", nil, "cart", "", "[]", int64(0), int64(0), nil, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders WHERE token = $1 AND token IN")).
		WithArgs("tok", "tok", "cart").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), "tok", policy.StateEquals(policy.StateCart)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreDeleteOfRowThatStoppedMatching(t *testing.T) {
	s, mock := newMockStore(t)

	// the cart was completed after the check; the guarded delete hits nothing
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF o")).
		WithArgs("tok", "cart").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("tok", nil, "cart", "", "[]", int64(0), int64(0), nil, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("WHERE o.token = $2 AND o.state = $3)")).
		WithArgs("tok", "tok", "cart").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Delete(context.Background(), "tok", policy.StateEquals(policy.StateCart))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateGuardsTheWrite(t *testing.T) {
	s, mock := newMockStore(t)
	filter := policy.And(policy.CustomerEquals(3), policy.StateEquals(policy.StateCart))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.token = $1 AND (o.customer_id = $2 AND o.state = $3) FOR UPDATE OF o")).
		WithArgs("tok", int64(3), "cart").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("tok", int64(3), "cart", "", "[]", int64(0), int64(0), int64(3), "shop@example.com", int64(10)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET customer_id = $1, state = $2, payment_method = $3, items = $4, updated_at = $5 WHERE token = $6 AND token IN")).
		WithArgs(int64(3), "cart", "", sqlmock.AnyArg(), sqlmock.AnyArg(), "tok", "tok", int64(3), "cart").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), "tok", filter, func(o *Order) error {
		_, err := o.AddItem("mug", 1)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
