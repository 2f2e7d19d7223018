package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/TwigBush/ordergate/internal/policy"
	"github.com/TwigBush/ordergate/internal/sqlfilter"
)

// orderRow is the joined orders/customers row. Timestamps are unix
// microseconds so postgres and sqlite scan them the same way.
type orderRow struct {
	Token          string         `db:"token"`
	CustomerID     sql.NullInt64  `db:"customer_id"`
	State          string         `db:"state"`
	PaymentMethod  string         `db:"payment_method"`
	Items          string         `db:"items"`
	CreatedAt      int64          `db:"created_at"`
	UpdatedAt      int64          `db:"updated_at"`
	JoinedCustomer sql.NullInt64  `db:"joined_customer"`
	CustomerEmail  sql.NullString `db:"customer_email"`
	CustomerUserID sql.NullInt64  `db:"customer_user_id"`
}

type customerRow struct {
	ID     int64         `db:"id"`
	Email  string        `db:"email"`
	UserID sql.NullInt64 `db:"user_id"`
}

const selectOrders = `
	SELECT o.token, o.customer_id, o.state, o.payment_method, o.items, o.created_at, o.updated_at,
		c.id AS joined_customer, c.email AS customer_email, c.user_id AS customer_user_id
	FROM orders o
	LEFT JOIN customers c ON c.id = o.customer_id`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		user_id BIGINT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		token TEXT PRIMARY KEY,
		customer_id BIGINT NULL REFERENCES customers(id),
		state TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		items TEXT NOT NULL DEFAULT '[]',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS orders_customer_idx ON orders (customer_id)`,
}

// SQLStore stores orders in postgres (lib/pq) or sqlite (modernc). Visibility
// predicates are compiled into the WHERE clause.
type SQLStore struct {
	db   *sqlx.DB
	cols sqlfilter.Columns
	now  func() time.Time
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, cols: sqlfilter.DefaultColumns, now: func() time.Time { return time.Now().UTC() }}
}

// OpenSQL opens driver ("postgres" or "sqlite") at dsn.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// a :memory: database lives on a single connection
		db.SetMaxOpenConns(1)
	}
	return NewSQLStore(db), nil
}

func (s *SQLStore) DB() *sqlx.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) UpsertCustomer(ctx context.Context, c Customer) error {
	var uid sql.NullInt64
	if c.UserID != nil {
		uid = sql.NullInt64{Int64: *c.UserID, Valid: true}
	}
	q := s.db.Rebind(`
		INSERT INTO customers (id, email, user_id) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, user_id = excluded.user_id`)
	if _, err := s.db.ExecContext(ctx, q, int64(c.ID), c.Email, uid); err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

func (s *SQLStore) GetCustomer(ctx context.Context, id policy.CustomerID) (*Customer, error) {
	var row customerRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT id, email, user_id FROM customers WHERE id = ?`), int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownCustomer
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	c := &Customer{ID: policy.CustomerID(row.ID), Email: row.Email}
	if row.UserID.Valid {
		uid := row.UserID.Int64
		c.UserID = &uid
	}
	return c, nil
}

func (s *SQLStore) Create(ctx context.Context, o *Order) (*Order, error) {
	stored := cloneOrder(o)
	prepareNew(stored, s.now())

	if stored.CustomerID != nil {
		if _, err := s.GetCustomer(ctx, *stored.CustomerID); err != nil {
			return nil, err
		}
	}
	items, err := json.Marshal(stored.Items)
	if err != nil {
		return nil, err
	}
	q := s.db.Rebind(`
		INSERT INTO orders (token, customer_id, state, payment_method, items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, q,
		stored.Token, nullCustomer(stored.CustomerID), stored.State, stored.PaymentMethod,
		string(items), stored.CreatedAt.UnixMicro(), stored.UpdatedAt.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return s.Get(ctx, stored.Token, policy.True())
}

func (s *SQLStore) Get(ctx context.Context, token string, filter policy.Predicate) (*Order, error) {
	return s.get(ctx, s.db, token, filter, false)
}

func (s *SQLStore) List(ctx context.Context, filter policy.Predicate) ([]*Order, error) {
	where, args, err := sqlfilter.CompileFor(s.db.DriverName(), filter, s.cols)
	if err != nil {
		return nil, err
	}
	var rows []orderRow
	q := selectOrders + " WHERE " + where + " ORDER BY o.created_at, o.token"
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	out := make([]*Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.order()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Update and Delete lock the row (postgres) while the mutation runs, and
// repeat the filter in the write so a row that stopped matching is not
// touched.
func (s *SQLStore) Update(ctx context.Context, token string, filter policy.Predicate, mutate func(*Order) error) (*Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := s.get(ctx, tx, token, filter, true)
	if err != nil {
		return nil, err
	}
	if err := mutate(o); err != nil {
		return nil, err
	}
	o.Token = token
	o.UpdatedAt = s.now()

	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, err
	}
	guard, guardArgs, err := s.guarded(token, filter)
	if err != nil {
		return nil, err
	}
	q := tx.Rebind(`UPDATE orders SET customer_id = ?, state = ?, payment_method = ?, items = ?, updated_at = ? WHERE ` + guard)
	args := append([]any{nullCustomer(o.CustomerID), o.State, o.PaymentMethod, string(items), o.UpdatedAt.UnixMicro()}, guardArgs...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *SQLStore) Delete(ctx context.Context, token string, filter policy.Predicate) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.get(ctx, tx, token, filter, true); err != nil {
		return err
	}
	guard, args, err := s.guarded(token, filter)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM orders WHERE `+guard), args...)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return err
	}
	return tx.Commit()
}

// guarded is the WHERE clause of a filtered single-row write.
func (s *SQLStore) guarded(token string, filter policy.Predicate) (string, []any, error) {
	where, args, err := sqlfilter.Compile(filter, s.cols)
	if err != nil {
		return "", nil, err
	}
	clause := `token = ? AND token IN (
		SELECT o.token FROM orders o LEFT JOIN customers c ON c.id = o.customer_id
		WHERE o.token = ? AND ` + where + `)`
	return clause, append([]any{token, token}, args...), nil
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) get(ctx context.Context, q sqlx.QueryerContext, token string, filter policy.Predicate, lock bool) (*Order, error) {
	where, args, err := sqlfilter.Compile(filter, s.cols)
	if err != nil {
		return nil, err
	}
	query := selectOrders + " WHERE o.token = ? AND " + where
	// sqlite has no row locks; the filtered write still refuses a row that
	// stopped matching
	if lock && s.db.DriverName() == "postgres" {
		query += " FOR UPDATE OF o"
	}
	query = sqlx.Rebind(sqlx.BindType(s.db.DriverName()), query)

	var row orderRow
	err = sqlx.GetContext(ctx, q, &row, query, append([]any{token}, args...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return row.order()
}

func (r orderRow) order() (*Order, error) {
	o := &Order{
		Token:         r.Token,
		State:         r.State,
		PaymentMethod: r.PaymentMethod,
		CreatedAt:     time.UnixMicro(r.CreatedAt).UTC(),
		UpdatedAt:     time.UnixMicro(r.UpdatedAt).UTC(),
		Items:         []Item{},
	}
	if r.Items != "" {
		if err := json.Unmarshal([]byte(r.Items), &o.Items); err != nil {
			return nil, fmt.Errorf("decode items of %s: %w", r.Token, err)
		}
	}
	if r.CustomerID.Valid {
		id := policy.CustomerID(r.CustomerID.Int64)
		o.CustomerID = &id
	}
	if r.JoinedCustomer.Valid {
		c := &Customer{ID: policy.CustomerID(r.JoinedCustomer.Int64), Email: r.CustomerEmail.String}
		if r.CustomerUserID.Valid {
			uid := r.CustomerUserID.Int64
			c.UserID = &uid
		}
		o.Customer = c
	}
	return o, nil
}

func nullCustomer(id *policy.CustomerID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}
