package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/islandgrocer/islandgrocer/internal/domain/order"
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. ApplyTransition
// runs inside a transaction holding a row lock on the order, so the
// expected-status check and the mutation commit as one atomic unit.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const orderColumns = `id, customer_id, driver_id, status, address, delivery_window, total, eta_seconds, created_at`

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o          order.Order
		driverID   *string
		status     string
		total      decimal.Decimal
		etaSeconds int64
		createdAt  time.Time
	)
	err := row.Scan(&o.ID, &o.CustomerID, &driverID, &status, &o.Address,
		&o.DeliveryWindow, &total, &etaSeconds, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}
	if driverID != nil {
		o.DriverID = *driverID
	}
	o.Status = order.Status(status)
	o.Total = total
	o.ETA = time.Duration(etaSeconds) * time.Second
	o.CreatedAt = createdAt.UTC()
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []string) (map[string][]order.LineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id, id, product_id, name, unit_price, quantity,
		       substitution, resolution, substitute_item, notes
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "query order items")
	}
	defer rows.Close()

	items := make(map[string][]order.LineItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID      string
			item         order.LineItem
			substitution string
			resolution   string
		)
		err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.Name,
			&item.UnitPrice, &item.Quantity, &substitution, &resolution,
			&item.Resolution.SubstituteItem, &item.Resolution.Notes)
		if err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		item.Substitution = order.SubstitutionPreference(substitution)
		item.Resolution.Status = order.ResolutionStatus(resolution)
		items[orderID] = append(items[orderID], item)
	}
	return items, errors.Wrap(rows.Err(), "iterate order items")
}

// Create persists a new order and its line items in one transaction.
func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var driverID *string
	if o.DriverID != "" {
		driverID = &o.DriverID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_id, driver_id, status, address, delivery_window, total, eta_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.CustomerID, driverID, string(o.Status), o.Address,
		o.DeliveryWindow, o.Total, int64(o.ETA/time.Second), o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return order.ErrAlreadyExists
		}
		return errors.Wrapf(err, "insert order %q", o.ID)
	}

	batch := &pgx.Batch{}
	for i, item := range o.Items {
		batch.Queue(`
			INSERT INTO order_items (id, order_id, position, product_id, name, unit_price, quantity, substitution, resolution, substitute_item, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			item.ID, o.ID, i, item.ProductID, item.Name, item.UnitPrice,
			item.Quantity, string(item.Substitution), string(item.Resolution.Status),
			item.Resolution.SubstituteItem, item.Resolution.Notes)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "insert order items")
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// Get returns the order with the given ID.
func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, s.pool, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return o, nil
}

// List returns orders matching the filter, most recent first.
func (s *OrderStore) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.DriverID != "" {
		args = append(args, f.DriverID)
		where = append(where, "driver_id = $"+strconv.Itoa(len(args)))
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		where = append(where, "customer_id = $"+strconv.Itoa(len(args)))
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	defer rows.Close()

	var (
		out []order.Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := loadItems(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

// ApplyTransition locks the order row, verifies the expected status, applies
// the mutation, and persists the result. The row lock makes the precondition
// check and the write atomic with respect to every other caller; losers of a
// race observe the committed status and get a StatusConflictError.
func (s *OrderStore) ApplyTransition(ctx context.Context, id string, expected order.Status, mutate func(*order.Order) error) (*order.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, tx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]

	if o.Status != expected {
		return nil, &order.StatusConflictError{Expected: expected, Current: o.Status}
	}
	if err := mutate(o); err != nil {
		return nil, err
	}

	var driverID *string
	if o.DriverID != "" {
		driverID = &o.DriverID
	}
	_, err = tx.Exec(ctx, `
		UPDATE orders SET driver_id = $2, status = $3, eta_seconds = $4
		WHERE id = $1`,
		o.ID, driverID, string(o.Status), int64(o.ETA/time.Second))
	if err != nil {
		return nil, errors.Wrapf(err, "update order %q", o.ID)
	}

	// Only the resolution fields of a line item are mutable after checkout.
	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`
			UPDATE order_items SET resolution = $2, substitute_item = $3, notes = $4
			WHERE id = $1`,
			item.ID, string(item.Resolution.Status),
			item.Resolution.SubstituteItem, item.Resolution.Notes)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, errors.Wrap(err, "update order items")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return o, nil
}
