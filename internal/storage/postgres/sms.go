package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/islandgrocer/islandgrocer/internal/domain/sms"
)

var _ sms.Repository = (*SMSRepository)(nil)

// SMSRepository implements the SMS log backed by PostgreSQL.
type SMSRepository struct {
	pool *pgxpool.Pool
}

// NewSMSRepository returns an SMSRepository that uses the given pool.
func NewSMSRepository(pool *pgxpool.Pool) *SMSRepository {
	return &SMSRepository{pool: pool}
}

// Create appends one message to the log.
func (r *SMSRepository) Create(ctx context.Context, m *sms.Message) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sms_messages (id, order_id, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.OrderID, m.Body, string(m.Status), m.CreatedAt)
	return errors.Wrapf(err, "insert sms %q", m.ID)
}

// List returns messages newest first.
func (r *SMSRepository) List(ctx context.Context, limit, offset int) ([]sms.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, body, status, created_at
		FROM sms_messages
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "query sms messages")
	}
	defer rows.Close()

	var out []sms.Message
	for rows.Next() {
		var (
			m      sms.Message
			status string
		)
		if err := rows.Scan(&m.ID, &m.OrderID, &m.Body, &status, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan sms message")
		}
		m.Status = sms.DeliveryStatus(status)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "iterate sms messages")
}
