package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/islandgrocer/islandgrocer/internal/domain/auth"
)

var _ auth.Repository = (*TokenRepository)(nil)

// TokenRepository resolves bearer token hashes to user identities.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository returns a TokenRepository that uses the given pool.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// FindByTokenHash looks up the identity owning the token with the given
// HMAC-SHA256 hash.
func (r *TokenRepository) FindByTokenHash(ctx context.Context, hash string) (*auth.Identity, error) {
	var (
		id   auth.Identity
		role string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.name, u.role
		FROM auth_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1`, hash).Scan(&id.UserID, &id.Name, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrTokenNotFound
		}
		return nil, errors.Wrap(err, "query token")
	}
	id.Role = auth.Role(role)
	return &id, nil
}
