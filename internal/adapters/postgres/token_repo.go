package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
)

const tokenColumns = `id, user_id, symbol, chain, address, cex_symbol, created_at`

// TokenRepository implements the ports.TokenRepository interface
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new PostgreSQL token repository
func NewTokenRepository(db *DB) ports.TokenRepository {
	return &TokenRepository{db: db}
}

// ListIDs returns the ids of every tracked token
func (r *TokenRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id FROM tokens ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list token ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan token ids: %w", err)
	}

	return ids, nil
}

// GetByID retrieves a token by its ID
func (r *TokenRepository) GetByID(ctx context.Context, id int64) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1`

	token, err := scanToken(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return token, nil
}

// FindByValue matches symbol, address or CEX symbol.
// A userID of zero searches across all owners; the oldest match wins.
func (r *TokenRepository) FindByValue(ctx context.Context, userID int64, value string) (*domain.Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE (symbol = $1 OR address = $1 OR cex_symbol = $1)
		  AND ($2 = 0 OR user_id = $2)
		ORDER BY id
		LIMIT 1
	`

	token, err := scanToken(r.db.Pool.QueryRow(ctx, query, value, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}

	return token, nil
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Symbol,
		&t.Chain,
		&t.Address,
		&t.CEXSymbol,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Ensure TokenRepository implements ports.TokenRepository
var _ ports.TokenRepository = (*TokenRepository)(nil)
