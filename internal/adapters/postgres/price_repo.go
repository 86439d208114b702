package postgres

import (
	"context"
	"fmt"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
)

// PriceRepository implements the ports.PriceRepository interface
type PriceRepository struct {
	db *DB
}

// NewPriceRepository creates a new PostgreSQL price repository
func NewPriceRepository(db *DB) ports.PriceRepository {
	return &PriceRepository{db: db}
}

// Create stores a new price record
func (r *PriceRepository) Create(ctx context.Context, record *domain.PriceRecord) error {
	query := `
		INSERT INTO prices (token_id, price_dex, price_cex, spread, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		record.TokenID,
		record.DEXPrice,
		record.CEXPrice,
		record.Spread,
		record.Timestamp,
	).Scan(&record.ID)

	if err != nil {
		return fmt.Errorf("failed to create price record: %w", err)
	}

	return nil
}

// Ensure PriceRepository implements ports.PriceRepository
var _ ports.PriceRepository = (*PriceRepository)(nil)
