package ports

import (
	"context"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
)

// TokenRepository defines the read contract for tracked tokens
type TokenRepository interface {
	// ListIDs returns the ids of every tracked token
	ListIDs(ctx context.Context) ([]int64, error)

	// GetByID retrieves a token by its ID
	GetByID(ctx context.Context, id int64) (*domain.Token, error)

	// FindByValue matches symbol, address or CEX symbol.
	// A userID of zero searches across all owners.
	FindByValue(ctx context.Context, userID int64, value string) (*domain.Token, error)
}

// PriceRepository defines the append-only contract for price records
type PriceRepository interface {
	// Create stores a new price record and assigns its ID
	Create(ctx context.Context, record *domain.PriceRecord) error
}
