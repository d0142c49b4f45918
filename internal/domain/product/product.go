// Package product holds the grocery catalog model. Catalog browsing is plain
// read-only CRUD; the order core only consults it at checkout for price and
// existence lookups.
package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

// NotFoundError carries the missing product ID through the checkout path.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Product is one catalog entry.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Category    string
	ImageURL    string
	Description string
	InStock     bool
}

// ListFilter narrows a catalog listing. Zero-valued fields are ignored.
type ListFilter struct {
	Category    string
	InStockOnly bool
}

// Repository defines catalog persistence operations.
type Repository interface {
	List(ctx context.Context, f ListFilter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs fetches a batch of products in one call. Missing IDs are
	// simply absent from the result; the caller decides whether that is an
	// error.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
