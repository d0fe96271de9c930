package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
)

// ProductRepository - только чтение каталога; владение меняет Ledger.
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Product, error)
}

type InterestRepository interface {
	// Add идемпотентен.
	Add(ctx context.Context, interest *entity.Interest) error
	Remove(ctx context.Context, userID, productID uuid.UUID) error
	Has(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	// ListEdges - интересы к активным товарам вместе с товаром, не больше limit.
	ListEdges(ctx context.Context, limit int) ([]entity.InterestEdge, error)
}
