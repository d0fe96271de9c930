package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// Product - карточка товара в том объёме, который нужен обмену.
// Value приходит от внешней службы оценки и здесь не вычисляется.
type Product struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Title     string
	Value     valueobject.Valor
	Location  *valueobject.Location
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Product) EnsureAvailable() error {
	if !p.Active {
		return apperror.New(apperror.ErrCodePreconditionFailed, "товар снят с обмена")
	}
	return nil
}

// Interest - ребро графа "пользователь хочет товар".
type Interest struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	CreatedAt time.Time
}

func NewInterest(userID uuid.UUID, product *Product, now time.Time) (*Interest, error) {
	if product.OwnerID == userID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя добавить интерес к собственному товару")
	}
	if err := product.EnsureAvailable(); err != nil {
		return nil, err
	}
	return &Interest{UserID: userID, ProductID: product.ID, CreatedAt: now}, nil
}

// InterestEdge - интерес вместе с желаемым товаром, вход движка цепочек.
type InterestEdge struct {
	UserID  uuid.UUID
	Product Product
}
