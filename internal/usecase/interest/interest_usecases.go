package interest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/logger"
)

// ExpressInterestUseCase добавляет ребро "хочу этот товар" в граф цепочек.
type ExpressInterestUseCase struct {
	interests repository.InterestRepository
	products  repository.ProductRepository
	clock     func() time.Time
}

func NewExpressInterestUseCase(interests repository.InterestRepository, products repository.ProductRepository, clock func() time.Time) *ExpressInterestUseCase {
	if clock == nil {
		clock = time.Now
	}
	return &ExpressInterestUseCase{interests: interests, products: products, clock: clock}
}

func (uc *ExpressInterestUseCase) Execute(ctx context.Context, userID, productID uuid.UUID) (*entity.Interest, error) {
	product, err := uc.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	in, err := entity.NewInterest(userID, product, uc.clock())
	if err != nil {
		return nil, err
	}
	if err := uc.interests.Add(ctx, in); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":    userID,
		"product_id": productID,
	}).Debug("Интерес к товару добавлен")
	return in, nil
}

type WithdrawInterestUseCase struct {
	interests repository.InterestRepository
}

func NewWithdrawInterestUseCase(interests repository.InterestRepository) *WithdrawInterestUseCase {
	return &WithdrawInterestUseCase{interests: interests}
}

func (uc *WithdrawInterestUseCase) Execute(ctx context.Context, userID, productID uuid.UUID) error {
	return uc.interests.Remove(ctx, userID, productID)
}
