package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
)

type HoldStatus string

const (
	HoldStatusHeld     HoldStatus = "held"
	HoldStatusFrozen   HoldStatus = "frozen"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusRefunded HoldStatus = "refunded"
	HoldStatusSplit    HoldStatus = "split"
)

// IsOpen - деньги ещё не ушли ни одной из сторон.
func (s HoldStatus) IsOpen() bool {
	return s == HoldStatusHeld || s == HoldStatusFrozen
}

// ValorHold - сумма, списанная с заявителя при завершении и ожидающая конца окна спора.
type ValorHold struct {
	SwapRequestID    uuid.UUID
	FromUserID       uuid.UUID
	ToUserID         uuid.UUID
	Amount           valueobject.Valor
	Status           HoldStatus
	ProductID        uuid.UUID
	OfferedProductID *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
