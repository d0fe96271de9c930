package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

type MultiSwapParticipant struct {
	Position            int
	UserID              uuid.UUID
	GivesProductID      uuid.UUID
	WantsProductID      uuid.UUID
	WantsProductOwnerID uuid.UUID
	Value               valueobject.Valor
	Confirmed           bool
	ConfirmedAt         *time.Time
}

// MultiSwap - цепочка, принятая к исполнению и ожидающая подтверждения всех участников.
type MultiSwap struct {
	ID           uuid.UUID
	InitiatorID  uuid.UUID
	ChainKey     string
	Status       valueobject.MultiSwapStatus
	Participants []MultiSwapParticipant
	TotalScore   float64
	CancelledBy  *uuid.UUID
	CancelReason string
	ExpiresAt    time.Time
	ConfirmedAt  *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewMultiSwap(initiatorID uuid.UUID, chain *Chain, ttl time.Duration, now time.Time) (*MultiSwap, error) {
	if chain == nil || len(chain.Participants) < 2 {
		return nil, apperror.New(apperror.ErrCodeValidation, "в цепочке должно быть минимум два участника")
	}
	if !chain.HasUser(initiatorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "создать обмен может только участник цепочки")
	}
	if ttl <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "срок подтверждения должен быть положительным")
	}

	m := &MultiSwap{
		ID:           uuid.New(),
		InitiatorID:  initiatorID,
		ChainKey:     chain.Key(),
		Status:       valueobject.MultiSwapStatusPending,
		Participants: make([]MultiSwapParticipant, 0, len(chain.Participants)),
		TotalScore:   chain.TotalScore,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	seen := make(map[uuid.UUID]struct{}, len(chain.Participants))
	for i, p := range chain.Participants {
		if _, dup := seen[p.UserID]; dup {
			return nil, apperror.New(apperror.ErrCodeValidation, "участник не может входить в цепочку дважды")
		}
		seen[p.UserID] = struct{}{}
		m.Participants = append(m.Participants, MultiSwapParticipant{
			Position:            i,
			UserID:              p.UserID,
			GivesProductID:      p.GivesProductID,
			WantsProductID:      p.WantsProductID,
			WantsProductOwnerID: p.WantsProductOwnerID,
			Value:               p.Value,
		})
	}
	return m, nil
}

func (m *MultiSwap) participant(userID uuid.UUID) (*MultiSwapParticipant, error) {
	for i := range m.Participants {
		if m.Participants[i].UserID == userID {
			return &m.Participants[i], nil
		}
	}
	return nil, apperror.ErrForbidden
}

func (m *MultiSwap) IsParticipant(userID uuid.UUID) bool {
	_, err := m.participant(userID)
	return err == nil
}

func (m *MultiSwap) IsExpired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// Confirm идемпотентен. Статус confirmed ставится, когда подтвердили все и срок не истёк.
func (m *MultiSwap) Confirm(userID uuid.UUID, now time.Time) (bool, error) {
	p, err := m.participant(userID)
	if err != nil {
		return false, err
	}
	if m.Status == valueobject.MultiSwapStatusConfirmed {
		return false, nil
	}
	if m.Status != valueobject.MultiSwapStatusPending {
		return false, m.invalidTransition("цепочка уже закрыта")
	}
	if m.IsExpired(now) {
		return false, m.preconditionFailed("срок подтверждения истёк")
	}
	if p.Confirmed {
		return false, nil
	}

	confirmedAt := now
	p.Confirmed = true
	p.ConfirmedAt = &confirmedAt
	m.UpdatedAt = now

	if m.AllConfirmed() {
		m.Status = valueobject.MultiSwapStatusConfirmed
		m.ConfirmedAt = &confirmedAt
	}
	return true, nil
}

// Reject одного участника отменяет цепочку для всех.
func (m *MultiSwap) Reject(userID uuid.UUID, reason string, now time.Time) error {
	if _, err := m.participant(userID); err != nil {
		return err
	}
	if m.Status != valueobject.MultiSwapStatusPending {
		return m.invalidTransition("отклонить можно только ожидающую цепочку")
	}
	if m.IsExpired(now) {
		return m.preconditionFailed("срок подтверждения истёк")
	}
	m.Status = valueobject.MultiSwapStatusCancelled
	m.CancelledBy = &userID
	m.CancelReason = reason
	m.UpdatedAt = now
	return nil
}

// Expire вызывается фоновой задачей для просроченных ожидающих цепочек.
func (m *MultiSwap) Expire(now time.Time) error {
	if m.Status != valueobject.MultiSwapStatusPending {
		return m.invalidTransition("цепочка уже закрыта")
	}
	if !m.IsExpired(now) {
		return m.preconditionFailed("срок подтверждения ещё не истёк")
	}
	m.Status = valueobject.MultiSwapStatusExpired
	m.UpdatedAt = now
	return nil
}

func (m *MultiSwap) AllConfirmed() bool {
	for _, p := range m.Participants {
		if !p.Confirmed {
			return false
		}
	}
	return len(m.Participants) > 0
}

func (m *MultiSwap) ConfirmedCount() int {
	n := 0
	for _, p := range m.Participants {
		if p.Confirmed {
			n++
		}
	}
	return n
}

// EffectiveStatus учитывает истечение срока, даже если фоновая задача ещё не отработала.
func (m *MultiSwap) EffectiveStatus(now time.Time) valueobject.MultiSwapStatus {
	if m.Status == valueobject.MultiSwapStatusPending && m.IsExpired(now) {
		return valueobject.MultiSwapStatusExpired
	}
	return m.Status
}

// ParticipantStatus - что видит конкретный участник.
func (m *MultiSwap) ParticipantStatus(userID uuid.UUID, now time.Time) valueobject.MultiSwapStatus {
	status := m.EffectiveStatus(now)
	if status != valueobject.MultiSwapStatusPending {
		return status
	}
	if p, err := m.participant(userID); err == nil && p.Confirmed {
		return valueobject.MultiSwapStatusConfirmed
	}
	return valueobject.MultiSwapStatusPending
}

func (m *MultiSwap) invalidTransition(msg string) error {
	return apperror.New(apperror.ErrCodeInvalidTransition, msg).
		WithDetail(apperror.DetailCurrentStatus, string(m.Status))
}

func (m *MultiSwap) preconditionFailed(msg string) error {
	return apperror.New(apperror.ErrCodePreconditionFailed, msg).
		WithDetail(apperror.DetailCurrentStatus, string(m.Status))
}

func (m *MultiSwap) Clone() *MultiSwap {
	cp := *m
	cp.Participants = append([]MultiSwapParticipant(nil), m.Participants...)
	return &cp
}
