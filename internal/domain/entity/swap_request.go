package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

type PartyRole string

const (
	RoleRequester PartyRole = "requester"
	RoleOwner     PartyRole = "owner"
)

// SwapRequest - предложение обмена между двумя пользователями и его жизненный цикл.
type SwapRequest struct {
	ID                    uuid.UUID
	RequesterID           uuid.UUID
	OwnerID               uuid.UUID
	ProductID             uuid.UUID
	OfferedProductID      *uuid.UUID
	PendingCurrencyAmount *valueobject.Valor
	AgreedPriceRequester  *valueobject.Valor
	AgreedPriceOwner      *valueobject.Valor
	NegotiationStatus     valueobject.NegotiationStatus
	Status                valueobject.SwapStatus
	Message               string

	DeliveryType    valueobject.DeliveryType
	DeliveryPointID *uuid.UUID
	CustomLocation  *string
	DeliveryAt      *time.Time
	LastProposedBy  *uuid.UUID

	QRCode                   string
	QRUsedAt                 *time.Time
	OwnerArrived             bool
	RequesterArrived         bool
	OwnerReceivedProduct     bool
	RequesterReceivedProduct bool
	VerificationCodeHash     string
	CodeIssuedAt             *time.Time
	CodeUsedAt               *time.Time

	DropOffDeadline *time.Time
	DroppedOffAt    *time.Time
	PickedUpAt      *time.Time

	PackagingEvidence valueobject.EvidenceSet
	DeliveryEvidence  valueobject.EvidenceSet
	ReceivingEvidence valueobject.EvidenceSet

	DisputeWindowEndsAt *time.Time
	CompletedAt         *time.Time
	SettledAt           *time.Time
	HoldReleasedAt      *time.Time
	CancelledBy         *uuid.UUID
	CancelReason        string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	// Переходы, ещё не записанные в журнал. Репозиторий сохраняет их вместе с заявкой.
	PendingTransitions []StatusTransition
}

// StatusTransition - запись журнала статусов. ActorID пуст для системных переходов.
type StatusTransition struct {
	SwapRequestID uuid.UUID
	From          valueobject.SwapStatus
	To            valueobject.SwapStatus
	ActorID       *uuid.UUID
	At            time.Time
}

// Offer - встречное предложение: либо товар, либо сумма в валорах.
type Offer struct {
	OfferedProductID *uuid.UUID
	CurrencyAmount   *valueobject.Valor
}

func (o Offer) validate() error {
	if o.OfferedProductID != nil && o.CurrencyAmount != nil {
		return apperror.New(apperror.ErrCodeValidation, "укажите либо товар, либо сумму, но не оба")
	}
	if o.OfferedProductID == nil && o.CurrencyAmount == nil {
		return apperror.New(apperror.ErrCodeValidation, "нужно предложить товар или сумму")
	}
	return nil
}

// DeliveryProposal - способ, место и время передачи.
type DeliveryProposal struct {
	Type            valueobject.DeliveryType
	DeliveryPointID *uuid.UUID
	CustomLocation  *string
	At              *time.Time
}

func (p DeliveryProposal) validate(now time.Time) error {
	if p.Type == valueobject.DeliveryTypeUnset || !p.Type.IsValid() {
		return apperror.New(apperror.ErrCodeValidation, "способ передачи должен быть face_to_face или drop_off")
	}
	hasPoint := p.DeliveryPointID != nil
	hasCustom := p.CustomLocation != nil && *p.CustomLocation != ""
	if hasPoint == hasCustom {
		return apperror.New(apperror.ErrCodeValidation, "укажите либо пункт выдачи, либо своё место")
	}
	if p.Type == valueobject.DeliveryTypeDropOff && !hasPoint {
		return apperror.New(apperror.ErrCodeValidation, "для drop_off нужен пункт выдачи")
	}
	if p.At != nil && p.At.Before(now) {
		return apperror.New(apperror.ErrCodeValidation, "время передачи не может быть в прошлом")
	}
	return nil
}

func NewSwapRequest(requesterID, ownerID, productID uuid.UUID, offer Offer, message string, now time.Time) (*SwapRequest, error) {
	if requesterID == ownerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя предложить обмен самому себе")
	}
	if err := offer.validate(); err != nil {
		return nil, err
	}
	if offer.OfferedProductID != nil && *offer.OfferedProductID == productID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя предложить тот же товар")
	}

	s := &SwapRequest{
		ID:                    uuid.New(),
		RequesterID:           requesterID,
		OwnerID:               ownerID,
		ProductID:             productID,
		OfferedProductID:      offer.OfferedProductID,
		PendingCurrencyAmount: offer.CurrencyAmount,
		AgreedPriceRequester:  offer.CurrencyAmount,
		NegotiationStatus:     valueobject.NegotiationStatusNone,
		Status:                valueobject.SwapStatusPending,
		Message:               message,
		DeliveryType:          valueobject.DeliveryTypeUnset,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.PendingTransitions = []StatusTransition{{
		SwapRequestID: s.ID,
		To:            valueobject.SwapStatusPending,
		ActorID:       &requesterID,
		At:            now,
	}}
	return s, nil
}

func (s *SwapRequest) RoleOf(userID uuid.UUID) (PartyRole, bool) {
	switch userID {
	case s.RequesterID:
		return RoleRequester, true
	case s.OwnerID:
		return RoleOwner, true
	}
	return "", false
}

func (s *SwapRequest) IsParty(userID uuid.UUID) bool {
	_, ok := s.RoleOf(userID)
	return ok
}

func (s *SwapRequest) Counterpart(userID uuid.UUID) uuid.UUID {
	if userID == s.OwnerID {
		return s.RequesterID
	}
	return s.OwnerID
}

// ProposeOffer заменяет активное предложение и передаёт ход другой стороне.
func (s *SwapRequest) ProposeOffer(actor uuid.UUID, offer Offer, now time.Time) error {
	role, err := s.requireParty(actor)
	if err != nil {
		return err
	}
	if s.Status != valueobject.SwapStatusPending && s.Status != valueobject.SwapStatusNegotiating {
		return s.invalidTransition("торг возможен только до принятия заявки")
	}
	if err := offer.validate(); err != nil {
		return err
	}
	if offer.OfferedProductID != nil && *offer.OfferedProductID == s.ProductID {
		return apperror.New(apperror.ErrCodeValidation, "нельзя предложить тот же товар")
	}

	s.OfferedProductID = offer.OfferedProductID
	s.PendingCurrencyAmount = offer.CurrencyAmount
	if role == RoleRequester {
		s.AgreedPriceRequester = offer.CurrencyAmount
	} else {
		s.AgreedPriceOwner = offer.CurrencyAmount
	}
	s.NegotiationStatus = valueobject.NegotiationStatusProposed
	s.LastProposedBy = &actor

	if s.Status == valueobject.SwapStatusPending {
		return s.transition(valueobject.SwapStatusNegotiating, &actor, now)
	}
	s.UpdatedAt = now
	return nil
}

// Accept: из pending принимает только владелец, из negotiating - сторона, не делавшая последнее предложение.
func (s *SwapRequest) Accept(actor uuid.UUID, now time.Time) error {
	role, err := s.requireParty(actor)
	if err != nil {
		return err
	}
	switch s.Status {
	case valueobject.SwapStatusPending:
		if role != RoleOwner {
			return s.invalidTransition("принять заявку может только владелец товара")
		}
	case valueobject.SwapStatusNegotiating:
		if s.LastProposedBy != nil && *s.LastProposedBy == actor {
			return s.invalidTransition("нельзя принять собственное предложение")
		}
	default:
		return s.invalidTransition("заявку уже нельзя принять")
	}

	if s.PendingCurrencyAmount != nil {
		s.AgreedPriceRequester = s.PendingCurrencyAmount
		s.AgreedPriceOwner = s.PendingCurrencyAmount
	}
	if s.NegotiationStatus == valueobject.NegotiationStatusProposed {
		s.NegotiationStatus = valueobject.NegotiationStatusAgreed
	}
	s.LastProposedBy = nil
	return s.transition(valueobject.SwapStatusAccepted, &actor, now)
}

func (s *SwapRequest) Reject(actor uuid.UUID, now time.Time) error {
	if _, err := s.requireParty(actor); err != nil {
		return err
	}
	if actor != s.OwnerID {
		return s.invalidTransition("отклонить заявку может только владелец, заявитель может её отменить")
	}
	if s.Status != valueobject.SwapStatusPending && s.Status != valueobject.SwapStatusNegotiating {
		return s.invalidTransition("заявку уже нельзя отклонить")
	}
	return s.transition(valueobject.SwapStatusRejected, &actor, now)
}

// Cancel доступен обеим сторонам, пока физическая передача не началась.
func (s *SwapRequest) Cancel(actor uuid.UUID, reason string, now time.Time) error {
	role, err := s.requireParty(actor)
	if err != nil {
		return err
	}
	switch s.Status {
	case valueobject.SwapStatusPending, valueobject.SwapStatusNegotiating:
		if role != RoleRequester {
			return s.invalidTransition("до принятия владелец может только отклонить заявку")
		}
	case valueobject.SwapStatusAccepted, valueobject.SwapStatusDeliveryProposed, valueobject.SwapStatusQRGenerated:
		if s.Status == valueobject.SwapStatusQRGenerated && !s.PackagingEvidence.IsEmpty() {
			return s.invalidTransition("товар уже упакован, отмена возможна только через спор")
		}
	default:
		return s.invalidTransition("отмена на этом этапе невозможна")
	}
	s.CancelledBy = &actor
	s.CancelReason = reason
	return s.transition(valueobject.SwapStatusCancelled, &actor, now)
}

// ExpireDropOff - системная отмена, если товар не сдан в пункт до дедлайна.
func (s *SwapRequest) ExpireDropOff(now time.Time) error {
	if s.Status != valueobject.SwapStatusQRGenerated || s.DeliveryType != valueobject.DeliveryTypeDropOff {
		return s.invalidTransition("заявка не ожидает сдачи в пункт")
	}
	if s.DropOffDeadline == nil || !now.After(*s.DropOffDeadline) {
		return apperror.New(apperror.ErrCodePreconditionFailed, "срок сдачи в пункт ещё не истёк")
	}
	s.CancelReason = "истёк срок сдачи в пункт выдачи"
	return s.transition(valueobject.SwapStatusCancelled, nil, now)
}

// --- общие помощники ---

func (s *SwapRequest) requireParty(actor uuid.UUID) (PartyRole, error) {
	role, ok := s.RoleOf(actor)
	if !ok {
		return "", apperror.ErrForbidden
	}
	return role, nil
}

func (s *SwapRequest) requireRole(actor uuid.UUID, want PartyRole, action string) error {
	role, err := s.requireParty(actor)
	if err != nil {
		return err
	}
	if role != want {
		return s.invalidTransition(action + " может только " + roleTitle(want))
	}
	return nil
}

func roleTitle(r PartyRole) string {
	if r == RoleOwner {
		return "владелец"
	}
	return "заявитель"
}

func (s *SwapRequest) requireStatus(want valueobject.SwapStatus, msg string) error {
	if s.Status != want {
		return s.invalidTransition(msg)
	}
	return nil
}

func (s *SwapRequest) transition(to valueobject.SwapStatus, actor *uuid.UUID, now time.Time) error {
	if !valueobject.CanTransition(s.DeliveryType, s.Status, to) {
		return s.invalidTransition("переход " + string(s.Status) + " -> " + string(to) + " недопустим")
	}
	s.PendingTransitions = append(s.PendingTransitions, StatusTransition{
		SwapRequestID: s.ID,
		From:          s.Status,
		To:            to,
		ActorID:       actor,
		At:            now,
	})
	s.Status = to
	s.UpdatedAt = now
	return nil
}

func (s *SwapRequest) invalidTransition(msg string) error {
	return s.annotate(apperror.New(apperror.ErrCodeInvalidTransition, msg))
}

func (s *SwapRequest) preconditionFailed(msg string) error {
	return s.annotate(apperror.New(apperror.ErrCodePreconditionFailed, msg))
}

// annotate добавляет актуальное состояние, чтобы клиент мог перерисовать доступные действия.
func (s *SwapRequest) annotate(err *apperror.AppError) *apperror.AppError {
	err = err.WithDetail(apperror.DetailCurrentStatus, string(s.Status))
	if s.DeliveryType != valueobject.DeliveryTypeUnset {
		err = err.WithDetail(apperror.DetailDeliveryType, string(s.DeliveryType))
	}
	if s.LastProposedBy != nil {
		err = err.WithDetail(apperror.DetailLastProposedBy, s.LastProposedBy.String())
	}
	return err
}

// SettlementAmount - сколько валоров заявитель платит владельцу при завершении.
func (s *SwapRequest) SettlementAmount() valueobject.Valor {
	if s.OfferedProductID != nil || s.PendingCurrencyAmount == nil {
		return 0
	}
	return *s.PendingCurrencyAmount
}

// ClearPendingTransitions вызывается репозиторием после успешной записи.
func (s *SwapRequest) ClearPendingTransitions() {
	s.PendingTransitions = nil
}

// Clone возвращает глубокую копию, чтобы хранилище не делило память с вызывающим кодом.
func (s *SwapRequest) Clone() *SwapRequest {
	cp := *s
	cp.PackagingEvidence = cloneEvidence(s.PackagingEvidence)
	cp.DeliveryEvidence = cloneEvidence(s.DeliveryEvidence)
	cp.ReceivingEvidence = cloneEvidence(s.ReceivingEvidence)
	cp.PendingTransitions = append([]StatusTransition(nil), s.PendingTransitions...)
	return &cp
}

func cloneEvidence(e valueobject.EvidenceSet) valueobject.EvidenceSet {
	return valueobject.EvidenceSet{
		Photos:   append([]string(nil), e.Photos...),
		SealedAt: e.SealedAt,
	}
}
