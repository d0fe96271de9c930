package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// ProposeDelivery записывает предложение о передаче. Повторный вызов в
// delivery_proposed - встречное предложение: статус не меняется, ход переходит.
func (s *SwapRequest) ProposeDelivery(actor uuid.UUID, p DeliveryProposal, now time.Time) error {
	if _, err := s.requireParty(actor); err != nil {
		return err
	}
	if s.Status != valueobject.SwapStatusAccepted && s.Status != valueobject.SwapStatusDeliveryProposed {
		return s.invalidTransition("предложить передачу можно только после принятия заявки")
	}
	if err := p.validate(now); err != nil {
		return err
	}

	s.DeliveryType = p.Type
	s.DeliveryPointID = p.DeliveryPointID
	s.CustomLocation = p.CustomLocation
	if p.DeliveryPointID != nil {
		s.CustomLocation = nil
	}
	s.DeliveryAt = p.At
	s.LastProposedBy = &actor

	if s.Status == valueobject.SwapStatusAccepted {
		return s.transition(valueobject.SwapStatusDeliveryProposed, &actor, now)
	}
	s.UpdatedAt = now
	return nil
}

// AcceptDelivery принимает предложение другой стороны и выдаёт QR.
// Для drop_off считается дедлайн сдачи в пункт.
func (s *SwapRequest) AcceptDelivery(actor uuid.UUID, qrToken string, dropOffBusinessDays int, now time.Time) error {
	if _, err := s.requireParty(actor); err != nil {
		return err
	}
	if err := s.requireStatus(valueobject.SwapStatusDeliveryProposed, "нет предложения о передаче"); err != nil {
		return err
	}
	if s.LastProposedBy == nil || *s.LastProposedBy == actor {
		return s.invalidTransition("нельзя принять собственное предложение о передаче")
	}
	if qrToken == "" {
		return apperror.New(apperror.ErrCodeInternal, "не выпущен QR-код")
	}

	s.QRCode = qrToken
	if s.DeliveryType == valueobject.DeliveryTypeDropOff {
		deadline := valueobject.AddBusinessDays(now, dropOffBusinessDays)
		s.DropOffDeadline = &deadline
	} else {
		s.DropOffDeadline = nil
	}
	return s.transition(valueobject.SwapStatusQRGenerated, &actor, now)
}

// AddEvidence дописывает снимки к набору этапа.
func (s *SwapRequest) AddEvidence(actor uuid.UUID, step valueobject.EvidenceStep, refs []string, now time.Time) error {
	switch step {
	case valueobject.EvidencePackaging:
		if err := s.requireRole(actor, RoleOwner, "фото упаковки загружает"); err != nil {
			return err
		}
		if err := s.requireStatus(valueobject.SwapStatusQRGenerated, "фото упаковки загружаются до передачи"); err != nil {
			return err
		}
		if s.OwnerArrived {
			return s.preconditionFailed("прибытие уже отмечено, фото упаковки закрыты")
		}
		set, err := s.PackagingEvidence.Append(refs)
		if err != nil {
			return err
		}
		s.PackagingEvidence = set

	case valueobject.EvidenceDelivery:
		if err := s.requireRole(actor, RoleOwner, "фото передачи загружает"); err != nil {
			return err
		}
		if s.DeliveryType != valueobject.DeliveryTypeFaceToFace {
			return s.invalidTransition("фото передачи нужны только при личной встрече")
		}
		if s.Status != valueobject.SwapStatusQRScanned && s.Status != valueobject.SwapStatusInspection {
			return s.invalidTransition("фото передачи загружаются после сканирования QR")
		}
		set, err := s.DeliveryEvidence.Append(refs)
		if err != nil {
			return err
		}
		s.DeliveryEvidence = set

	case valueobject.EvidenceReceiving:
		if err := s.requireRole(actor, RoleRequester, "фото получения загружает"); err != nil {
			return err
		}
		allowed := s.Status == valueobject.SwapStatusInspection ||
			(s.DeliveryType == valueobject.DeliveryTypeDropOff && s.Status == valueobject.SwapStatusDroppedOff)
		if !allowed {
			return s.invalidTransition("фото получения загружаются во время осмотра")
		}
		set, err := s.ReceivingEvidence.Append(refs)
		if err != nil {
			return err
		}
		s.ReceivingEvidence = set

	default:
		return apperror.New(apperror.ErrCodeValidation, "некорректный этап фотофиксации")
	}
	s.UpdatedAt = now
	return nil
}

// SetArrived ставит флаг прибытия своей стороны. Переход в arrived происходит
// ровно один раз - когда выставлен второй флаг. Повторная отметка ничего не меняет.
func (s *SwapRequest) SetArrived(actor uuid.UUID, now time.Time) (bool, error) {
	role, err := s.requireParty(actor)
	if err != nil {
		return false, err
	}
	if s.DeliveryType != valueobject.DeliveryTypeFaceToFace {
		return false, s.invalidTransition("отметка прибытия нужна только при личной встрече")
	}
	if s.Status == valueobject.SwapStatusArrived {
		return false, nil
	}
	if err := s.requireStatus(valueobject.SwapStatusQRGenerated, "отметить прибытие можно после выдачи QR"); err != nil {
		return false, err
	}

	if role == RoleOwner {
		if s.OwnerArrived {
			return false, nil
		}
		if s.PackagingEvidence.IsEmpty() {
			return false, s.preconditionFailed("сначала загрузите фото упаковки")
		}
		s.OwnerArrived = true
	} else {
		if s.RequesterArrived {
			return false, nil
		}
		s.RequesterArrived = true
	}
	s.UpdatedAt = now

	if s.OwnerArrived && s.RequesterArrived {
		s.PackagingEvidence = s.PackagingEvidence.Seal(now)
		if err := s.transition(valueobject.SwapStatusArrived, &actor, now); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ScanQR гасит QR-код. Повторное использование - PreconditionFailed.
func (s *SwapRequest) ScanQR(actor uuid.UUID, presented string, now time.Time) error {
	if err := s.requireRole(actor, RoleRequester, "сканировать QR"); err != nil {
		return err
	}
	if s.QRUsedAt != nil {
		return s.preconditionFailed("QR-код уже использован")
	}
	if err := s.requireStatus(valueobject.SwapStatusArrived, "QR сканируется после прибытия обеих сторон"); err != nil {
		return err
	}
	if !valueobject.MatchQRToken(s.QRCode, presented) {
		return s.preconditionFailed("QR-код не совпадает")
	}
	usedAt := now
	s.QRUsedAt = &usedAt
	return s.transition(valueobject.SwapStatusQRScanned, &actor, now)
}

func (s *SwapRequest) StartInspection(actor uuid.UUID, now time.Time) error {
	if err := s.requireRole(actor, RoleRequester, "начать осмотр"); err != nil {
		return err
	}
	switch {
	case s.DeliveryType == valueobject.DeliveryTypeFaceToFace && s.Status == valueobject.SwapStatusQRScanned:
	case s.DeliveryType == valueobject.DeliveryTypeDropOff && s.Status == valueobject.SwapStatusDroppedOff:
	default:
		return s.invalidTransition("осмотр начинается после сканирования QR или сдачи в пункт")
	}
	return s.transition(valueobject.SwapStatusInspection, &actor, now)
}

// Approve - заявитель доволен товаром; выдаётся свежий 6-значный код.
func (s *SwapRequest) Approve(actor uuid.UUID, codeHash string, now time.Time) error {
	if err := s.requireRole(actor, RoleRequester, "подтвердить товар"); err != nil {
		return err
	}
	if s.DeliveryType != valueobject.DeliveryTypeFaceToFace {
		return s.invalidTransition("при drop_off получение подтверждается кодом из пункта выдачи")
	}
	if err := s.requireStatus(valueobject.SwapStatusInspection, "подтверждение возможно только во время осмотра"); err != nil {
		return err
	}
	if s.ReceivingEvidence.IsEmpty() {
		return s.preconditionFailed("сначала загрузите фото полученного товара")
	}
	if codeHash == "" {
		return apperror.New(apperror.ErrCodeInternal, "не выпущен код подтверждения")
	}

	s.DeliveryEvidence = s.DeliveryEvidence.Seal(now)
	s.ReceivingEvidence = s.ReceivingEvidence.Seal(now)
	s.VerificationCodeHash = codeHash
	issuedAt := now
	s.CodeIssuedAt = &issuedAt
	s.RequesterReceivedProduct = true
	return s.transition(valueobject.SwapStatusCodeSent, &actor, now)
}

// VerifyCode - владелец вводит код заявителя; заявка завершается.
func (s *SwapRequest) VerifyCode(actor uuid.UUID, code string, disputeWindow time.Duration, now time.Time) error {
	if err := s.requireRole(actor, RoleOwner, "ввести код"); err != nil {
		return err
	}
	if s.CodeUsedAt != nil {
		return s.preconditionFailed("код уже использован")
	}
	if err := s.requireStatus(valueobject.SwapStatusCodeSent, "код ещё не выдан"); err != nil {
		return err
	}
	if !valueobject.MatchVerificationCode(s.VerificationCodeHash, code) {
		return s.preconditionFailed("код не совпадает")
	}
	usedAt := now
	s.CodeUsedAt = &usedAt
	s.OwnerReceivedProduct = s.OfferedProductID != nil
	return s.complete(&actor, disputeWindow, now)
}

// DropOff - владелец сдал товар в пункт; код уходит заявителю по внешнему каналу.
func (s *SwapRequest) DropOff(actor uuid.UUID, codeHash string, now time.Time) error {
	if err := s.requireRole(actor, RoleOwner, "сдать товар в пункт"); err != nil {
		return err
	}
	if s.DeliveryType != valueobject.DeliveryTypeDropOff {
		return s.invalidTransition("сдача в пункт возможна только для drop_off")
	}
	if err := s.requireStatus(valueobject.SwapStatusQRGenerated, "сдать товар можно после выдачи QR"); err != nil {
		return err
	}
	if s.PackagingEvidence.IsEmpty() {
		return s.preconditionFailed("сначала загрузите фото упаковки")
	}
	if s.DropOffDeadline != nil && now.After(*s.DropOffDeadline) {
		return s.preconditionFailed("срок сдачи в пункт истёк")
	}
	if codeHash == "" {
		return apperror.New(apperror.ErrCodeInternal, "не выпущен код подтверждения")
	}

	s.PackagingEvidence = s.PackagingEvidence.Seal(now)
	droppedAt := now
	s.DroppedOffAt = &droppedAt
	s.VerificationCodeHash = codeHash
	issuedAt := now
	s.CodeIssuedAt = &issuedAt
	return s.transition(valueobject.SwapStatusDroppedOff, &actor, now)
}

// PickUp - заявитель забрал товар и ввёл код из пункта выдачи.
func (s *SwapRequest) PickUp(actor uuid.UUID, code string, disputeWindow time.Duration, now time.Time) error {
	if err := s.requireRole(actor, RoleRequester, "забрать товар"); err != nil {
		return err
	}
	if s.DeliveryType != valueobject.DeliveryTypeDropOff {
		return s.invalidTransition("получение по коду возможно только для drop_off")
	}
	if s.CodeUsedAt != nil {
		return s.preconditionFailed("код уже использован")
	}
	if s.Status != valueobject.SwapStatusDroppedOff && s.Status != valueobject.SwapStatusInspection {
		return s.invalidTransition("товар ещё не сдан в пункт")
	}
	if !valueobject.MatchVerificationCode(s.VerificationCodeHash, code) {
		return s.preconditionFailed("код не совпадает")
	}
	usedAt := now
	s.CodeUsedAt = &usedAt
	pickedAt := now
	s.PickedUpAt = &pickedAt
	s.RequesterReceivedProduct = true
	s.OwnerReceivedProduct = s.OfferedProductID != nil
	s.ReceivingEvidence = s.ReceivingEvidence.Seal(now)
	return s.complete(&actor, disputeWindow, now)
}

func (s *SwapRequest) complete(actor *uuid.UUID, disputeWindow time.Duration, now time.Time) error {
	if err := s.transition(valueobject.SwapStatusCompleted, actor, now); err != nil {
		return err
	}
	completedAt := now
	windowEnds := now.Add(disputeWindow)
	s.CompletedAt = &completedAt
	s.DisputeWindowEndsAt = &windowEnds
	return nil
}

// OpenDispute переводит заявку в disputed: из completed в пределах окна
// (любая сторона) или из inspection (только заявитель, минуя подтверждение).
func (s *SwapRequest) OpenDispute(actor uuid.UUID, now time.Time) error {
	role, err := s.requireParty(actor)
	if err != nil {
		return err
	}
	switch s.Status {
	case valueobject.SwapStatusCompleted:
		if s.DisputeWindowEndsAt == nil || !now.Before(*s.DisputeWindowEndsAt) {
			return s.preconditionFailed("окно для спора закрыто")
		}
	case valueobject.SwapStatusInspection:
		if role != RoleRequester {
			return s.invalidTransition("во время осмотра спор открывает только заявитель")
		}
	default:
		return s.invalidTransition("спор можно открыть только после завершения или во время осмотра")
	}
	s.DeliveryEvidence = s.DeliveryEvidence.Seal(now)
	s.ReceivingEvidence = s.ReceivingEvidence.Seal(now)
	return s.transition(valueobject.SwapStatusDisputed, &actor, now)
}

// ResolveDispute фиксирует решение внешнего арбитра.
func (s *SwapRequest) ResolveDispute(admin uuid.UUID, outcome valueobject.ResolutionOutcome, now time.Time) error {
	if !outcome.IsValid() {
		return apperror.New(apperror.ErrCodeValidation, "некорректный исход спора")
	}
	if err := s.requireStatus(valueobject.SwapStatusDisputed, "заявка не находится в споре"); err != nil {
		return err
	}
	target, err := s.resolutionTarget(outcome)
	if err != nil {
		return err
	}
	return s.transition(target, &admin, now)
}

// resolutionTarget учитывает, был ли обмен проведён. Спор из осмотра
// прерывает передачу до расчёта: делить нечего, а любой другой исход
// отменяет заявку, товары и Valor остаются у владельцев.
func (s *SwapRequest) resolutionTarget(outcome valueobject.ResolutionOutcome) (valueobject.SwapStatus, error) {
	if s.SettledAt != nil {
		return outcome.TargetStatus(), nil
	}
	if outcome == valueobject.ResolutionEqualSplit {
		return "", s.preconditionFailed("обмен не был проведён, делить нечего")
	}
	return valueobject.SwapStatusCancelled, nil
}

func (s *SwapRequest) MarkSettled(now time.Time) {
	settledAt := now
	s.SettledAt = &settledAt
	s.UpdatedAt = now
}

func (s *SwapRequest) MarkHoldReleased(now time.Time) {
	releasedAt := now
	s.HoldReleasedAt = &releasedAt
	s.UpdatedAt = now
}

// HoldReleasable - окно спора прошло, расчёт сделан, удержание ещё не снято.
func (s *SwapRequest) HoldReleasable(now time.Time) bool {
	return s.Status == valueobject.SwapStatusCompleted &&
		s.SettledAt != nil && s.HoldReleasedAt == nil &&
		s.DisputeWindowEndsAt != nil && !now.Before(*s.DisputeWindowEndsAt)
}
