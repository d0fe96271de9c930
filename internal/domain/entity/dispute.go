package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
	"github.com/ignatzorin/barter-backend/internal/validation"
)

type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
)

// Dispute - жалоба стороны на завершённый обмен. Решение принимает внешний арбитр.
type Dispute struct {
	ID             uuid.UUID
	SwapRequestID  uuid.UUID
	ReporterID     uuid.UUID
	Type           valueobject.DisputeType
	Description    string
	Photos         []string
	Status         DisputeStatus
	Outcome        *valueobject.ResolutionOutcome
	ResolutionNote string
	ResolvedBy     *uuid.UUID
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewDispute(swapRequestID, reporterID uuid.UUID, disputeType valueobject.DisputeType, description string, photos []string, minDescription int, now time.Time) (*Dispute, error) {
	if !disputeType.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный тип спора")
	}
	description = strings.TrimSpace(description)
	if err := validation.ValidateDisputeDescription(description, minDescription); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	clean, err := valueobject.NormalizePhotoRefs(photos, 1, valueobject.MaxEvidencePhotos)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePhotoRefs(clean); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	return &Dispute{
		ID:            uuid.New(),
		SwapRequestID: swapRequestID,
		ReporterID:    reporterID,
		Type:          disputeType,
		Description:   description,
		Photos:        clean,
		Status:        DisputeStatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Resolve записывает исход. Повторное решение запрещено.
func (d *Dispute) Resolve(adminID uuid.UUID, outcome valueobject.ResolutionOutcome, note string, now time.Time) error {
	if !outcome.IsValid() {
		return apperror.New(apperror.ErrCodeValidation, "некорректный исход спора")
	}
	if d.Status == DisputeStatusResolved {
		return apperror.New(apperror.ErrCodePreconditionFailed, "спор уже разрешён")
	}
	if err := validation.ValidateLength("комментарий", note, 0, validation.MaxResolutionNoteLength); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	resolvedAt := now
	d.Status = DisputeStatusResolved
	d.Outcome = &outcome
	d.ResolutionNote = note
	d.ResolvedBy = &adminID
	d.ResolvedAt = &resolvedAt
	d.UpdatedAt = now
	return nil
}

func (d *Dispute) Clone() *Dispute {
	cp := *d
	cp.Photos = append([]string(nil), d.Photos...)
	return &cp
}
