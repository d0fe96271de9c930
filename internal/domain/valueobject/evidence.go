package valueobject

import (
	"strings"
	"time"

	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// MaxEvidencePhotos - предел снимков в одном наборе доказательств.
const MaxEvidencePhotos = 5

type EvidenceStep string

const (
	EvidencePackaging EvidenceStep = "packaging"
	EvidenceDelivery  EvidenceStep = "delivery"
	EvidenceReceiving EvidenceStep = "receiving"
)

func NewEvidenceStep(v string) (EvidenceStep, error) {
	s := EvidenceStep(v)
	switch s {
	case EvidencePackaging, EvidenceDelivery, EvidenceReceiving:
		return s, nil
	}
	return "", apperror.New(apperror.ErrCodeValidation, "некорректный этап фотофиксации")
}

// EvidenceSet - упорядоченный набор ссылок на снимки.
// Пополняется только дописыванием и запечатывается переходом своего этапа.
type EvidenceSet struct {
	Photos   []string
	SealedAt *time.Time
}

func (e EvidenceSet) Count() int {
	return len(e.Photos)
}

func (e EvidenceSet) IsSealed() bool {
	return e.SealedAt != nil
}

func (e EvidenceSet) IsEmpty() bool {
	return len(e.Photos) == 0
}

// Append возвращает новый набор; исходный не меняется.
func (e EvidenceSet) Append(refs []string) (EvidenceSet, error) {
	if e.IsSealed() {
		return e, apperror.New(apperror.ErrCodePreconditionFailed, "фотофиксация этапа уже закрыта")
	}
	clean, err := NormalizePhotoRefs(refs, 1, MaxEvidencePhotos)
	if err != nil {
		return e, err
	}
	if len(e.Photos)+len(clean) > MaxEvidencePhotos {
		return e, apperror.Newf(apperror.ErrCodeValidation, "не более %d фото на этап", MaxEvidencePhotos)
	}
	photos := make([]string, 0, len(e.Photos)+len(clean))
	photos = append(photos, e.Photos...)
	photos = append(photos, clean...)
	return EvidenceSet{Photos: photos}, nil
}

// Seal идемпотентен: повторное запечатывание не сдвигает метку.
func (e EvidenceSet) Seal(now time.Time) EvidenceSet {
	if e.IsSealed() {
		return e
	}
	sealedAt := now
	return EvidenceSet{Photos: e.Photos, SealedAt: &sealedAt}
}

// NormalizePhotoRefs проверяет ссылки на снимки и их количество.
func NormalizePhotoRefs(refs []string, min, max int) ([]string, error) {
	clean := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, apperror.New(apperror.ErrCodeValidation, "пустая ссылка на фото")
		}
		clean = append(clean, ref)
	}
	if len(clean) < min {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "нужно минимум %d фото", min)
	}
	if max > 0 && len(clean) > max {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "не более %d фото", max)
	}
	return clean, nil
}
