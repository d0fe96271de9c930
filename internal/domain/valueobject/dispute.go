package valueobject

import "github.com/ignatzorin/barter-backend/internal/pkg/apperror"

type DisputeType string

const (
	DisputeTypeNotAsDescribed DisputeType = "not_as_described"
	DisputeTypeDefect         DisputeType = "defect"
	DisputeTypeDamaged        DisputeType = "damaged"
	DisputeTypeMissingParts   DisputeType = "missing_parts"
	DisputeTypeWrongItem      DisputeType = "wrong_item"
	DisputeTypeNoShow         DisputeType = "no_show"
	DisputeTypeOther          DisputeType = "other"
)

func (t DisputeType) IsValid() bool {
	switch t {
	case DisputeTypeNotAsDescribed, DisputeTypeDefect, DisputeTypeDamaged, DisputeTypeMissingParts,
		DisputeTypeWrongItem, DisputeTypeNoShow, DisputeTypeOther:
		return true
	}
	return false
}

func NewDisputeType(v string) (DisputeType, error) {
	t := DisputeType(v)
	if !t.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный тип спора")
	}
	return t, nil
}

type ResolutionOutcome string

const (
	ResolutionEqualSplit     ResolutionOutcome = "equal_split"
	ResolutionFavorRequester ResolutionOutcome = "favor_requester"
	ResolutionFullRefund     ResolutionOutcome = "full_refund"
	ResolutionNoFault        ResolutionOutcome = "no_fault_cancellation"
)

func (o ResolutionOutcome) IsValid() bool {
	switch o {
	case ResolutionEqualSplit, ResolutionFavorRequester, ResolutionFullRefund, ResolutionNoFault:
		return true
	}
	return false
}

func NewResolutionOutcome(v string) (ResolutionOutcome, error) {
	o := ResolutionOutcome(v)
	if !o.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный исход спора")
	}
	return o, nil
}

// TargetStatus - куда переходит заявка после решения по спору.
func (o ResolutionOutcome) TargetStatus() SwapStatus {
	switch o {
	case ResolutionFavorRequester, ResolutionFullRefund:
		return SwapStatusRefunded
	case ResolutionNoFault:
		return SwapStatusCancelled
	default:
		return SwapStatusCompleted
	}
}
