package valueobject

import "github.com/ignatzorin/barter-backend/internal/pkg/apperror"

type SwapStatus string

const (
	SwapStatusPending          SwapStatus = "pending"
	SwapStatusNegotiating      SwapStatus = "negotiating"
	SwapStatusAccepted         SwapStatus = "accepted"
	SwapStatusDeliveryProposed SwapStatus = "delivery_proposed"
	SwapStatusQRGenerated      SwapStatus = "qr_generated"
	SwapStatusArrived          SwapStatus = "arrived"
	SwapStatusQRScanned        SwapStatus = "qr_scanned"
	SwapStatusInspection       SwapStatus = "inspection"
	SwapStatusCodeSent         SwapStatus = "code_sent"
	SwapStatusDroppedOff       SwapStatus = "dropped_off"
	SwapStatusCompleted        SwapStatus = "completed"
	SwapStatusDisputed         SwapStatus = "disputed"
	SwapStatusRejected         SwapStatus = "rejected"
	SwapStatusCancelled        SwapStatus = "cancelled"
	SwapStatusRefunded         SwapStatus = "refunded"
)

func (s SwapStatus) IsValid() bool {
	switch s {
	case SwapStatusPending, SwapStatusNegotiating, SwapStatusAccepted, SwapStatusDeliveryProposed,
		SwapStatusQRGenerated, SwapStatusArrived, SwapStatusQRScanned, SwapStatusInspection,
		SwapStatusCodeSent, SwapStatusDroppedOff, SwapStatusCompleted, SwapStatusDisputed,
		SwapStatusRejected, SwapStatusCancelled, SwapStatusRefunded:
		return true
	}
	return false
}

// IsTerminal сообщает, что заявка больше не меняет статус сама по себе.
// completed не терминален полностью: из него открывается спор.
func (s SwapStatus) IsTerminal() bool {
	switch s {
	case SwapStatusRejected, SwapStatusCancelled, SwapStatusRefunded:
		return true
	}
	return false
}

// IsActive - заявка ещё в работе (не завершена и не закрыта).
func (s SwapStatus) IsActive() bool {
	return !s.IsTerminal() && s != SwapStatusCompleted && s != SwapStatusDisputed
}

func NewSwapStatus(status string) (SwapStatus, error) {
	s := SwapStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус заявки")
	}
	return s, nil
}

type DeliveryType string

const (
	DeliveryTypeUnset      DeliveryType = ""
	DeliveryTypeFaceToFace DeliveryType = "face_to_face"
	DeliveryTypeDropOff    DeliveryType = "drop_off"
)

func (d DeliveryType) IsValid() bool {
	switch d {
	case DeliveryTypeUnset, DeliveryTypeFaceToFace, DeliveryTypeDropOff:
		return true
	}
	return false
}

func NewDeliveryType(v string) (DeliveryType, error) {
	d := DeliveryType(v)
	if d == DeliveryTypeUnset || !d.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "способ передачи должен быть face_to_face или drop_off")
	}
	return d, nil
}

type NegotiationStatus string

const (
	NegotiationStatusNone     NegotiationStatus = "none"
	NegotiationStatusProposed NegotiationStatus = "proposed"
	NegotiationStatusAgreed   NegotiationStatus = "agreed"
)

// Общий префикс обоих графов: до выдачи QR способ передачи ещё может меняться.
var commonTransitions = map[SwapStatus][]SwapStatus{
	SwapStatusPending:          {SwapStatusNegotiating, SwapStatusAccepted, SwapStatusRejected, SwapStatusCancelled},
	SwapStatusNegotiating:      {SwapStatusAccepted, SwapStatusRejected, SwapStatusCancelled},
	SwapStatusAccepted:         {SwapStatusDeliveryProposed, SwapStatusCancelled},
	SwapStatusDeliveryProposed: {SwapStatusQRGenerated, SwapStatusCancelled},
	SwapStatusCompleted:        {SwapStatusDisputed},
	SwapStatusDisputed:         {SwapStatusRefunded, SwapStatusCompleted, SwapStatusCancelled},
}

var faceToFaceTransitions = map[SwapStatus][]SwapStatus{
	SwapStatusQRGenerated: {SwapStatusArrived, SwapStatusCancelled},
	SwapStatusArrived:     {SwapStatusQRScanned},
	SwapStatusQRScanned:   {SwapStatusInspection},
	SwapStatusInspection:  {SwapStatusCodeSent, SwapStatusDisputed},
	SwapStatusCodeSent:    {SwapStatusCompleted},
}

var dropOffTransitions = map[SwapStatus][]SwapStatus{
	SwapStatusQRGenerated: {SwapStatusDroppedOff, SwapStatusCancelled},
	SwapStatusDroppedOff:  {SwapStatusInspection, SwapStatusCompleted},
	SwapStatusInspection:  {SwapStatusCompleted, SwapStatusDisputed},
}

// CanTransition проверяет ребро графа для выбранного способа передачи.
func CanTransition(delivery DeliveryType, from, to SwapStatus) bool {
	if contains(commonTransitions[from], to) {
		return true
	}
	switch delivery {
	case DeliveryTypeFaceToFace:
		return contains(faceToFaceTransitions[from], to)
	case DeliveryTypeDropOff:
		return contains(dropOffTransitions[from], to)
	}
	return false
}

func contains(list []SwapStatus, s SwapStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type MultiSwapStatus string

const (
	MultiSwapStatusPending   MultiSwapStatus = "pending"
	MultiSwapStatusConfirmed MultiSwapStatus = "confirmed"
	MultiSwapStatusCancelled MultiSwapStatus = "cancelled"
	MultiSwapStatusExpired   MultiSwapStatus = "expired"
)

func (s MultiSwapStatus) IsValid() bool {
	switch s {
	case MultiSwapStatusPending, MultiSwapStatusConfirmed, MultiSwapStatusCancelled, MultiSwapStatusExpired:
		return true
	}
	return false
}

func NewMultiSwapStatus(v string) (MultiSwapStatus, error) {
	s := MultiSwapStatus(v)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус цепочки")
	}
	return s, nil
}
