package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
)

type CreateSwapRequestRequest struct {
	ProductID        string  `json:"product_id" binding:"required"`
	OfferedProductID *string `json:"offered_product_id"`
	CurrencyAmount   *int64  `json:"currency_amount"`
	Message          string  `json:"message"`
}

type UpdateRequestStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type ProposeOfferRequest struct {
	OfferedProductID *string `json:"offered_product_id"`
	CurrencyAmount   *int64  `json:"currency_amount"`
}

type CancelSwapRequestRequest struct {
	Reason string `json:"reason"`
}

type ProposeDeliveryRequest struct {
	DeliveryType    string  `json:"delivery_type" binding:"required"`
	DeliveryPointID *string `json:"delivery_point_id"`
	CustomLocation  *string `json:"custom_location"`
	DeliveryAt      *string `json:"delivery_at"`
}

type CodeRequest struct {
	Code string `json:"code" binding:"required"`
}

type EvidenceRequest struct {
	Photos []string `json:"photos" binding:"required,min=1"`
}

type SwapRequestResponse struct {
	ID                    uuid.UUID  `json:"id"`
	RequesterID           uuid.UUID  `json:"requester_id"`
	OwnerID               uuid.UUID  `json:"owner_id"`
	ProductID             uuid.UUID  `json:"product_id"`
	OfferedProductID      *uuid.UUID `json:"offered_product_id"`
	PendingCurrencyAmount *int64     `json:"pending_currency_amount"`
	AgreedPriceRequester  *int64     `json:"agreed_price_requester"`
	AgreedPriceOwner      *int64     `json:"agreed_price_owner"`
	NegotiationStatus     string     `json:"negotiation_status"`
	Status                string     `json:"status"`
	Message               string     `json:"message,omitempty"`

	DeliveryType    string     `json:"delivery_type,omitempty"`
	DeliveryPointID *uuid.UUID `json:"delivery_point_id"`
	CustomLocation  *string    `json:"custom_location"`
	DeliveryAt      *time.Time `json:"delivery_at"`
	LastProposedBy  *uuid.UUID `json:"last_proposed_by"`

	// QR видит только владелец: он показывает код заявителю на месте.
	QRCode           string     `json:"qr_code,omitempty"`
	QRUsedAt         *time.Time `json:"qr_used_at"`
	OwnerArrived     bool       `json:"owner_arrived"`
	RequesterArrived bool       `json:"requester_arrived"`
	CodeIssuedAt     *time.Time `json:"code_issued_at"`

	DropOffDeadline *time.Time `json:"drop_off_deadline"`
	DroppedOffAt    *time.Time `json:"dropped_off_at"`
	PickedUpAt      *time.Time `json:"picked_up_at"`

	PackagingEvidence EvidenceResponse `json:"packaging_evidence"`
	DeliveryEvidence  EvidenceResponse `json:"delivery_evidence"`
	ReceivingEvidence EvidenceResponse `json:"receiving_evidence"`

	DisputeWindowEndsAt *time.Time `json:"dispute_window_ends_at"`
	CompletedAt         *time.Time `json:"completed_at"`
	CancelledBy         *uuid.UUID `json:"cancelled_by"`
	CancelReason        string     `json:"cancel_reason,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type EvidenceResponse struct {
	Photos   []string   `json:"photos"`
	SealedAt *time.Time `json:"sealed_at"`
}

// CodeIssuedResponse возвращается заявителю один раз: код нигде не хранится в открытом виде.
type CodeIssuedResponse struct {
	Swap             SwapRequestResponse `json:"swap_request"`
	VerificationCode string              `json:"verification_code"`
}

type StatusTransitionResponse struct {
	From    string     `json:"from"`
	To      string     `json:"to"`
	ActorID *uuid.UUID `json:"actor_id"`
	At      time.Time  `json:"at"`
}

// ToSwapRequestResponse собирает карточку для конкретного зрителя.
func ToSwapRequestResponse(s *entity.SwapRequest, viewerID uuid.UUID) SwapRequestResponse {
	resp := SwapRequestResponse{
		ID:                    s.ID,
		RequesterID:           s.RequesterID,
		OwnerID:               s.OwnerID,
		ProductID:             s.ProductID,
		OfferedProductID:      s.OfferedProductID,
		PendingCurrencyAmount: valorPtr(s.PendingCurrencyAmount),
		AgreedPriceRequester:  valorPtr(s.AgreedPriceRequester),
		AgreedPriceOwner:      valorPtr(s.AgreedPriceOwner),
		NegotiationStatus:     string(s.NegotiationStatus),
		Status:                string(s.Status),
		Message:               s.Message,
		DeliveryType:          string(s.DeliveryType),
		DeliveryPointID:       s.DeliveryPointID,
		CustomLocation:        s.CustomLocation,
		DeliveryAt:            s.DeliveryAt,
		LastProposedBy:        s.LastProposedBy,
		QRUsedAt:              s.QRUsedAt,
		OwnerArrived:          s.OwnerArrived,
		RequesterArrived:      s.RequesterArrived,
		CodeIssuedAt:          s.CodeIssuedAt,
		DropOffDeadline:       s.DropOffDeadline,
		DroppedOffAt:          s.DroppedOffAt,
		PickedUpAt:            s.PickedUpAt,
		PackagingEvidence:     toEvidence(s.PackagingEvidence),
		DeliveryEvidence:      toEvidence(s.DeliveryEvidence),
		ReceivingEvidence:     toEvidence(s.ReceivingEvidence),
		DisputeWindowEndsAt:   s.DisputeWindowEndsAt,
		CompletedAt:           s.CompletedAt,
		CancelledBy:           s.CancelledBy,
		CancelReason:          s.CancelReason,
		Version:               s.Version,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
	if viewerID == s.OwnerID {
		resp.QRCode = s.QRCode
	}
	return resp
}

func ToSwapRequestResponses(items []*entity.SwapRequest, viewerID uuid.UUID) []SwapRequestResponse {
	out := make([]SwapRequestResponse, 0, len(items))
	for _, s := range items {
		out = append(out, ToSwapRequestResponse(s, viewerID))
	}
	return out
}

func ToStatusTransitionResponses(items []entity.StatusTransition) []StatusTransitionResponse {
	out := make([]StatusTransitionResponse, 0, len(items))
	for _, t := range items {
		out = append(out, StatusTransitionResponse{
			From:    string(t.From),
			To:      string(t.To),
			ActorID: t.ActorID,
			At:      t.At,
		})
	}
	return out
}

func toEvidence(e valueobject.EvidenceSet) EvidenceResponse {
	photos := e.Photos
	if photos == nil {
		photos = []string{}
	}
	return EvidenceResponse{Photos: photos, SealedAt: e.SealedAt}
}

func valorPtr(v *valueobject.Valor) *int64 {
	if v == nil {
		return nil
	}
	n := v.Int64()
	return &n
}
