package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
)

type ChainParticipantResponse struct {
	UserID              uuid.UUID `json:"user_id"`
	GivesProductID      uuid.UUID `json:"gives_product_id"`
	WantsProductID      uuid.UUID `json:"wants_product_id"`
	WantsProductOwnerID uuid.UUID `json:"wants_product_owner_id"`
	Value               int64     `json:"value"`
	Latitude            *float64  `json:"latitude,omitempty"`
	Longitude           *float64  `json:"longitude,omitempty"`
}

type ChainResponse struct {
	Key               string                     `json:"key"`
	ChainLength       int                        `json:"chain_length"`
	Participants      []ChainParticipantResponse `json:"participants"`
	ValueBalanceScore float64                    `json:"value_balance_score"`
	LocationScore     float64                    `json:"location_score"`
	TotalScore        float64                    `json:"total_score"`
	IsValueBalanced   bool                       `json:"is_value_balanced"`
}

type ChainStepRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	GivesProductID string `json:"gives_product_id" binding:"required"`
}

type CreateMultiSwapRequest struct {
	Steps []ChainStepRequest `json:"steps" binding:"required,min=2,dive"`
}

type RejectMultiSwapRequest struct {
	Reason string `json:"reason"`
}

type MultiSwapParticipantResponse struct {
	Position            int        `json:"position"`
	UserID              uuid.UUID  `json:"user_id"`
	GivesProductID      uuid.UUID  `json:"gives_product_id"`
	WantsProductID      uuid.UUID  `json:"wants_product_id"`
	WantsProductOwnerID uuid.UUID  `json:"wants_product_owner_id"`
	Value               int64      `json:"value"`
	Confirmed           bool       `json:"confirmed"`
	ConfirmedAt         *time.Time `json:"confirmed_at"`
}

type MultiSwapResponse struct {
	ID             uuid.UUID                      `json:"id"`
	InitiatorID    uuid.UUID                      `json:"initiator_id"`
	ChainKey       string                         `json:"chain_key"`
	Status         string                         `json:"status"`
	Participants   []MultiSwapParticipantResponse `json:"participants"`
	ConfirmedCount int                            `json:"confirmed_count"`
	TotalScore     float64                        `json:"total_score"`
	CancelledBy    *uuid.UUID                     `json:"cancelled_by"`
	CancelReason   string                         `json:"cancel_reason,omitempty"`
	ExpiresAt      time.Time                      `json:"expires_at"`
	ConfirmedAt    *time.Time                     `json:"confirmed_at"`
	CreatedAt      time.Time                      `json:"created_at"`
}

func ToChainResponse(c entity.Chain) ChainResponse {
	participants := make([]ChainParticipantResponse, 0, len(c.Participants))
	for _, p := range c.Participants {
		item := ChainParticipantResponse{
			UserID:              p.UserID,
			GivesProductID:      p.GivesProductID,
			WantsProductID:      p.WantsProductID,
			WantsProductOwnerID: p.WantsProductOwnerID,
			Value:               p.Value.Int64(),
		}
		if p.Location != nil {
			lat, lng := p.Location.Latitude, p.Location.Longitude
			item.Latitude, item.Longitude = &lat, &lng
		}
		participants = append(participants, item)
	}
	return ChainResponse{
		Key:               c.Key(),
		ChainLength:       c.ChainLength,
		Participants:      participants,
		ValueBalanceScore: c.ValueBalanceScore,
		LocationScore:     c.LocationScore,
		TotalScore:        c.TotalScore,
		IsValueBalanced:   c.IsValueBalanced,
	}
}

func ToChainResponses(items []entity.Chain) []ChainResponse {
	out := make([]ChainResponse, 0, len(items))
	for _, c := range items {
		out = append(out, ToChainResponse(c))
	}
	return out
}

// ToMultiSwapResponse показывает статус с учётом истёкшего срока, даже если фоновая задача ещё не отработала.
func ToMultiSwapResponse(m *entity.MultiSwap, now time.Time) MultiSwapResponse {
	participants := make([]MultiSwapParticipantResponse, 0, len(m.Participants))
	for _, p := range m.Participants {
		participants = append(participants, MultiSwapParticipantResponse{
			Position:            p.Position,
			UserID:              p.UserID,
			GivesProductID:      p.GivesProductID,
			WantsProductID:      p.WantsProductID,
			WantsProductOwnerID: p.WantsProductOwnerID,
			Value:               p.Value.Int64(),
			Confirmed:           p.Confirmed,
			ConfirmedAt:         p.ConfirmedAt,
		})
	}
	return MultiSwapResponse{
		ID:             m.ID,
		InitiatorID:    m.InitiatorID,
		ChainKey:       m.ChainKey,
		Status:         string(m.EffectiveStatus(now)),
		Participants:   participants,
		ConfirmedCount: m.ConfirmedCount(),
		TotalScore:     m.TotalScore,
		CancelledBy:    m.CancelledBy,
		CancelReason:   m.CancelReason,
		ExpiresAt:      m.ExpiresAt,
		ConfirmedAt:    m.ConfirmedAt,
		CreatedAt:      m.CreatedAt,
	}
}

func ToMultiSwapResponses(items []*entity.MultiSwap, now time.Time) []MultiSwapResponse {
	out := make([]MultiSwapResponse, 0, len(items))
	for _, m := range items {
		out = append(out, ToMultiSwapResponse(m, now))
	}
	return out
}

type InterestResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

func ToInterestResponse(in *entity.Interest) InterestResponse {
	return InterestResponse{UserID: in.UserID, ProductID: in.ProductID, CreatedAt: in.CreatedAt}
}
