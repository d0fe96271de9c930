package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
)

type SubmitDisputeRequest struct {
	Type        string   `json:"type" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Photos      []string `json:"photos" binding:"required,min=1"`
}

type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Note    string `json:"note"`
}

type DisputeResponse struct {
	ID             uuid.UUID  `json:"id"`
	SwapRequestID  uuid.UUID  `json:"swap_request_id"`
	ReporterID     uuid.UUID  `json:"reporter_id"`
	Type           string     `json:"type"`
	Description    string     `json:"description"`
	Photos         []string   `json:"photos"`
	Status         string     `json:"status"`
	Outcome        *string    `json:"outcome"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	ResolvedBy     *uuid.UUID `json:"resolved_by"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

type DisputeResultResponse struct {
	Swap    SwapRequestResponse `json:"swap_request"`
	Dispute DisputeResponse     `json:"dispute"`
}

func ToDisputeResponse(d *entity.Dispute) DisputeResponse {
	resp := DisputeResponse{
		ID:             d.ID,
		SwapRequestID:  d.SwapRequestID,
		ReporterID:     d.ReporterID,
		Type:           string(d.Type),
		Description:    d.Description,
		Photos:         d.Photos,
		Status:         string(d.Status),
		ResolutionNote: d.ResolutionNote,
		ResolvedBy:     d.ResolvedBy,
		ResolvedAt:     d.ResolvedAt,
		CreatedAt:      d.CreatedAt,
	}
	if d.Outcome != nil {
		o := string(*d.Outcome)
		resp.Outcome = &o
	}
	return resp
}

func ToDisputeResponses(items []*entity.Dispute) []DisputeResponse {
	out := make([]DisputeResponse, 0, len(items))
	for _, d := range items {
		out = append(out, ToDisputeResponse(d))
	}
	return out
}
