package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/interface/http/dto"
	"github.com/ignatzorin/barter-backend/internal/interface/http/response"
	"github.com/ignatzorin/barter-backend/internal/usecase/swap"
)

type DisputeHandler struct {
	submitUC  *swap.SubmitDisputeUseCase
	resolveUC *swap.ResolveDisputeUseCase
	listUC    *swap.ListDisputesUseCase
}

func NewDisputeHandler(d swap.Deps) *DisputeHandler {
	return &DisputeHandler{
		submitUC:  swap.NewSubmitDisputeUseCase(d),
		resolveUC: swap.NewResolveDisputeUseCase(d),
		listUC:    swap.NewListDisputesUseCase(d),
	}
}

// SubmitDispute: POST /swap-requests/:id/disputes
func (h *DisputeHandler) SubmitDispute(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	swapID, ok := parseUUIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}

	var req dto.SubmitDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите тип, описание и хотя бы одну фотографию")
		return
	}
	disputeType, err := valueobject.NewDisputeType(req.Type)
	if err != nil {
		response.Error(c, err)
		return
	}

	res, err := h.submitUC.Execute(c.Request.Context(), swap.SubmitDisputeInput{
		SwapID:      swapID,
		ReporterID:  userID,
		Type:        disputeType,
		Description: req.Description,
		Photos:      req.Photos,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.DisputeResultResponse{
		Swap:    dto.ToSwapRequestResponse(res.Swap, userID),
		Dispute: dto.ToDisputeResponse(res.Dispute),
	})
}

// ListDisputes: GET /swap-requests/:id/disputes
func (h *DisputeHandler) ListDisputes(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	swapID, ok := parseUUIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}

	items, err := h.listUC.Execute(c.Request.Context(), swapID, userID, isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToDisputeResponses(items))
}

// ResolveDispute: POST /admin/disputes/:id/resolve
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	adminID, ok := requireUser(c)
	if !ok {
		return
	}
	disputeID, ok := parseUUIDParam(c, "id", "некорректный ID спора")
	if !ok {
		return
	}

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "исход спора обязателен")
		return
	}
	outcome, err := valueobject.NewResolutionOutcome(req.Outcome)
	if err != nil {
		response.Error(c, err)
		return
	}

	res, err := h.resolveUC.Execute(c.Request.Context(), swap.ResolveDisputeInput{
		DisputeID: disputeID,
		AdminID:   adminID,
		Outcome:   outcome,
		Note:      req.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.DisputeResultResponse{
		Swap:    dto.ToSwapRequestResponse(res.Swap, adminID),
		Dispute: dto.ToDisputeResponse(res.Dispute),
	})
}
