package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/barter-backend/internal/interface/http/dto"
	"github.com/ignatzorin/barter-backend/internal/interface/http/response"
	"github.com/ignatzorin/barter-backend/internal/usecase/interest"
)

type InterestHandler struct {
	expressUC  *interest.ExpressInterestUseCase
	withdrawUC *interest.WithdrawInterestUseCase
}

func NewInterestHandler(expressUC *interest.ExpressInterestUseCase, withdrawUC *interest.WithdrawInterestUseCase) *InterestHandler {
	return &InterestHandler{expressUC: expressUC, withdrawUC: withdrawUC}
}

// ExpressInterest: PUT /products/:id/interest
func (h *InterestHandler) ExpressInterest(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	productID, ok := parseUUIDParam(c, "id", "некорректный ID товара")
	if !ok {
		return
	}
	in, err := h.expressUC.Execute(c.Request.Context(), userID, productID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToInterestResponse(in))
}

// WithdrawInterest: DELETE /products/:id/interest
func (h *InterestHandler) WithdrawInterest(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	productID, ok := parseUUIDParam(c, "id", "некорректный ID товара")
	if !ok {
		return
	}
	if err := h.withdrawUC.Execute(c.Request.Context(), userID, productID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
