package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/interface/http/dto"
	"github.com/ignatzorin/barter-backend/internal/interface/http/response"
	"github.com/ignatzorin/barter-backend/internal/usecase/chain"
	"github.com/ignatzorin/barter-backend/internal/usecase/multiswap"
)

// ChainHandler - поиск цепочек и многосторонние обмены.
type ChainHandler struct {
	opportunitiesUC *chain.QueryOpportunitiesUseCase
	createUC        *multiswap.CreateMultiSwapUseCase
	confirmUC       *multiswap.ConfirmMultiSwapUseCase
	rejectUC        *multiswap.RejectMultiSwapUseCase
	getUC           *multiswap.GetMultiSwapUseCase
	listMyUC        *multiswap.ListMyMultiSwapsUseCase
	clock           func() time.Time
}

func NewChainHandler(engine *chain.Engine, d multiswap.Deps) *ChainHandler {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ChainHandler{
		opportunitiesUC: chain.NewQueryOpportunitiesUseCase(engine),
		createUC:        multiswap.NewCreateMultiSwapUseCase(d),
		confirmUC:       multiswap.NewConfirmMultiSwapUseCase(d),
		rejectUC:        multiswap.NewRejectMultiSwapUseCase(d),
		getUC:           multiswap.NewGetMultiSwapUseCase(d.MultiSwaps),
		listMyUC:        multiswap.NewListMyMultiSwapsUseCase(d.MultiSwaps),
		clock:           clock,
	}
}

// Opportunities: GET /chains/opportunities?min_score=&balanced_only=&mine=&limit=&offset=
func (h *ChainHandler) Opportunities(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	q := chain.OpportunitiesQuery{
		BalancedOnly: c.Query("balanced_only") == "true",
		Limit:        parseIntQuery(c, "limit", 0),
		Offset:       parseIntQuery(c, "offset", 0),
	}
	if minScore := parseFloatQuery(c, "min_score"); minScore != nil {
		q.MinScore = *minScore
	}
	if c.DefaultQuery("mine", "true") != "false" {
		q.UserID = &userID
	}

	res, err := h.opportunitiesUC.Execute(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, dto.ToChainResponses(res.Chains), res.Total, res.Limit, res.Offset)
}

// CreateMultiSwap: POST /multi-swaps
func (h *ChainHandler) CreateMultiSwap(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.CreateMultiSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "цепочка должна содержать минимум два звена")
		return
	}
	steps := make([]chain.Step, 0, len(req.Steps))
	for _, s := range req.Steps {
		user, err := uuid.Parse(s.UserID)
		if err != nil {
			response.BadRequest(c, "некорректный ID участника")
			return
		}
		product, err := uuid.Parse(s.GivesProductID)
		if err != nil {
			response.BadRequest(c, "некорректный ID товара")
			return
		}
		steps = append(steps, chain.Step{UserID: user, GivesProductID: product})
	}

	m, err := h.createUC.Execute(c.Request.Context(), multiswap.CreateMultiSwapInput{
		InitiatorID: userID,
		Steps:       steps,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToMultiSwapResponse(m, h.clock()))
}

func (h *ChainHandler) GetMultiSwap(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id", "некорректный ID цепочки")
	if !ok {
		return
	}
	m, err := h.getUC.Execute(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToMultiSwapResponse(m, h.clock()))
}

func (h *ChainHandler) ListMyMultiSwaps(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	limit := clampLimit(parseIntQuery(c, "limit", defaultListLimit), defaultListLimit, maxListLimit)
	offset := parseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	items, total, err := h.listMyUC.Execute(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, dto.ToMultiSwapResponses(items, h.clock()), total, limit, offset)
}

func (h *ChainHandler) ConfirmMultiSwap(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id", "некорректный ID цепочки")
	if !ok {
		return
	}
	m, err := h.confirmUC.Execute(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToMultiSwapResponse(m, h.clock()))
}

func (h *ChainHandler) RejectMultiSwap(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id", "некорректный ID цепочки")
	if !ok {
		return
	}
	var req dto.RejectMultiSwapRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	m, err := h.rejectUC.Execute(c.Request.Context(), id, userID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToMultiSwapResponse(m, h.clock()))
}
