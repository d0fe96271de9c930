package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/interface/http/dto"
	"github.com/ignatzorin/barter-backend/internal/interface/http/response"
	"github.com/ignatzorin/barter-backend/internal/usecase/swap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SwapHandler - заявки на обмен: переговоры, передача и проверка товара.
type SwapHandler struct {
	createUC          *swap.CreateSwapRequestUseCase
	getUC             *swap.GetSwapRequestUseCase
	listMyUC          *swap.ListMySwapRequestsUseCase
	historyUC         *swap.HistoryUseCase
	updateStatusUC    *swap.UpdateRequestStatusUseCase
	proposeOfferUC    *swap.ProposeOfferUseCase
	cancelUC          *swap.CancelSwapRequestUseCase
	proposeDeliveryUC *swap.ProposeDeliveryUseCase
	acceptDeliveryUC  *swap.AcceptDeliveryUseCase
	addEvidenceUC     *swap.AddEvidenceUseCase
	setArrivedUC      *swap.SetArrivedUseCase
	scanQRUC          *swap.ScanQRUseCase
	startInspectionUC *swap.StartInspectionUseCase
	approveProductUC  *swap.ApproveProductUseCase
	verifyCodeUC      *swap.VerifyCodeUseCase
	dropOffUC         *swap.DropOffUseCase
	pickUpUC          *swap.PickUpUseCase
}

func NewSwapHandler(d swap.Deps) *SwapHandler {
	return &SwapHandler{
		createUC:          swap.NewCreateSwapRequestUseCase(d),
		getUC:             swap.NewGetSwapRequestUseCase(d.Swaps),
		listMyUC:          swap.NewListMySwapRequestsUseCase(d.Swaps),
		historyUC:         swap.NewHistoryUseCase(d.Swaps),
		updateStatusUC:    swap.NewUpdateRequestStatusUseCase(d),
		proposeOfferUC:    swap.NewProposeOfferUseCase(d),
		cancelUC:          swap.NewCancelSwapRequestUseCase(d),
		proposeDeliveryUC: swap.NewProposeDeliveryUseCase(d),
		acceptDeliveryUC:  swap.NewAcceptDeliveryUseCase(d),
		addEvidenceUC:     swap.NewAddEvidenceUseCase(d),
		setArrivedUC:      swap.NewSetArrivedUseCase(d),
		scanQRUC:          swap.NewScanQRUseCase(d),
		startInspectionUC: swap.NewStartInspectionUseCase(d),
		approveProductUC:  swap.NewApproveProductUseCase(d),
		verifyCodeUC:      swap.NewVerifyCodeUseCase(d),
		dropOffUC:         swap.NewDropOffUseCase(d),
		pickUpUC:          swap.NewPickUpUseCase(d),
	}
}

// actionFunc - переход без тела запроса.
type actionFunc func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error)

// swapAction разбирает id и пользователя и отдаёт обновлённую заявку.
func (h *SwapHandler) swapAction(fn actionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		swapID, ok := parseUUIDParam(c, "id", "некорректный ID заявки")
		if !ok {
			return
		}
		s, err := fn(c, swapID, userID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, dto.ToSwapRequestResponse(s, userID))
	}
}

func (h *SwapHandler) CreateSwapRequest(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.CreateSwapRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		response.BadRequest(c, "некорректный ID товара")
		return
	}
	offered, err := dto.ParseOptionalUUID(req.OfferedProductID)
	if err != nil {
		response.BadRequest(c, "некорректный ID предлагаемого товара")
		return
	}

	s, err := h.createUC.Execute(c.Request.Context(), swap.CreateSwapRequestInput{
		RequesterID:      userID,
		ProductID:        productID,
		OfferedProductID: offered,
		CurrencyAmount:   req.CurrencyAmount,
		Message:          req.Message,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToSwapRequestResponse(s, userID))
}

func (h *SwapHandler) GetSwapRequest(c *gin.Context) {
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.getUC.Execute(c.Request.Context(), swapID, userID)
	})(c)
}

// ListMySwapRequests: ?role=requester|owner&status=a,b&limit=&offset=
func (h *SwapHandler) ListMySwapRequests(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var statuses []valueobject.SwapStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := valueobject.NewSwapStatus(strings.TrimSpace(part))
			if err != nil {
				response.Error(c, err)
				return
			}
			statuses = append(statuses, st)
		}
	}
	limit := clampLimit(parseIntQuery(c, "limit", defaultListLimit), defaultListLimit, maxListLimit)
	offset := parseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	res, err := h.listMyUC.Execute(c.Request.Context(), swap.ListSwapRequestsInput{
		UserID:   userID,
		Role:     entity.PartyRole(c.Query("role")),
		Statuses: statuses,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, dto.ToSwapRequestResponses(res.Items, userID), res.Total, limit, offset)
}

func (h *SwapHandler) History(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	swapID, ok := parseUUIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	items, err := h.historyUC.Execute(c.Request.Context(), swapID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToStatusTransitionResponses(items))
}

func (h *SwapHandler) UpdateRequestStatus(c *gin.Context) {
	var req dto.UpdateRequestStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.updateStatusUC.Execute(c.Request.Context(), swapID, userID, valueobject.SwapStatus(req.Status))
	})(c)
}

func (h *SwapHandler) ProposeOffer(c *gin.Context) {
	var req dto.ProposeOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}
	offered, err := dto.ParseOptionalUUID(req.OfferedProductID)
	if err != nil {
		response.BadRequest(c, "некорректный ID предлагаемого товара")
		return
	}
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.proposeOfferUC.Execute(c.Request.Context(), swap.ProposeOfferInput{
			SwapID:           swapID,
			ActorID:          userID,
			OfferedProductID: offered,
			CurrencyAmount:   req.CurrencyAmount,
		})
	})(c)
}

func (h *SwapHandler) Cancel(c *gin.Context) {
	var req dto.CancelSwapRequestRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.cancelUC.Execute(c.Request.Context(), swapID, userID, req.Reason)
	})(c)
}

func (h *SwapHandler) ProposeDelivery(c *gin.Context) {
	var req dto.ProposeDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}
	deliveryType, err := valueobject.NewDeliveryType(req.DeliveryType)
	if err != nil {
		response.Error(c, err)
		return
	}
	pointID, err := dto.ParseOptionalUUID(req.DeliveryPointID)
	if err != nil {
		response.BadRequest(c, "некорректный ID пункта выдачи")
		return
	}
	at, err := dto.ParseOptionalTime(req.DeliveryAt)
	if err != nil {
		response.BadRequest(c, "время передачи должно быть в формате RFC3339")
		return
	}
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.proposeDeliveryUC.Execute(c.Request.Context(), swap.ProposeDeliveryInput{
			SwapID:          swapID,
			ActorID:         userID,
			Type:            deliveryType,
			DeliveryPointID: pointID,
			CustomLocation:  req.CustomLocation,
			At:              at,
		})
	})(c)
}

func (h *SwapHandler) AcceptDelivery(c *gin.Context) {
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.acceptDeliveryUC.Execute(c.Request.Context(), swapID, userID)
	})(c)
}

// AddEvidence: POST /swap-requests/:id/evidence/:step
func (h *SwapHandler) AddEvidence(c *gin.Context) {
	step, err := valueobject.NewEvidenceStep(c.Param("step"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.EvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "нужна хотя бы одна фотография")
		return
	}
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.addEvidenceUC.Execute(c.Request.Context(), swapID, userID, step, req.Photos)
	})(c)
}

func (h *SwapHandler) SetArrived(c *gin.Context) {
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.setArrivedUC.Execute(c.Request.Context(), swapID, userID)
	})(c)
}

func (h *SwapHandler) ScanQR(c *gin.Context) {
	var req dto.CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "QR-код обязателен")
		return
	}
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.scanQRUC.Execute(c.Request.Context(), swapID, userID, req.Code)
	})(c)
}

func (h *SwapHandler) StartInspection(c *gin.Context) {
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.startInspectionUC.Execute(c.Request.Context(), swapID, userID)
	})(c)
}

func (h *SwapHandler) ApproveProduct(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	swapID, ok := parseUUIDParam(c, "id", "некорректный ID заявки")
	if !ok {
		return
	}
	res, err := h.approveProductUC.Execute(c.Request.Context(), swapID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.CodeIssuedResponse{
		Swap:             dto.ToSwapRequestResponse(res.Swap, userID),
		VerificationCode: res.Code,
	})
}

func (h *SwapHandler) VerifyCode(c *gin.Context) {
	var req dto.CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "код подтверждения обязателен")
		return
	}
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.verifyCodeUC.Execute(c.Request.Context(), swapID, userID, req.Code)
	})(c)
}

func (h *SwapHandler) DropOff(c *gin.Context) {
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.dropOffUC.Execute(c.Request.Context(), swapID, userID)
	})(c)
}

func (h *SwapHandler) PickUp(c *gin.Context) {
	var req dto.CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "код выдачи обязателен")
		return
	}
	h.swapAction(func(c *gin.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
		return h.pickUpUC.Execute(c.Request.Context(), swapID, userID, req.Code)
	})(c)
}
