package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"orderengine/internal/models"
	"orderengine/internal/repository"
)

type StopLossOrderHandler struct {
	Store repository.Store
}

func (h *StopLossOrderHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/orders/stop-loss")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/cancel", h.cancel)
}

type createStopLossOrderRequest struct {
	UserAddress string          `json:"user_address"`
	TokenIn     string          `json:"token_in"`
	TokenOut    string          `json:"token_out"`
	Amount      decimal.Decimal `json:"amount"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	ChainID     int64           `json:"chain_id"`
}

func (h *StopLossOrderHandler) create(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	var req createStopLossOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	order := &models.StopLossOrder{
		UserAddress: req.UserAddress,
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		Amount:      req.Amount,
		StopPrice:   req.StopPrice,
		ChainID:     req.ChainID,
	}
	if err := h.Store.CreateStopLossOrder(c.Request.Context(), order); err != nil {
		writeCreateError(c, err)
		return
	}
	Ok(c, order, nil)
}

func (h *StopLossOrderHandler) list(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListOrdersParams{
		Limit:       limit,
		Offset:      offset,
		UserAddress: strQueryPtr(c, "user_address"),
		Status:      strQueryPtr(c, "status"),
		ChainID:     int64QueryPtr(c, "chain_id"),
		OrderBy:     "created_at",
		Asc:         boolPtr(false),
	}
	items, err := h.Store.ListStopLossOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, listMeta(limit, offset, len(items)))
}

func (h *StopLossOrderHandler) get(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Store.GetStopLossOrderByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *StopLossOrderHandler) cancel(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Store.GetStopLossOrderByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	ok, err := h.Store.CancelStopLossOrder(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !ok {
		Error(c, http.StatusConflict, "too late to cancel: order already triggered", nil)
		return
	}
	item, _ = h.Store.GetStopLossOrderByID(c.Request.Context(), id)
	Ok(c, item, nil)
}
