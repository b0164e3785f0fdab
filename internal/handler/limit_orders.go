package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"orderengine/internal/models"
	"orderengine/internal/repository"
)

type LimitOrderHandler struct {
	Store repository.Store
}

func (h *LimitOrderHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/orders/limit")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/cancel", h.cancel)
}

type createLimitOrderRequest struct {
	UserAddress  string          `json:"user_address"`
	TokenIn      string          `json:"token_in"`
	TokenOut     string          `json:"token_out"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	AmountOutMin decimal.Decimal `json:"amount_out_min"`
	PriceLimit   decimal.Decimal `json:"price_limit"`
	ChainID      int64           `json:"chain_id"`
	ExpiresAt    *time.Time      `json:"expires_at"`
}

func (h *LimitOrderHandler) create(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	var req createLimitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	order := &models.LimitOrder{
		UserAddress:  req.UserAddress,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     req.AmountIn,
		AmountOutMin: req.AmountOutMin,
		PriceLimit:   req.PriceLimit,
		ChainID:      req.ChainID,
		ExpiresAt:    req.ExpiresAt,
	}
	if err := h.Store.CreateLimitOrder(c.Request.Context(), order); err != nil {
		writeCreateError(c, err)
		return
	}
	Ok(c, order, nil)
}

func (h *LimitOrderHandler) list(c *gin.Context) {
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
	items, err := h.Store.ListLimitOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, listMeta(limit, offset, len(items)))
}

func (h *LimitOrderHandler) get(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Store.GetLimitOrderByID(c.Request.Context(), id)
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

func (h *LimitOrderHandler) cancel(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Store.GetLimitOrderByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	ok, err := h.Store.CancelLimitOrder(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !ok {
		// The conditional update lost: a worker claimed the order or it
		// already reached a terminal status.
		Error(c, http.StatusConflict, "too late to cancel: order is executing or already settled", nil)
		return
	}
	item, _ = h.Store.GetLimitOrderByID(c.Request.Context(), id)
	Ok(c, item, nil)
}

func writeCreateError(c *gin.Context, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		Error(c, http.StatusBadRequest, verr.Error(), map[string]any{"field": verr.Field})
		return
	}
	Error(c, http.StatusBadGateway, err.Error(), nil)
}
