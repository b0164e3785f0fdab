package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"orderengine/internal/models"
	"orderengine/internal/repository"
)

type DCAScheduleHandler struct {
	Store repository.Store
}

func (h *DCAScheduleHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/dca")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/pause", h.pause)
	g.POST("/:id/resume", h.resume)
	g.POST("/:id/cancel", h.cancel)
}

type createDCAScheduleRequest struct {
	UserAddress    string          `json:"user_address"`
	TokenIn        string          `json:"token_in"`
	TokenOut       string          `json:"token_out"`
	AmountPerOrder decimal.Decimal `json:"amount_per_order"`
	Frequency      string          `json:"frequency"`
	ChainID        int64           `json:"chain_id"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        *time.Time      `json:"end_date"`
}

func (h *DCAScheduleHandler) create(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	var req createDCAScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	schedule := &models.DCASchedule{
		UserAddress:    req.UserAddress,
		TokenIn:        req.TokenIn,
		TokenOut:       req.TokenOut,
		AmountPerOrder: req.AmountPerOrder,
		Frequency:      req.Frequency,
		ChainID:        req.ChainID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}
	if err := h.Store.CreateDCASchedule(c.Request.Context(), schedule); err != nil {
		writeCreateError(c, err)
		return
	}
	Ok(c, schedule, nil)
}

func (h *DCAScheduleHandler) list(c *gin.Context) {
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
	items, err := h.Store.ListDCASchedules(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, listMeta(limit, offset, len(items)))
}

func (h *DCAScheduleHandler) get(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Store.GetDCAScheduleByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "schedule not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *DCAScheduleHandler) pause(c *gin.Context) {
	h.transition(c, "pause", "schedule is not active")
}

func (h *DCAScheduleHandler) resume(c *gin.Context) {
	h.transition(c, "resume", "schedule is not paused")
}

func (h *DCAScheduleHandler) cancel(c *gin.Context) {
	h.transition(c, "cancel", "too late to cancel: schedule is executing or already finished")
}

func (h *DCAScheduleHandler) transition(c *gin.Context, name, conflictMsg string) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	var apply func(ctx context.Context, id uint64) (bool, error)
	switch name {
	case "pause":
		apply = h.Store.PauseDCASchedule
	case "resume":
		apply = h.Store.ResumeDCASchedule
	default:
		apply = h.Store.CancelDCASchedule
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Store.GetDCAScheduleByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "schedule not found", nil)
		return
	}
	ok, err := apply(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !ok {
		Error(c, http.StatusConflict, conflictMsg, map[string]any{"action": name})
		return
	}
	item, _ = h.Store.GetDCAScheduleByID(c.Request.Context(), id)
	Ok(c, item, nil)
}
