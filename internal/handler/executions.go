package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"orderengine/internal/repository"
)

type ExecutionHandler struct {
	Store repository.Store
}

func (h *ExecutionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/executions")
	g.GET("", h.list)
}

func (h *ExecutionHandler) list(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var orderID *uint64
	if v := strings.TrimSpace(c.Query("order_id")); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil && id > 0 {
			orderID = &id
		}
	}
	var since *time.Time
	if v := strings.TrimSpace(c.Query("since")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			Error(c, http.StatusBadRequest, "since must be RFC3339", nil)
			return
		}
		since = &t
	}
	params := repository.ListExecutionsParams{
		Limit:     limit,
		Offset:    offset,
		OrderKind: strQueryPtr(c, "order_kind"),
		OrderID:   orderID,
		Status:    strQueryPtr(c, "status"),
		Since:     since,
		OrderBy:   "created_at",
		Asc:       boolPtr(false),
	}
	items, err := h.Store.ListExecutions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, listMeta(limit, offset, len(items)))
}
