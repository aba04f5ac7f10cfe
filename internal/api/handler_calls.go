package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"machine-alert-backend/internal/authz"
	"machine-alert-backend/internal/calls"
	"machine-alert-backend/internal/export"
	"machine-alert-backend/internal/logger"
	"machine-alert-backend/internal/mw"
	"machine-alert-backend/internal/parse"
	"machine-alert-backend/internal/scheduler"
	"machine-alert-backend/internal/store"
)

type createCallRequest struct {
	MachineID string `json:"machineId" binding:"required"`
	Duration  *int   `json:"duration"` // checked by the engine; mole calls ignore it
	CallType  string `json:"callType"`
}

// CreateCall handles POST /api/calls.
func (h *Handler) CreateCall(c *gin.Context) {
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		mw.AbortWithError(c, bindError(err))
		return
	}
	callType, err := parse.ParseCallType(req.CallType)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}

	id, _ := authz.FromContext(c.Request.Context())
	call, err := h.engine.Create(c.Request.Context(), calls.CreateInput{
		MachineID: req.MachineID,
		Duration:  req.Duration,
		CallType:  callType,
		Roles:     id.Roles,
	})
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}

	view, err := h.query.View(c.Request.Context(), call)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ListCalls handles GET /api/calls.
func (h *Handler) ListCalls(c *gin.Context) {
	filter, err := h.filterFromQuery(c)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	page, limit, err := parse.ParsePagination(c.Query("page"), c.Query("limit"))
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}

	result, err := h.query.List(c.Request.Context(), filter, calls.Page{Page: page, Limit: limit})
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// CompleteCall handles PUT /api/calls/:id/complete.
func (h *Handler) CompleteCall(c *gin.Context) {
	id, _ := authz.FromContext(c.Request.Context())
	call, err := h.engine.Complete(c.Request.Context(), c.Param("id"), id.Roles)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}

	view, err := h.query.View(c.Request.Context(), call)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteCall handles DELETE /api/calls/:id.
func (h *Handler) DeleteCall(c *gin.Context) {
	id, _ := authz.FromContext(c.Request.Context())
	if err := h.engine.Delete(c.Request.Context(), c.Param("id"), id.Roles); err != nil {
		mw.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Call deleted successfully"})
}

// CheckExpired handles POST /api/calls/check-expired.
func (h *Handler) CheckExpired(c *gin.Context) {
	result, err := h.sweeps.Tick(c.Request.Context())
	if errors.Is(err, scheduler.ErrBusy) {
		c.JSON(http.StatusOK, gin.H{
			"message":      "An expiration check is already running",
			"updatedCount": 0,
		})
		return
	}
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}

	body := gin.H{
		"message":      "Expired calls checked",
		"updatedCount": result.Updated,
	}
	if len(result.Errors) > 0 {
		body["errors"] = result.Errors
	}
	c.JSON(http.StatusOK, body)
}

// ExportCalls handles GET /api/calls/export.
func (h *Handler) ExportCalls(c *gin.Context) {
	filter, err := h.filterFromQuery(c)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}
	views, err := h.query.All(c.Request.Context(), filter)
	if err != nil {
		mw.AbortWithError(c, err)
		return
	}

	c.Header("Content-Type", export.ContentType)
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(h.engine.Now(), h.loc)+`"`)
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, views, h.loc); err != nil {
		// Headers are already out; all we can do is log.
		logger.FromGin(c).WithError(err).Error("Failed to write export")
	}
}

func (h *Handler) filterFromQuery(c *gin.Context) (store.Filter, error) {
	day, err := parse.ParseDay(c.Query("date"), h.loc)
	if err != nil {
		return store.Filter{}, err
	}
	status, err := parse.ParseStatus(c.Query("status"))
	if err != nil {
		return store.Filter{}, err
	}
	return store.Filter{
		MachineID:  c.Query("machineId"),
		Status:     status,
		Date:       day,
		FactoryID:  c.Query("factoryId"),
		CategoryID: c.Query("categoryId"),
	}, nil
}
