package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/offline-sync/internal/domain/dto"
	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/middleware"
	"github.com/guttosm/offline-sync/internal/service"
)

// AdminHandler serves the /_offline introspection and control API.
type AdminHandler struct {
	engine *service.Engine
}

// NewAdminHandler creates an AdminHandler over engine.
func NewAdminHandler(engine *service.Engine) *AdminHandler {
	return &AdminHandler{engine: engine}
}

// RegisterRoutes registers the admin endpoints on rg.
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.Stats)
	rg.DELETE("/data", h.ClearAll)

	rg.GET("/queue", h.ListActions)
	rg.GET("/queue/:id", h.GetAction)
	rg.POST("/queue/:id/retry", h.RetryAction)
	rg.DELETE("/queue/:id", h.DeleteAction)

	rg.POST("/sync", h.Sync)
	rg.POST("/sweep", h.Sweep)

	rg.GET("/cache", h.CacheUsage)
	rg.GET("/cache/:partition", h.CacheKeys)
	rg.DELETE("/cache/:partition", h.ClearPartition)

	rg.GET("/connectivity", h.Connectivity)
	rg.PUT("/connectivity", h.SetConnectivity)
}

// Stats godoc
// @Summary     Offline statistics
// @Description Cached item count, queued and failed actions, storage use, last sync time and connectivity.
// @Tags        Offline
// @Produce     json
// @Success     200 {object} model.Stats
// @Failure     500 {object} dto.ErrorResponse
// @Router      /_offline/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ClearAll godoc
// @Summary     Clear all offline data
// @Description Empties every cache partition and the mutation queue.
// @Tags        Offline
// @Produce     json
// @Success     200 {object} service.ClearResult
// @Failure     500 {object} dto.ErrorResponse
// @Router      /_offline/data [delete]
func (h *AdminHandler) ClearAll(c *gin.Context) {
	res, err := h.engine.ClearAll(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListActions godoc
// @Summary     List queued actions
// @Tags        Queue
// @Produce     json
// @Param       status query string false "Filter by status (pending, syncing, completed, failed)"
// @Success     200 {object} dto.ActionList
// @Failure     400 {object} dto.ErrorResponse
// @Router      /_offline/queue [get]
func (h *AdminHandler) ListActions(c *gin.Context) {
	var statuses []model.ActionStatus
	if s := c.Query("status"); s != "" {
		status := model.ActionStatus(s)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, dto.NewError(dto.ErrCodeInvalidRequest,
				fmt.Sprintf("unknown status %q", s)).WithRequestID(middleware.GetRequestID(c)))
			return
		}
		statuses = append(statuses, status)
	}

	actions, err := h.engine.Queue.List(c.Request.Context(), statuses...)
	if err != nil {
		_ = c.Error(err)
		return
	}
	list := dto.ActionList{Actions: make([]model.QueuedAction, 0, len(actions)), Count: len(actions)}
	for _, a := range actions {
		list.Actions = append(list.Actions, *a)
	}
	c.JSON(http.StatusOK, list)
}

// GetAction godoc
// @Summary     Get a queued action
// @Tags        Queue
// @Produce     json
// @Param       id path string true "Action id"
// @Success     200 {object} model.QueuedAction
// @Failure     404 {object} dto.ErrorResponse
// @Router      /_offline/queue/{id} [get]
func (h *AdminHandler) GetAction(c *gin.Context) {
	a, err := h.engine.Queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// RetryAction godoc
// @Summary     Retry a failed action
// @Description Moves a failed action back to pending with a fresh retry budget and triggers a sync.
// @Tags        Queue
// @Produce     json
// @Param       id path string true "Action id"
// @Success     200 {object} model.QueuedAction
// @Failure     404 {object} dto.ErrorResponse
// @Failure     409 {object} dto.ErrorResponse
// @Router      /_offline/queue/{id}/retry [post]
func (h *AdminHandler) RetryAction(c *gin.Context) {
	a, err := h.engine.Queue.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if h.engine.Monitor.Online() {
		h.engine.Reconciler.Trigger(service.SourceManual)
	}
	c.JSON(http.StatusOK, a)
}

// DeleteAction godoc
// @Summary     Delete a queued action
// @Tags        Queue
// @Param       id path string true "Action id"
// @Success     204
// @Failure     404 {object} dto.ErrorResponse
// @Router      /_offline/queue/{id} [delete]
func (h *AdminHandler) DeleteAction(c *gin.Context) {
	if err := h.engine.Queue.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Sync godoc
// @Summary     Trigger a sync pass
// @Description Starts a reconciliation pass in the background. Returns 409 when one is already running.
// @Tags        Sync
// @Produce     json
// @Success     202 {object} dto.SyncResponse
// @Failure     409 {object} dto.SyncResponse
// @Router      /_offline/sync [post]
func (h *AdminHandler) Sync(c *gin.Context) {
	if !h.engine.Reconciler.Trigger(service.SourceManual) {
		c.JSON(http.StatusConflict, dto.SyncResponse{Started: false, Message: service.ErrPassInProgress.Error()})
		return
	}
	c.JSON(http.StatusAccepted, dto.SyncResponse{Started: true, Message: "sync pass started"})
}

// Sweep godoc
// @Summary     Run a janitor sweep
// @Tags        Offline
// @Produce     json
// @Success     200 {object} service.SweepResult
// @Failure     500 {object} dto.ErrorResponse
// @Router      /_offline/sweep [post]
func (h *AdminHandler) Sweep(c *gin.Context) {
	res, err := h.engine.Janitor.Sweep(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CacheUsage godoc
// @Summary     Cache partition usage
// @Tags        Cache
// @Produce     json
// @Success     200 {array} model.PartitionUsage
// @Router      /_offline/cache [get]
func (h *AdminHandler) CacheUsage(c *gin.Context) {
	usage, err := h.engine.Cache.Usage(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if usage == nil {
		usage = []model.PartitionUsage{}
	}
	c.JSON(http.StatusOK, usage)
}

// CacheKeys godoc
// @Summary     List keys of a cache partition
// @Tags        Cache
// @Produce     json
// @Param       partition path string true "Partition (precache, runtime, data, image)"
// @Success     200 {object} dto.PartitionKeys
// @Failure     404 {object} dto.ErrorResponse
// @Router      /_offline/cache/{partition} [get]
func (h *AdminHandler) CacheKeys(c *gin.Context) {
	partition := c.Param("partition")
	keys, err := h.engine.Cache.Keys(c.Request.Context(), partition)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, dto.PartitionKeys{Partition: partition, Keys: keys})
}

// ClearPartition godoc
// @Summary     Clear a cache partition
// @Tags        Cache
// @Produce     json
// @Param       partition path string true "Partition (precache, runtime, data, image)"
// @Success     200 {object} map[string]int
// @Failure     404 {object} dto.ErrorResponse
// @Router      /_offline/cache/{partition} [delete]
func (h *AdminHandler) ClearPartition(c *gin.Context) {
	n, err := h.engine.Cache.Clear(c.Request.Context(), c.Param("partition"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// Connectivity godoc
// @Summary     Current connectivity state
// @Tags        Connectivity
// @Produce     json
// @Success     200 {object} dto.ConnectivityResponse
// @Router      /_offline/connectivity [get]
func (h *AdminHandler) Connectivity(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ConnectivityResponse{Online: h.engine.Monitor.Online()})
}

// SetConnectivity godoc
// @Summary     Report a connectivity change
// @Description Platform connectivity signal. Going online triggers a sync pass.
// @Tags        Connectivity
// @Accept      json
// @Produce     json
// @Param       request body dto.ConnectivityRequest true "New state"
// @Success     200 {object} dto.ConnectivityResponse
// @Failure     400 {object} dto.ErrorResponse
// @Router      /_offline/connectivity [put]
func (h *AdminHandler) SetConnectivity(c *gin.Context) {
	var req dto.ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewError(dto.ErrCodeInvalidRequest, err.Error()).WithRequestID(middleware.GetRequestID(c)))
		return
	}
	changed := h.engine.Monitor.SetOnline(*req.Online)
	c.JSON(http.StatusOK, dto.ConnectivityResponse{Online: *req.Online, Changed: changed})
}
