package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/repository"
	"PairPilot/internal/service/cache"
	"PairPilot/internal/services/universe"
	"PairPilot/internal/usecase"
	xhttp "PairPilot/pkg/http"
	xlogger "PairPilot/pkg/logger"
)

// SchedulerControl is the scheduler surface the API drives.
type SchedulerControl interface {
	TriggerImmediateSelection() error
	GetStatus() models.SchedulerStatus
}

// SelectionHistory reads recorded batches.
type SelectionHistory interface {
	ListSelections(limit int) []models.SelectionRecord
	GetSelection(id string) (models.SelectionRecord, error)
	GetSelectionPerformance(id string) (models.SelectionPerformance, error)
	Len() int
}

// WeightSource exposes the learned fusion weights.
type WeightSource interface {
	State() models.ThompsonWeightState
	GetExpectedWeights() models.FusionWeights
}

// SelectionEchoHandler serves the selection engine's read and control API.
type SelectionEchoHandler struct {
	logger    *xlogger.Logger
	scheduler SchedulerControl
	history   SelectionHistory
	weights   WeightSource
	cache     *cache.UniverseCache
	filter    *universe.DiscoveryFilter
	hub       *StreamHub
}

func NewSelectionEchoHandler(
	logger *xlogger.Logger,
	scheduler SchedulerControl,
	history SelectionHistory,
	weights WeightSource,
	uc *cache.UniverseCache,
	filter *universe.DiscoveryFilter,
	hub *StreamHub,
) *SelectionEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &SelectionEchoHandler{
		logger:    logger,
		scheduler: scheduler,
		history:   history,
		weights:   weights,
		cache:     uc,
		filter:    filter,
		hub:       hub,
	}
}

func (h *SelectionEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/selection/status", h.Status)
	g.POST("/selection/trigger", h.Trigger)
	g.GET("/selection/history", h.History)
	if h.hub != nil {
		g.GET("/selection/stream", h.hub.ServeWS)
	}
	g.GET("/selection/:id", h.Selection)
	g.GET("/selection/:id/performance", h.Performance)
	g.GET("/weights", h.Weights)
	g.GET("/universe", h.Universe)
	g.DELETE("/universe/cache", h.InvalidateUniverse)
}

func (h *SelectionEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.scheduler.GetStatus())
}

func (h *SelectionEchoHandler) Trigger(c echo.Context) error {
	err := h.scheduler.TriggerImmediateSelection()
	switch {
	case err == nil:
		return xhttp.AcceptedResponse(c, models.TriggerResponse{Queued: true})
	case errors.Is(err, usecase.ErrTriggerPending):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("a selection run is already queued").WithError(err))
	case errors.Is(err, usecase.ErrSchedulerStopped):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("scheduler is not running").WithError(err))
	default:
		h.logger.Error("trigger selection failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("trigger failed").WithError(err))
	}
}

func (h *SelectionEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.ListResponse(c, h.history.ListSelections(req.Limit), int64(h.history.Len()))
}

func (h *SelectionEchoHandler) Selection(c echo.Context) error {
	req := &models.SelectionIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rec, err := h.history.GetSelection(req.ID)
	if err != nil {
		return h.lookupError(c, req.ID, err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *SelectionEchoHandler) Performance(c echo.Context) error {
	req := &models.SelectionIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	perf, err := h.history.GetSelectionPerformance(req.ID)
	if err != nil {
		return h.lookupError(c, req.ID, err)
	}
	return xhttp.SuccessResponse(c, perf)
}

func (h *SelectionEchoHandler) lookupError(c echo.Context, id string, err error) error {
	if errors.Is(err, repository.ErrSelectionNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("selection %s not found", id).WithParam("selection_id", id).WithError(err))
	}
	h.logger.Error("selection lookup failed", xlogger.String("selection_id", id), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func (h *SelectionEchoHandler) Weights(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.WeightsResponse{
		State:    h.weights.State(),
		Expected: h.weights.GetExpectedWeights(),
	})
}

func (h *SelectionEchoHandler) Universe(c echo.Context) error {
	res := models.UniverseResponse{
		WhitelistMode: h.filter.WhitelistMode(),
		Whitelist:     h.filter.Whitelist(),
		TTLHours:      h.cache.TTL().Hours(),
		Cached:        map[string]models.CachedUniverseView{},
	}
	for k, v := range h.cache.Snapshot() {
		res.Cached[k] = models.CachedUniverseView{Pairs: v.Pairs, WrittenAt: v.WrittenAt}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, res)
}

func (h *SelectionEchoHandler) InvalidateUniverse(c echo.Context) error {
	req := &models.InvalidateUniverseRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if req.Key == "" {
		h.cache.Invalidate(ctx)
	} else {
		h.cache.Invalidate(ctx, req.Key)
	}
	h.logger.Info("universe cache invalidated", xlogger.String("key", req.Key))
	return xhttp.NoContentResponse(c)
}

var _ xhttp.Handler = (*SelectionEchoHandler)(nil)
