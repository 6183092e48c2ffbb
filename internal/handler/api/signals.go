package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/internal/service/ratelimit"
	"sidbot/internal/usecase"
	xhttp "sidbot/pkg/http"
	applogger "sidbot/pkg/logger"
)

// ReportSource yields the latest rendered report.
type ReportSource interface {
	Latest(ctx context.Context) (string, error)
}

// JobTrigger queues a manual job run.
type JobTrigger interface {
	Trigger(ctx context.Context, job string) (string, error)
}

// SignalsHandler exposes the signal book read-only, plus manual job triggers that are only
// queued here and executed by the orchestrator.
type SignalsHandler struct {
	q       *usecase.Queries
	reports ReportSource
	jobs    JobTrigger
	rl      *ratelimit.Limiter
	l       *applogger.Logger
	started time.Time
}

func NewSignalsHandler(l *applogger.Logger, q *usecase.Queries, reports ReportSource, jobs JobTrigger, rl *ratelimit.Limiter) *SignalsHandler {
	return &SignalsHandler{q: q, reports: reports, jobs: jobs, rl: rl, l: l, started: time.Now()}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/signals", h.List)
	g.GET("/signals/:symbol", h.Get)
	g.GET("/signals/:symbol/bars", h.Bars)
	g.GET("/report", h.Report)
	g.POST("/jobs/:name", h.TriggerJob)
}

func (h *SignalsHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *SignalsHandler) List(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sigs, err := h.q.ListSignals(c.Request().Context(), usecase.ListSignalsParams{State: req.State, Limit: req.Limit})
	if err != nil {
		h.l.Error("list signals failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not list signals").WithError(err))
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}

func (h *SignalsHandler) Get(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sig, err := h.q.Signal(c.Request().Context(), req.Symbol)
	if errors.Is(err, drepo.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no signal for %s", req.Symbol))
	}
	if err != nil {
		h.l.Error("get signal failed", applogger.Symbol(req.Symbol), applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not load signal").WithError(err))
	}
	return xhttp.SuccessResponse(c, struct {
		models.Signal
		State models.LifecycleState `json:"state"`
	}{sig, sig.State()})
}

func (h *SignalsHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.q.Bars(c.Request().Context(), usecase.GetBarsParams{Symbol: req.Symbol, Limit: req.N})
	if err != nil {
		h.l.Error("bars failed", applogger.Symbol(req.Symbol), applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not load bars").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsHandler) Report(c echo.Context) error {
	html, err := h.reports.Latest(c.Request().Context())
	if err != nil {
		h.l.Error("report failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("report not available").WithError(err))
	}
	return c.HTML(http.StatusOK, html)
}

func (h *SignalsHandler) TriggerJob(c echo.Context) error {
	req := &models.TriggerJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.rl != nil && !h.rl.Allow(c.RealIP()+":jobs") {
		h.l.Warn("job trigger rate limited", applogger.String("remote", c.RealIP()), applogger.String("job", req.Name))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many job triggers", http.StatusTooManyRequests))
	}
	id, err := h.jobs.Trigger(c.Request().Context(), req.Name)
	if errors.Is(err, usecase.ErrUnknownJob) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	if err != nil {
		h.l.Error("job trigger failed", applogger.String("job", req.Name), applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("could not queue job").WithError(err))
	}
	return xhttp.AcceptedResponse(c, models.TriggerJobResponse{Job: req.Name, Queued: true, ID: id})
}
