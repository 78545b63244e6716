// Package server exposes the pipeline's operational HTTP surface: health,
// Prometheus metrics, and session run summaries from the catalog.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/spikeline/internal/store"
	"github.com/mohammad-safakhou/spikeline/internal/telemetry"
)

// Ops is the operational endpoint handler.
type Ops struct {
	logger  *log.Logger
	metrics *telemetry.Telemetry
	store   *store.Store // optional
}

// NewOps builds the handler.
func NewOps(logger *log.Logger, metrics *telemetry.Telemetry, st *store.Store) *Ops {
	return &Ops{logger: logger, metrics: metrics, store: st}
}

// Run serves the ops endpoints until the context is cancelled.
func (o *Ops) Run(ctx context.Context, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/healthz", o.healthz)
	if o.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(o.metrics.Handler()))
	}
	e.GET("/runs", o.runs)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			o.logger.Printf("warn: ops shutdown: %v", err)
		}
	}()

	o.logger.Printf("ops server listening on %s", addr)
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (o *Ops) healthz(c echo.Context) error {
	status := map[string]string{"status": "ok"}
	if o.store != nil {
		if err := o.store.DB.PingContext(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["postgres"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, status)
		}
		status["postgres"] = "ok"
	}
	return c.JSON(http.StatusOK, status)
}

// runSummary is one row of the /runs listing.
type runSummary struct {
	ID         string     `json:"id"`
	Day        string     `json:"day"`
	Tower      string     `json:"tower"`
	Probe      int        `json:"probe"`
	Stage      string     `json:"stage"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (o *Ops) runs(c echo.Context) error {
	if o.store == nil {
		return c.JSON(http.StatusOK, []runSummary{})
	}
	rows, err := o.store.DB.QueryContext(c.Request().Context(), `
SELECT r.id, s.day, s.tower, s.probe, r.stage, r.status, r.started_at, r.finished_at
FROM runs r JOIN sessions s ON s.id = r.session_id
ORDER BY r.started_at DESC LIMIT 50`)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rows.Close()

	out := []runSummary{}
	for rows.Next() {
		var r runSummary
		if err := rows.Scan(&r.ID, &r.Day, &r.Tower, &r.Probe, &r.Stage, &r.Status, &r.StartedAt, &r.FinishedAt); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}
