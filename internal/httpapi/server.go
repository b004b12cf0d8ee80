// Package httpapi serves the dashboard and the pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"nirsvault/internal/dashboard"
	"nirsvault/internal/etl"
)

// Pipeline is the part of service.PipelineService the API uses.
type Pipeline interface {
	Jobs() ([]etl.SyncJob, error)
	Running() []string
	ListSources() []etl.SourceSpec
	ListRunLogs(name string, limit int) ([]etl.SyncRunLog, error)
	RunJob(ctx context.Context, name, trigger string) (*etl.SyncResult, error)
}

// Dashboard is the part of service.DashboardService the API uses.
type Dashboard interface {
	Metrics() []dashboard.Metric
	Run(ctx context.Context, metric string, p dashboard.Params, useCache bool) (*dashboard.Result, error)
	Export(ctx context.Context, w io.Writer, metric string, p dashboard.Params, useCache bool) error
}

// Handler holds the API's dependencies.
type Handler struct {
	pipeline  Pipeline
	dashboard Dashboard
	metrics   http.Handler
	log       *zap.Logger
}

// New creates a Handler. metrics serves /metrics and may be nil.
func New(p Pipeline, d Dashboard, metrics http.Handler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pipeline: p, dashboard: d, metrics: metrics, log: logger.Named("http")}
}

// Routes builds the router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/metrics", h.listMetrics)
		r.Route("/metrics/{metric}", func(r chi.Router) {
			r.Get("/", h.runMetric)
			r.Post("/", h.runMetric)
			r.Get("/export", h.exportMetric)
		})

		r.Get("/sources", h.listSources)
		r.Get("/jobs", h.listJobs)
		r.Post("/jobs/{job}/run", h.runJob)
		r.Get("/runs", h.listRuns)
	})
	return r
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err, r)
	if p.Status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	render.Render(w, r, p)
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// within the grace period.
func ListenAndServe(ctx context.Context, addr string, h *Handler, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		h.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
