package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"nirsvault/internal/dashboard"
	"nirsvault/internal/export"
	"nirsvault/internal/service"
)

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "ok", "running": h.pipeline.Running()})
}

// ── Dashboard ──────────────────────────────────────────────

func (h *Handler) listMetrics(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.dashboard.Metrics())
}

// runMetric evaluates GET /api/metrics/{metric}?match=ViMo&match=Oxy, or
// POST with a JSON Params body when transforms are needed. cache=false
// skips the snapshot cache.
func (h *Handler) runMetric(w http.ResponseWriter, r *http.Request) {
	p, err := metricParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.dashboard.Run(r.Context(), chi.URLParam(r, "metric"), p, useCache(r.URL.Query()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

func (h *Handler) exportMetric(w http.ResponseWriter, r *http.Request) {
	metric := chi.URLParam(r, "metric")
	p, err := metricParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := h.dashboard.Export(r.Context(), &buf, metric, p, useCache(r.URL.Query())); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", metric+".xlsx"))
	w.Write(buf.Bytes())
}

func metricParams(r *http.Request) (dashboard.Params, error) {
	var p dashboard.Params
	if r.Method == http.MethodPost {
		if err := render.DecodeJSON(r.Body, &p); err != nil && !errors.Is(err, io.EOF) {
			return p, fmt.Errorf("%w: body: %v", dashboard.ErrInvalidParams, err)
		}
		return p, nil
	}
	q := r.URL.Query()
	for _, m := range q["match"] {
		for _, part := range strings.Split(m, ",") {
			if part = strings.TrimSpace(part); part != "" {
				p.Match = append(p.Match, part)
			}
		}
	}
	p.Channels = q.Get("channels")
	p.Name = q.Get("name")
	p.Prefix = q.Get("prefix")
	return p, nil
}

func useCache(q url.Values) bool {
	v, err := strconv.ParseBool(q.Get("cache"))
	return err != nil || v
}

// ── Pipeline ───────────────────────────────────────────────

func (h *Handler) listSources(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.pipeline.ListSources())
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.pipeline.Jobs()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, jobs)
}

// runJob runs a job to completion. The run is detached from the request
// so a dropped client does not abort a load half way.
func (h *Handler) runJob(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	result, err := h.pipeline.RunJob(ctx, chi.URLParam(r, "job"), service.TriggerManual)
	if err != nil && result == nil {
		h.fail(w, r, err)
		return
	}
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
	}
	render.JSON(w, r, result)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.pipeline.ListRunLogs(r.URL.Query().Get("job"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, logs)
}
