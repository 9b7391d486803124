package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/opsdash/internal/alerts"
	"github.com/hyperengineering/opsdash/internal/dates"
	"github.com/hyperengineering/opsdash/internal/metrics"
	"github.com/hyperengineering/opsdash/internal/types"
	"github.com/hyperengineering/opsdash/internal/validation"
)

// GetMetrics handles GET /api/metrics[?metricId=]
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id := r.URL.Query().Get("metricId"); id != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"metricId": id,
			"entries":  nonNil(h.store.GetEntriesForMetric(ctx, id)),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": nonNil(h.store.GetAnchorMetrics(ctx)),
		"entries": nonNil(h.store.GetMetricEntries(ctx)),
	})
}

// PostMetricEntry handles POST /api/metrics. The entry must reference a
// stored anchor metric; its status is always derived from that metric's
// guardrails.
func (h *Handler) PostMetricEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var entry types.MetricEntry
	if !decodeJSON(w, r, &entry) {
		return
	}

	errs := validation.ValidateMetricEntry(entry)
	if entry.Status != "" {
		if err := validation.ValidateEnum("status", entry.Status,
			types.StatusGreen, types.StatusYellow, types.StatusRed); err != nil {
			errs = append(errs, *err)
		}
	}
	if len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Metric entry contains invalid fields", errs)
		return
	}

	metric, ok := h.store.GetAnchorMetric(ctx, entry.MetricID)
	if !ok {
		WriteProblem(w, r, http.StatusNotFound, "Metric not found")
		return
	}
	entry.Status = metrics.CalculateStatus(entry.Value, metric)
	entry.UpdatedAt = h.store.Now().UTC()

	h.store.SaveMetricEntry(ctx, entry)
	h.changed()
	writeJSON(w, http.StatusOK, entry)
}

// ListAnchorMetrics handles GET /api/anchor-metrics
func (h *Handler) ListAnchorMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"metrics": nonNil(h.store.GetAnchorMetrics(r.Context()))})
}

// SaveAnchorMetric handles POST /api/anchor-metrics. A metric without id is
// created; an existing id is replaced, keeping its creation time.
func (h *Handler) SaveAnchorMetric(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var m types.AnchorMetric
	if !decodeJSON(w, r, &m) {
		return
	}
	if m.Frequency == "" {
		m.Frequency = types.FrequencyDaily
	}

	if errs := validation.ValidateAnchorMetric(m); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Metric contains invalid fields", errs)
		return
	}

	status := http.StatusOK
	existing, found := types.AnchorMetric{}, false
	if m.ID != "" {
		existing, found = h.store.GetAnchorMetric(ctx, m.ID)
	} else {
		m.ID = ulid.Make().String()
	}
	if found {
		m.CreatedAt = existing.CreatedAt
	} else {
		m.CreatedAt = h.store.Now().UTC()
		status = http.StatusCreated
	}

	h.store.SaveAnchorMetric(ctx, m)
	h.changed()
	writeJSON(w, status, m)
}

// DeleteAnchorMetric handles DELETE /api/anchor-metrics/{id}. Entries of
// the metric are deleted with it.
func (h *Handler) DeleteAnchorMetric(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, ok := h.store.GetAnchorMetric(ctx, id); !ok {
		WriteProblem(w, r, http.StatusNotFound, "Metric not found")
		return
	}

	h.store.DeleteAnchorMetric(ctx, id)
	h.changed()
	w.WriteHeader(http.StatusNoContent)
}

// SeedAnchorMetrics handles POST /api/anchor-metrics/seed
func (h *Handler) SeedAnchorMetrics(w http.ResponseWriter, r *http.Request) {
	n := metrics.SeedDefaults(r.Context(), h.store, h.store.Now())
	if n > 0 {
		h.changed()
	}
	writeJSON(w, http.StatusOK, map[string]int{"seeded": n})
}

// Radar handles GET /api/radar[?date=], the red alerts for a day.
func (h *Handler) Radar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := r.URL.Query().Get("date")
	if date == "" {
		date = dates.Today(h.store.Now())
	}
	if !dates.Valid(date) {
		WriteProblem(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	red := metrics.GetRedAlerts(date, h.store.GetAnchorMetrics(ctx), h.store.GetMetricEntries(ctx))
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "alerts": nonNil(red)})
}

type addressedRequest struct {
	MetricID  string `json:"metricId"`
	Date      string `json:"date"`
	Addressed bool   `json:"addressed"`
}

// SetAddressed handles POST /api/radar/addressed
func (h *Handler) SetAddressed(w http.ResponseWriter, r *http.Request) {
	var req addressedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var v validation.Collector
	v.Add(validation.ValidateRequired("metricId", req.MetricID))
	v.Add(validation.ValidateDate("date", req.Date))
	if v.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", v.Errors())
		return
	}

	if !h.store.SetEntryAddressed(r.Context(), req.MetricID, req.Date, req.Addressed) {
		WriteProblem(w, r, http.StatusNotFound, "No entry for that metric and date")
		return
	}
	h.changed()
	w.WriteHeader(http.StatusNoContent)
}

// Alerts handles GET /api/alerts. Alerts are recomputed on every call;
// dismissed ones are left out.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all := alerts.AnalyzePatterns(
		h.store.Now(),
		h.store.GetDailyChecks(ctx),
		h.store.GetWeeklyPlans(ctx),
		h.store.GetAnchorMetrics(ctx),
		h.store.GetMetricEntries(ctx),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts.FilterDismissed(all, h.store.GetDismissedAlerts(ctx)),
	})
}

// DismissAlert handles POST /api/alerts/{id}/dismiss
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validation.ValidateMaxLength("id", id, validation.MaxNameLength); err != nil {
		WriteProblemWithErrors(w, r, "Invalid alert id", []validation.ValidationError{*err})
		return
	}

	h.store.DismissAlert(r.Context(), id)
	h.changed()
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
