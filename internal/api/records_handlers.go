package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/opsdash/internal/dates"
	"github.com/hyperengineering/opsdash/internal/types"
	"github.com/hyperengineering/opsdash/internal/validation"
)

// GetDailyChecks handles GET /api/daily-checks[?date=]
func (h *Handler) GetDailyChecks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, http.StatusOK, map[string]any{"dailyChecks": h.store.GetDailyChecks(ctx)})
		return
	}
	if !dates.Valid(date) {
		WriteProblem(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	check, ok := h.store.GetDailyCheck(ctx, date)
	if !ok {
		WriteProblem(w, r, http.StatusNotFound, "No daily check for "+date)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// PutDailyCheck handles PUT /api/daily-checks. The record replaces any
// check on the same date; a missing date means today.
func (h *Handler) PutDailyCheck(w http.ResponseWriter, r *http.Request) {
	var check types.DailyCheck
	if !decodeJSON(w, r, &check) {
		return
	}
	if check.Date == "" {
		check.Date = dates.Today(h.store.Now())
	}
	if !check.HasBottleneck {
		check.BottleneckDescription = ""
	}

	if errs := validation.ValidateDailyCheck(check); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Daily check contains invalid fields", errs)
		return
	}

	h.store.SaveDailyCheck(r.Context(), check)
	h.changed()
	writeJSON(w, http.StatusOK, check)
}

// DeleteDailyCheck handles DELETE /api/daily-checks/{date}
func (h *Handler) DeleteDailyCheck(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, ok := h.store.GetDailyCheck(r.Context(), date); !ok {
		WriteProblem(w, r, http.StatusNotFound, "No daily check for "+date)
		return
	}
	h.store.DeleteDailyCheck(r.Context(), date)
	h.changed()
	w.WriteHeader(http.StatusNoContent)
}

// GetWeeklyPlans handles GET /api/weekly-plans[?weekStart=]
func (h *Handler) GetWeeklyPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	week := r.URL.Query().Get("weekStart")
	if week == "" {
		writeJSON(w, http.StatusOK, map[string]any{"weeklyPlans": h.store.GetWeeklyPlans(ctx)})
		return
	}

	plan, ok := h.store.GetWeeklyPlan(ctx, week)
	if !ok {
		WriteProblem(w, r, http.StatusNotFound, "No weekly plan for "+week)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// PutWeeklyPlan handles PUT /api/weekly-plans. A missing weekStart means
// the current week.
func (h *Handler) PutWeeklyPlan(w http.ResponseWriter, r *http.Request) {
	var plan types.WeeklyPlan
	if !decodeJSON(w, r, &plan) {
		return
	}
	if plan.WeekStart == "" {
		plan.WeekStart = dates.WeekStart(h.store.Now())
	}
	for i := range plan.Projects {
		if plan.Projects[i].ID == "" {
			plan.Projects[i].ID = ulid.Make().String()
		}
		if plan.Projects[i].DependsOn == "" {
			plan.Projects[i].DependsOn = types.DependsOnMe
		}
	}
	if plan.Projects == nil {
		plan.Projects = []types.Project{}
	}

	if errs := validation.ValidateWeeklyPlan(plan); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Weekly plan contains invalid fields", errs)
		return
	}

	h.store.SaveWeeklyPlan(r.Context(), plan)
	h.changed()
	writeJSON(w, http.StatusOK, plan)
}

// GetImpactLogs handles GET /api/impact-logs[?date=]
func (h *Handler) GetImpactLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, http.StatusOK, map[string]any{"impactLogs": h.store.GetImpactLogs(ctx)})
		return
	}

	log, ok := h.store.GetImpactLog(ctx, date)
	if !ok {
		WriteProblem(w, r, http.StatusNotFound, "No impact log for "+date)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// PutImpactLog handles PUT /api/impact-logs
func (h *Handler) PutImpactLog(w http.ResponseWriter, r *http.Request) {
	var log types.ImpactLog
	if !decodeJSON(w, r, &log) {
		return
	}
	if log.Date == "" {
		log.Date = dates.Today(h.store.Now())
	}

	if errs := validation.ValidateImpactLog(log); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Impact log contains invalid fields", errs)
		return
	}

	h.store.SaveImpactLog(r.Context(), log)
	h.changed()
	writeJSON(w, http.StatusOK, log)
}

// GetPreferences handles GET /api/preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetPreferences(r.Context()))
}

// PutPreferences handles PUT /api/preferences
func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs types.Preferences
	if !decodeJSON(w, r, &prefs) {
		return
	}

	var v validation.Collector
	v.Add(validation.ValidateMaxLength("displayName", prefs.DisplayName, validation.MaxNameLength))
	v.Add(validation.ValidateText("displayName", prefs.DisplayName))
	v.Add(validation.ValidateMaxLength("theme", prefs.Theme, validation.MaxNameLength))
	if v.HasErrors() {
		WriteProblemWithErrors(w, r, "Preferences contain invalid fields", v.Errors())
		return
	}

	h.store.SavePreferences(r.Context(), prefs)
	writeJSON(w, http.StatusOK, prefs)
}
