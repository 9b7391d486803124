package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/opsdash/internal/sync"
	"github.com/hyperengineering/opsdash/internal/validation"
)

// Sync handles GET|POST /api/sync?userId=&direction=push|pull|both.
// The user defaults to the caller's identity and the direction to both.
// Collection failures are reported in the body; the status stays 200.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.syncer == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Remote sync is not configured")
		return
	}

	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		userID = UserIDFromContext(ctx)
	}
	if err := validation.ValidateMaxLength("userId", userID, validation.MaxNameLength); err != nil {
		WriteProblemWithErrors(w, r, "Invalid user id", []validation.ValidationError{*err})
		return
	}

	direction, err := sync.ParseDirection(q.Get("direction"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "direction must be push, pull or both")
		return
	}

	report, err := h.syncer.Sync(ctx, userID, direction)
	if err != nil {
		if errors.Is(err, sync.ErrInvalidDirection) {
			WriteProblem(w, r, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("sync failed",
			"component", "api",
			"action", "sync_failed",
			"user_id", userID,
			"direction", string(direction),
			"error", err,
		)
		WriteProblem(w, r, http.StatusInternalServerError, "Sync failed")
		return
	}

	slog.Info("sync completed",
		"component", "api",
		"action", "sync_complete",
		"user_id", userID,
		"direction", string(direction),
		"failed", report.Failed(),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, report)
}
