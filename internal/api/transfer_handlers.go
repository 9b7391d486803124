package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/opsdash/internal/archive"
	"github.com/hyperengineering/opsdash/internal/dates"
)

// Export handles GET /api/export?format=json. JSON is the only format;
// anything else answers 501.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" {
		WriteProblem(w, r, http.StatusNotImplemented, fmt.Sprintf("Export format %q is not available yet", format))
		return
	}

	data, err := h.store.ExportData(r.Context())
	if err != nil {
		slog.Error("export failed", "component", "api", "action", "export", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	filename := fmt.Sprintf("opsdash-export-%s.json", dates.Today(h.store.Now()))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Import handles POST /api/import. Collections present in the document
// overwrite local ones; absent keys are left untouched.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Could not read import document")
		return
	}

	if !h.store.ImportData(r.Context(), data) {
		WriteProblem(w, r, http.StatusBadRequest, "Import document is not a valid export")
		return
	}

	slog.Info("import applied",
		"component", "api",
		"action", "import",
		"user_id", UserIDFromContext(r.Context()),
		"bytes", len(data),
	)
	h.changed()
	writeJSON(w, http.StatusOK, map[string]bool{"imported": true})
}

// ArchiveExport handles POST /api/export/archive
func (h *Handler) ArchiveExport(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil || !h.archiver.Enabled() {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Export archive is not configured")
		return
	}

	receipt, err := h.archiver.Archive(r.Context())
	if err != nil {
		if errors.Is(err, archive.ErrNotConfigured) {
			WriteProblem(w, r, http.StatusServiceUnavailable, "Export archive is not configured")
			return
		}
		slog.Warn("archive upload failed", "component", "api", "action", "archive", "error", err)
		WriteProblem(w, r, http.StatusBadGateway, "Archive storage rejected the upload")
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}
