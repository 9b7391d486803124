package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/opsdash/internal/archive"
	"github.com/hyperengineering/opsdash/internal/chat"
	"github.com/hyperengineering/opsdash/internal/command"
	"github.com/hyperengineering/opsdash/internal/store"
	"github.com/hyperengineering/opsdash/internal/sync"
)

// maxBodyBytes bounds request bodies, including import documents.
const maxBodyBytes = 10 << 20

// Syncer runs push/pull for a user.
type Syncer interface {
	Sync(ctx context.Context, userID string, direction sync.Direction) (*sync.Report, error)
}

// SyncStatus exposes the background worker's latest report.
type SyncStatus interface {
	LastReport() *sync.Report
}

// Archiver uploads an export document.
type Archiver interface {
	Archive(ctx context.Context) (*archive.Receipt, error)
	Enabled() bool
}

// Options holds the optional collaborators of a Handler. Nil fields disable
// the routes that need them.
type Options struct {
	Syncer        Syncer
	SyncStatus    SyncStatus
	Chat          chat.Provider
	Archiver      Archiver
	Notifier      command.Notifier
	DefaultUserID string
}

// Handler implements the API handlers
type Handler struct {
	store       *store.Store
	executor    *command.Executor
	syncer      Syncer
	syncStatus  SyncStatus
	chat        chat.Provider
	archiver    Archiver
	notifier    command.Notifier
	apiKey      string
	version     string
	defaultUser string
}

// NewHandler creates a Handler over the local store.
func NewHandler(s *store.Store, opts Options, apiKey, version string) *Handler {
	defaultUser := opts.DefaultUserID
	if defaultUser == "" {
		defaultUser = DefaultUserID
	}
	return &Handler{
		store:       s,
		executor:    command.NewExecutor(s, opts.Notifier),
		syncer:      opts.Syncer,
		syncStatus:  opts.SyncStatus,
		chat:        opts.Chat,
		archiver:    opts.Archiver,
		notifier:    opts.Notifier,
		apiKey:      apiKey,
		version:     version,
		defaultUser: defaultUser,
	}
}

// healthResponse is the body of GET /api/health.
type healthResponse struct {
	Status   string       `json:"status"`
	Version  string       `json:"version"`
	Store    store.Stats  `json:"store"`
	Remote   bool         `json:"remote"`
	Chat     bool         `json:"chat"`
	Archive  bool         `json:"archive"`
	LastSync *sync.Report `json:"last_sync,omitempty"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: h.version,
		Store:   h.store.Stats(r.Context()),
		Remote:  h.syncer != nil,
		Chat:    h.chat != nil,
		Archive: h.archiver != nil && h.archiver.Enabled(),
	}
	// Writes lost to quota exhaustion degrade the store without failing it.
	if resp.Store.DroppedWrites > 0 {
		resp.Status = "degraded"
	}
	if h.syncStatus != nil {
		resp.LastSync = h.syncStatus.LastReport()
	}

	writeJSON(w, http.StatusOK, resp)
}

// changed signals a local mutation to the sync worker.
func (h *Handler) changed() {
	if h.notifier != nil {
		h.notifier.Notify()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON reads the request body into v, writing a 400 problem and
// returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}
