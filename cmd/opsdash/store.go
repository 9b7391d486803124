package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/hyperengineering/opsdash/internal/config"
	"github.com/hyperengineering/opsdash/internal/remote"
	"github.com/hyperengineering/opsdash/internal/store"
	"github.com/hyperengineering/opsdash/internal/sync"
)

// openStore opens the configured local substrate and wraps it in a Store.
func openStore(cfg config.LocalConfig) (*store.Store, error) {
	var (
		kv  store.KV
		err error
	)
	switch cfg.Backend {
	case config.BackendRedis:
		kv, err = store.NewRedisKV(cfg.RedisURL, cfg.RedisPrefix, cfg.QuotaBytes)
	default:
		kv, err = store.NewSQLiteKV(cfg.Path, cfg.QuotaBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return store.New(kv), nil
}

// openRemote connects to and migrates the remote store. It returns nil when
// no remote is configured.
func openRemote(ctx context.Context, cfg config.RemoteConfig) (*remote.Postgres, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	pg, err := remote.Open(ctx, cfg.URL, cfg.Key)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrate remote: %w", err)
	}
	return pg, nil
}

func newEngine(st *store.Store, pg *remote.Postgres, cfg config.SyncConfig) *sync.Engine {
	return sync.NewEngine(st, pg, sync.WithRetry(cfg.MaxAttempts, time.Duration(cfg.BaseDelay)))
}

// loadLocal loads configuration and opens the local store for a subcommand.
func loadLocal() (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(cfg.Local)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// closeAll closes the local store and, when open, the remote.
func closeAll(st *store.Store, pg *remote.Postgres) {
	if pg != nil {
		if err := pg.Close(); err != nil {
			slog.Error("remote close error", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
