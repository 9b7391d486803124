// Package e2e drives the full HTTP stack of several devices that share one
// remote store.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/hyperengineering/opsdash/internal/api"
	"github.com/hyperengineering/opsdash/internal/chat"
	"github.com/hyperengineering/opsdash/internal/command"
	"github.com/hyperengineering/opsdash/internal/store"
	"github.com/hyperengineering/opsdash/internal/sync"
	"github.com/hyperengineering/opsdash/internal/worker"
)

const testAPIKey = "e2e-api-key"

// testNow is a Wednesday; its week starts on 2026-10-12.
var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

// --- Remote ---

var errRemoteDown = errors.New("remote unavailable")

// memRemote is an in-memory sync.Remote with per-table failure injection.
type memRemote struct {
	mu     gosync.Mutex
	rows   map[string]map[string]sync.Row
	failOn map[string]bool
	calls  map[string]int
}

func newMemRemote() *memRemote {
	return &memRemote{
		rows:   make(map[string]map[string]sync.Row),
		failOn: make(map[string]bool),
		calls:  make(map[string]int),
	}
}

func rowKey(r sync.Row) string {
	return r.UserID + "\x00" + strings.Join(r.Keys, "\x00")
}

func (m *memRemote) Upsert(ctx context.Context, table sync.Table, rows []sync.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[table.Name]++
	if m.failOn[table.Name] {
		return fmt.Errorf("upsert %s: %w", table.Name, errRemoteDown)
	}
	t, ok := m.rows[table.Name]
	if !ok {
		t = make(map[string]sync.Row)
		m.rows[table.Name] = t
	}
	for _, r := range rows {
		t[rowKey(r)] = r
	}
	return nil
}

func (m *memRemote) Select(ctx context.Context, table sync.Table, userID string) ([]sync.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[table.Name]++
	if m.failOn[table.Name] {
		return nil, fmt.Errorf("select %s: %w", table.Name, errRemoteDown)
	}
	var out []sync.Row
	for _, r := range m.rows[table.Name] {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return rowKey(out[i]) < rowKey(out[j]) })
	return out, nil
}

func (m *memRemote) fail(table string, down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[table] = down
}

func (m *memRemote) count(table, userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows[table] {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memRemote) callCount(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[table]
}

// --- Chat ---

// scriptedProvider replies with canned assistant messages in order.
type scriptedProvider struct {
	mu      gosync.Mutex
	replies []string
	systems []string
}

func (p *scriptedProvider) Complete(ctx context.Context, system string, messages []chat.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.systems = append(p.systems, system)
	if len(p.replies) == 0 {
		return "", chat.ErrUnavailable
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return reply, nil
}

func (p *scriptedProvider) lastSystem() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.systems) == 0 {
		return ""
	}
	return p.systems[len(p.systems)-1]
}

// --- Devices ---

type backend int

const (
	sqliteBackend backend = iota
	redisBackend
)

type deviceOptions struct {
	backend    backend
	remote     sync.Remote
	chat       chat.Provider
	worker     bool
	rateLimit  float64
	rateBurst  int
	quotaBytes int64
}

// device is one running instance of the dashboard.
type device struct {
	name        string
	store       *store.Store
	server      *httptest.Server
	coordinator *worker.SyncCoordinator
	userID      string
}

func openKV(t *testing.T, b backend, quota int64) store.KV {
	t.Helper()
	switch b {
	case redisBackend:
		mr := miniredis.RunT(t)
		kv, err := store.NewRedisKV("redis://"+mr.Addr(), "opsdash:", quota)
		if err != nil {
			t.Fatalf("NewRedisKV failed: %v", err)
		}
		return kv
	default:
		kv, err := store.NewSQLiteKV(filepath.Join(t.TempDir(), "opsdash.db"), quota)
		if err != nil {
			t.Fatalf("NewSQLiteKV failed: %v", err)
		}
		return kv
	}
}

// startDevice wires a store, sync engine, optional worker and router, and
// serves them until the test ends.
func startDevice(t *testing.T, name string, opts deviceOptions) *device {
	t.Helper()

	st := store.New(openKV(t, opts.backend, opts.quotaBytes),
		store.WithClock(func() time.Time { return testNow }))

	d := &device{name: name, store: st, userID: "owner"}

	var (
		syncer     api.Syncer
		syncStatus api.SyncStatus
		notifier   command.Notifier
	)
	if opts.remote != nil {
		engine := sync.NewEngine(st, opts.remote, sync.WithRetry(2, time.Millisecond))
		syncer = engine
		if opts.worker {
			d.coordinator = worker.NewSyncCoordinator(engine, d.userID, time.Hour)
			syncStatus = d.coordinator
			notifier = d.coordinator
		}
	}

	var limiter *api.RateLimiter
	if opts.rateLimit > 0 {
		limiter = api.NewRateLimiter(opts.rateLimit, opts.rateBurst)
	}

	handler := api.NewHandler(st, api.Options{
		Syncer:        syncer,
		SyncStatus:    syncStatus,
		Chat:          opts.chat,
		Notifier:      notifier,
		DefaultUserID: d.userID,
	}, testAPIKey, "e2e")
	d.server = httptest.NewServer(api.NewRouter(handler, limiter))

	var wg gosync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	if d.coordinator != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.coordinator.Run(ctx)
		}()
	}

	t.Cleanup(func() {
		d.server.Close()
		cancel()
		wg.Wait()
		st.Close()
	})
	return d
}

// do sends an authenticated request and returns the status and body.
func (d *device) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, d.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s on %s: %v", method, path, d.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

// mustDo is do with an expected status.
func (d *device) mustDo(t *testing.T, want int, method, path string, body any) []byte {
	t.Helper()
	status, data := d.do(t, method, path, body)
	if status != want {
		t.Fatalf("%s %s on %s: status %d, want %d\n%s", method, path, d.name, status, want, data)
	}
	return data
}

// sync runs a sync through the HTTP surface.
func (d *device) sync(t *testing.T, direction sync.Direction) sync.Report {
	t.Helper()
	data := d.mustDo(t, http.StatusOK, http.MethodPost, "/api/sync?direction="+string(direction), nil)
	return decode[sync.Report](t, data)
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %T: %v\n%s", v, err, data)
	}
	return v
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
