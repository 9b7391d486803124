package e2e

import (
	"net/http"
	"testing"

	"github.com/hyperengineering/opsdash/internal/types"
)

// TestTransfer_ExportImportAcrossBackends moves a SQLite device's data onto
// a Redis device through the export document.
func TestTransfer_ExportImportAcrossBackends(t *testing.T) {
	a := startDevice(t, "source", deviceOptions{})
	b := startDevice(t, "target", deviceOptions{backend: redisBackend})

	a.mustDo(t, http.StatusOK, http.MethodPost, "/api/anchor-metrics/seed", nil)
	a.mustDo(t, http.StatusOK, http.MethodPut, "/api/daily-checks", redCheck("exportado"))

	exported := a.mustDo(t, http.StatusOK, http.MethodGet, "/api/export", nil)
	doc := decode[types.ExportDocument](t, exported)
	if len(doc.DailyChecks) != 1 || len(doc.AnchorMetrics) == 0 {
		t.Fatalf("unexpected export: %d checks, %d metrics", len(doc.DailyChecks), len(doc.AnchorMetrics))
	}

	b.mustDo(t, http.StatusOK, http.MethodPost, "/api/import", string(exported))

	check := decode[types.DailyCheck](t, b.mustDo(t, http.StatusOK, http.MethodGet, "/api/daily-checks?date=2026-10-14", nil))
	if check.BottleneckDescription != "exportado" {
		t.Errorf("imported bottleneck = %q", check.BottleneckDescription)
	}
	if got := b.store.GetAnchorMetrics(t.Context()); len(got) != len(doc.AnchorMetrics) {
		t.Errorf("imported %d metrics, want %d", len(got), len(doc.AnchorMetrics))
	}
}

func TestTransfer_InvalidImportLeavesStoreUntouched(t *testing.T) {
	a := startDevice(t, "target", deviceOptions{})
	a.mustDo(t, http.StatusOK, http.MethodPut, "/api/daily-checks", redCheck("original"))

	status, _ := a.do(t, http.MethodPost, "/api/import", `{"dailyChecks": "not a list"}`)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}

	check := decode[types.DailyCheck](t, a.mustDo(t, http.StatusOK, http.MethodGet, "/api/daily-checks?date=2026-10-14", nil))
	if check.BottleneckDescription != "original" {
		t.Errorf("bottleneck = %q, want original", check.BottleneckDescription)
	}
}
