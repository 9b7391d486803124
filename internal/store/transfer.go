package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/opsdash/internal/types"
)

// Export document keys, matching the JSON tags of types.ExportDocument.
var exportKeys = map[string]string{
	"dailyChecks":   KeyDailyChecks,
	"weeklyPlans":   KeyWeeklyPlans,
	"impactLogs":    KeyImpactLogs,
	"anchorMetrics": KeyAnchorMetrics,
	"metricEntries": KeyMetricEntries,
}

// Export snapshots the five primary collections.
func (s *Store) Export(ctx context.Context) types.ExportDocument {
	return types.ExportDocument{
		DailyChecks:   s.GetDailyChecks(ctx),
		WeeklyPlans:   s.GetWeeklyPlans(ctx),
		ImpactLogs:    s.GetImpactLogs(ctx),
		AnchorMetrics: s.GetAnchorMetrics(ctx),
		MetricEntries: s.GetMetricEntries(ctx),
		ExportedAt:    s.now().UTC(),
	}
}

// ExportData renders Export as indented JSON.
func (s *Store) ExportData(ctx context.Context) ([]byte, error) {
	data, err := json.MarshalIndent(s.Export(ctx), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}

// ImportData overwrites each collection present in the JSON document.
// Missing or null keys leave the local collection untouched. The whole
// document is decoded before anything is written, so a malformed collection
// rejects the import without partial writes. Never panics or returns errors;
// the result reports success.
func (s *Store) ImportData(ctx context.Context, data []byte) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Error("import rejected: invalid JSON",
			"component", "store",
			"action", "import",
			"error", err,
		)
		return false
	}

	type pending struct {
		key   string
		value any
	}
	var writes []pending

	for field, key := range exportKeys {
		raw, ok := doc[field]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		value, err := decodeCollection(key, raw)
		if err != nil {
			slog.Error("import rejected: invalid collection",
				"component", "store",
				"action", "import",
				"collection", field,
				"error", err,
			)
			return false
		}
		writes = append(writes, pending{key: key, value: value})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		s.write(ctx, w.key, w.value)
	}

	slog.Info("import completed",
		"component", "store",
		"action", "import",
		"collections", len(writes),
	)
	return true
}

func decodeCollection(key string, raw json.RawMessage) (any, error) {
	switch key {
	case KeyDailyChecks:
		return decodeSlice[types.DailyCheck](raw)
	case KeyWeeklyPlans:
		return decodeSlice[types.WeeklyPlan](raw)
	case KeyImpactLogs:
		return decodeSlice[types.ImpactLog](raw)
	case KeyAnchorMetrics:
		return decodeSlice[types.AnchorMetric](raw)
	case KeyMetricEntries:
		return decodeSlice[types.MetricEntry](raw)
	default:
		return nil, fmt.Errorf("unknown collection %q", key)
	}
}

func decodeSlice[T any](raw json.RawMessage) ([]T, error) {
	items := []T{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
