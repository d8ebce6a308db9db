// internal/trends/aggregator_test.go
package trends

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
)

// memScanStore serves canned scan records.
type memScanStore struct {
	records []schemas.ScanRecord
}

func (m *memScanStore) SaveScan(context.Context, *schemas.ScanPayload, []schemas.ComplianceCategoryMapping) error {
	return nil
}

func (m *memScanStore) ListScansCompletedBetween(_ context.Context, _ string, from, to time.Time) ([]schemas.ScanRecord, error) {
	var out []schemas.ScanRecord
	for _, r := range m.records {
		if !r.Metadata.FinishedAt.Before(from) && !r.Metadata.FinishedAt.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// memTrendStore is an in-memory TrendStore.
type memTrendStore struct {
	mu   sync.Mutex
	rows map[string]schemas.DailyTrend
}

func newMemTrendStore() *memTrendStore {
	return &memTrendStore{rows: make(map[string]schemas.DailyTrend)}
}

func (m *memTrendStore) UpsertDailyTrend(_ context.Context, trend *schemas.DailyTrend) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[trend.Repository+"|"+trend.Date.Format("2006-01-02")] = *trend
	return nil
}

func (m *memTrendStore) ListTrendsBetween(_ context.Context, repository string, from, to time.Time) ([]schemas.DailyTrend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schemas.DailyTrend
	for _, row := range m.rows {
		if row.Repository == repository && !row.Date.Before(from) && !row.Date.After(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func record(repo string, finished time.Time, total, critical, high int) schemas.ScanRecord {
	return schemas.ScanRecord{
		Metadata: schemas.ScanMetadata{
			Repository: repo,
			FinishedAt: finished,
			Status:     schemas.ScanStatusCompleted,
		},
		Summary: schemas.ScanSummary{
			Total: total,
			BySeverity: map[schemas.Severity]int{
				schemas.SeverityCritical: critical,
				schemas.SeverityHigh:     high,
			},
		},
	}
}

func TestAggregateDaily(t *testing.T) {
	day := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("averages totals and sums severities", func(t *testing.T) {
		scans := &memScanStore{records: []schemas.ScanRecord{
			record("acme/shop", day.Add(2*time.Hour), 10, 1, 3),
			record("acme/shop", day.Add(14*time.Hour), 20, 2, 5),
		}}
		trendStore := newMemTrendStore()
		agg, err := NewAggregator(scans, trendStore, zap.NewNop())
		require.NoError(t, err)

		row, err := agg.AggregateDaily(ctx, "acme/shop", day)
		require.NoError(t, err)

		assert.Equal(t, 15, row.TotalFindings, "total is the average across scans")
		assert.Equal(t, 3, row.CriticalCount, "severity counts are sums")
		assert.Equal(t, 8, row.HighCount)
		assert.Equal(t, 2, row.ScanCount)

		stored, err := trendStore.ListTrendsBetween(ctx, "acme/shop", day, day)
		require.NoError(t, err)
		require.Len(t, stored, 1, "the row is persisted")
	})

	t.Run("day without scans produces a zero row", func(t *testing.T) {
		trendStore := newMemTrendStore()
		agg, err := NewAggregator(&memScanStore{}, trendStore, zap.NewNop())
		require.NoError(t, err)

		row, err := agg.AggregateDaily(ctx, "acme/shop", day)
		require.NoError(t, err)
		assert.Zero(t, row.TotalFindings)
		assert.Zero(t, row.ScanCount)

		stored, err := trendStore.ListTrendsBetween(ctx, "acme/shop", day, day)
		require.NoError(t, err)
		assert.Len(t, stored, 1, "gap days still get a persisted row")
	})

	t.Run("average rounds half up", func(t *testing.T) {
		scans := &memScanStore{records: []schemas.ScanRecord{
			record("acme/shop", day.Add(time.Hour), 1, 0, 0),
			record("acme/shop", day.Add(2*time.Hour), 2, 0, 0),
		}}
		agg, err := NewAggregator(scans, newMemTrendStore(), zap.NewNop())
		require.NoError(t, err)

		row, err := agg.AggregateDaily(ctx, "acme/shop", day)
		require.NoError(t, err)
		assert.Equal(t, 2, row.TotalFindings, "1.5 rounds to 2")
	})

	t.Run("re-aggregation overwrites the earlier row", func(t *testing.T) {
		scans := &memScanStore{records: []schemas.ScanRecord{
			record("acme/shop", day.Add(time.Hour), 10, 0, 0),
		}}
		trendStore := newMemTrendStore()
		agg, err := NewAggregator(scans, trendStore, zap.NewNop())
		require.NoError(t, err)

		_, err = agg.AggregateDaily(ctx, "acme/shop", day)
		require.NoError(t, err)

		scans.records = append(scans.records, record("acme/shop", day.Add(3*time.Hour), 30, 0, 0))
		row, err := agg.AggregateDaily(ctx, "acme/shop", day)
		require.NoError(t, err)
		assert.Equal(t, 20, row.TotalFindings)

		stored, err := trendStore.ListTrendsBetween(ctx, "acme/shop", day, day)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, 20, stored[0].TotalFindings)
	})
}

func TestComparePeriods(t *testing.T) {
	ctx := context.Background()
	p1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	p2 := time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC)

	seed := func(store *memTrendStore, start time.Time, totals []int, criticals []int) {
		for i := range totals {
			_ = store.UpsertDailyTrend(ctx, &schemas.DailyTrend{
				Repository:    "acme/shop",
				Date:          start.AddDate(0, 0, i),
				TotalFindings: totals[i],
				CriticalCount: criticals[i],
				ScanCount:     1,
			})
		}
	}

	t.Run("reports percentage change per bucket", func(t *testing.T) {
		trendStore := newMemTrendStore()
		seed(trendStore, p1, []int{10, 10}, []int{2, 2})
		seed(trendStore, p2, []int{15, 15}, []int{1, 1})

		agg, err := NewAggregator(&memScanStore{}, trendStore, zap.NewNop())
		require.NoError(t, err)

		cmp, err := agg.ComparePeriods(ctx, "acme/shop",
			p1, p1.AddDate(0, 0, 1), p2, p2.AddDate(0, 0, 1))
		require.NoError(t, err)

		assert.InDelta(t, 50.0, cmp.Total.ChangePct, 0.001)
		assert.InDelta(t, -50.0, cmp.Critical.ChangePct, 0.001)
	})

	t.Run("regression from a clean baseline reports +100", func(t *testing.T) {
		trendStore := newMemTrendStore()
		seed(trendStore, p1, []int{0}, []int{0})
		seed(trendStore, p2, []int{5}, []int{0})

		agg, err := NewAggregator(&memScanStore{}, trendStore, zap.NewNop())
		require.NoError(t, err)

		cmp, err := agg.ComparePeriods(ctx, "acme/shop", p1, p1, p2, p2)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, cmp.Total.ChangePct, 0.001)
	})

	t.Run("two clean periods report zero change", func(t *testing.T) {
		trendStore := newMemTrendStore()
		seed(trendStore, p1, []int{0}, []int{0})
		seed(trendStore, p2, []int{0}, []int{0})

		agg, err := NewAggregator(&memScanStore{}, trendStore, zap.NewNop())
		require.NoError(t, err)

		cmp, err := agg.ComparePeriods(ctx, "acme/shop", p1, p1, p2, p2)
		require.NoError(t, err)
		assert.Zero(t, cmp.Total.ChangePct)
	})
}
