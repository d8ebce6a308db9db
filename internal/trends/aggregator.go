// Package trends rolls completed scans up into daily statistics and compares
// them across periods.
package trends

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
)

// Aggregator computes daily trend rows and period comparisons from persisted
// scan summaries. It runs on its own cadence, independent of the scan
// pipeline.
type Aggregator struct {
	scans  schemas.ScanStore
	trends schemas.TrendStore
	logger *zap.Logger

	// keyLocks serializes aggregation per (repository, date) key. The write
	// is a read-then-upsert; concurrent aggregation of the same key would
	// lose updates.
	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewAggregator builds an Aggregator over the given stores.
func NewAggregator(scans schemas.ScanStore, trends schemas.TrendStore, logger *zap.Logger) (*Aggregator, error) {
	if scans == nil || trends == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize aggregator with nil dependencies")
	}
	return &Aggregator{
		scans:    scans,
		trends:   trends,
		logger:   logger.Named("trends"),
		keyLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (a *Aggregator) lockKey(repository string, date time.Time) *sync.Mutex {
	key := repository + "|" + date.Format("2006-01-02")
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.keyLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	a.keyLocks[key] = l
	return l
}

// AggregateDaily folds all scans completed on the given date into one trend
// row and upserts it. A date with no scans still produces an all-zero row,
// so chart consumers can tell "no findings" from "no data".
//
// TotalFindings is the average total across the day's scans while the
// per-severity counts are sums; the asymmetry is deliberate. A repository
// scanned many times a day would otherwise report an inflated total, but
// severity sums are what the comparison deltas key off.
func (a *Aggregator) AggregateDaily(ctx context.Context, repository string, date time.Time) (*schemas.DailyTrend, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	lock := a.lockKey(repository, day)
	lock.Lock()
	defer lock.Unlock()

	from := day
	to := day.Add(24*time.Hour - time.Second)
	records, err := a.scans.ListScansCompletedBetween(ctx, repository, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans for %s on %s: %w", repository, day.Format("2006-01-02"), err)
	}

	trend := &schemas.DailyTrend{
		Repository: repository,
		Date:       day,
		ScanCount:  len(records),
	}

	if len(records) > 0 {
		totalSum := 0
		for _, rec := range records {
			totalSum += rec.Summary.Total
			trend.CriticalCount += rec.Summary.Count(schemas.SeverityCritical)
			trend.HighCount += rec.Summary.Count(schemas.SeverityHigh)
			trend.MediumCount += rec.Summary.Count(schemas.SeverityMedium)
			trend.LowCount += rec.Summary.Count(schemas.SeverityLow)
			trend.InfoCount += rec.Summary.Count(schemas.SeverityInfo)
		}
		trend.TotalFindings = int(math.Round(float64(totalSum) / float64(len(records))))
	}

	if err := a.trends.UpsertDailyTrend(ctx, trend); err != nil {
		return nil, fmt.Errorf("failed to upsert trend row: %w", err)
	}

	a.logger.Debug("Aggregated daily trend",
		zap.String("repository", repository),
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("scans", trend.ScanCount),
		zap.Int("total_findings", trend.TotalFindings))
	return trend, nil
}

// ListRange returns the stored trend rows for a repository inside [from, to].
func (a *Aggregator) ListRange(ctx context.Context, repository string, from, to time.Time) ([]schemas.DailyTrend, error) {
	rows, err := a.trends.ListTrendsBetween(ctx, repository, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list trends: %w", err)
	}
	return rows, nil
}

// ComparePeriods averages each bucket across the trend rows of two periods
// and reports the percentage change per bucket.
func (a *Aggregator) ComparePeriods(ctx context.Context, repository string, p1Start, p1End, p2Start, p2End time.Time) (*schemas.PeriodComparison, error) {
	p1, err := a.trends.ListTrendsBetween(ctx, repository, p1Start, p1End)
	if err != nil {
		return nil, fmt.Errorf("failed to list period 1 trends: %w", err)
	}
	p2, err := a.trends.ListTrendsBetween(ctx, repository, p2Start, p2End)
	if err != nil {
		return nil, fmt.Errorf("failed to list period 2 trends: %w", err)
	}

	avg1 := averageBuckets(p1)
	avg2 := averageBuckets(p2)

	cmp := &schemas.PeriodComparison{
		Repository:   repository,
		Period1Start: p1Start,
		Period1End:   p1End,
		Period2Start: p2Start,
		Period2End:   p2End,
		Total:        delta(avg1.total, avg2.total),
		Critical:     delta(avg1.critical, avg2.critical),
		High:         delta(avg1.high, avg2.high),
		Medium:       delta(avg1.medium, avg2.medium),
		Low:          delta(avg1.low, avg2.low),
		Info:         delta(avg1.info, avg2.info),
	}
	return cmp, nil
}

type bucketAverages struct {
	total, critical, high, medium, low, info float64
}

func averageBuckets(rows []schemas.DailyTrend) bucketAverages {
	if len(rows) == 0 {
		return bucketAverages{}
	}
	var sums bucketAverages
	for _, row := range rows {
		sums.total += float64(row.TotalFindings)
		sums.critical += float64(row.CriticalCount)
		sums.high += float64(row.HighCount)
		sums.medium += float64(row.MediumCount)
		sums.low += float64(row.LowCount)
		sums.info += float64(row.InfoCount)
	}
	n := float64(len(rows))
	return bucketAverages{
		total:    sums.total / n,
		critical: sums.critical / n,
		high:     sums.high / n,
		medium:   sums.medium / n,
		low:      sums.low / n,
		info:     sums.info / n,
	}
}

// delta computes the percentage change from old to new. A zero baseline
// yields 100 when findings appeared and 0 when both periods are clean, so a
// regression from zero is still signalled without dividing by zero.
func delta(old, new float64) schemas.TrendDelta {
	d := schemas.TrendDelta{Previous: old, Current: new}
	switch {
	case old == 0 && new > 0:
		d.ChangePct = 100
	case old == 0:
		d.ChangePct = 0
	default:
		d.ChangePct = (new - old) / old * 100
	}
	return d
}
