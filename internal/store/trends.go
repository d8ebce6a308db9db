package store

import (
	"context"
	"fmt"
	"time"

	"github.com/halcyonsec/scangate/api/schemas"
)

// UpsertDailyTrend writes the aggregated row for one (repository, date),
// replacing any earlier aggregation of the same day.
func (s *Store) UpsertDailyTrend(ctx context.Context, trend *schemas.DailyTrend) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO daily_trends (repository, date, total_findings, critical_count, high_count,
                                  medium_count, low_count, info_count, scan_count)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (repository, date) DO UPDATE
        SET total_findings = EXCLUDED.total_findings,
            critical_count = EXCLUDED.critical_count,
            high_count = EXCLUDED.high_count,
            medium_count = EXCLUDED.medium_count,
            low_count = EXCLUDED.low_count,
            info_count = EXCLUDED.info_count,
            scan_count = EXCLUDED.scan_count;`,
		trend.Repository, trend.Date,
		trend.TotalFindings, trend.CriticalCount, trend.HighCount,
		trend.MediumCount, trend.LowCount, trend.InfoCount, trend.ScanCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily trend: %w", err)
	}
	return nil
}

// ListTrendsBetween returns the trend rows for a repository in [from, to],
// oldest first.
func (s *Store) ListTrendsBetween(ctx context.Context, repository string, from, to time.Time) ([]schemas.DailyTrend, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT repository, date, total_findings, critical_count, high_count,
               medium_count, low_count, info_count, scan_count
        FROM daily_trends
        WHERE repository = $1 AND date >= $2 AND date <= $3
        ORDER BY date ASC;`, repository, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily trends: %w", err)
	}
	defer rows.Close()

	var trends []schemas.DailyTrend
	for rows.Next() {
		var t schemas.DailyTrend
		err := rows.Scan(
			&t.Repository, &t.Date, &t.TotalFindings, &t.CriticalCount, &t.HighCount,
			&t.MediumCount, &t.LowCount, &t.InfoCount, &t.ScanCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return trends, nil
}
