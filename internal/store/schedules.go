// internal/store/schedules.go
package store

import (
	"errors"
	"fmt"
	"time"

	"context"

	"github.com/jackc/pgx/v5"

	"github.com/halcyonsec/scangate/api/schemas"
)

const scheduleColumns = `id, repository_ref, schedule_type, hour, minute, day_of_week, day_of_month,
       timezone, is_enabled, next_run_at, last_run_at, created_at, updated_at`

// CreateSchedule inserts a new schedule definition.
func (s *Store) CreateSchedule(ctx context.Context, def *schemas.ScheduleDefinition) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO schedules (`+scheduleColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`,
		def.ID, def.RepositoryRef, string(def.Type),
		def.Config.Hour, def.Config.Minute, def.Config.DayOfWeek, def.Config.DayOfMonth,
		def.Timezone, def.Enabled, toUTC(def.NextRunAt), toUTC(def.LastRunAt),
		def.CreatedAt.UTC(), def.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// UpdateSchedule rewrites the full definition for its id.
func (s *Store) UpdateSchedule(ctx context.Context, def *schemas.ScheduleDefinition) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE schedules
        SET repository_ref = $2, schedule_type = $3, hour = $4, minute = $5,
            day_of_week = $6, day_of_month = $7, timezone = $8, is_enabled = $9,
            next_run_at = $10, last_run_at = $11, updated_at = $12
        WHERE id = $1;`,
		def.ID, def.RepositoryRef, string(def.Type),
		def.Config.Hour, def.Config.Minute, def.Config.DayOfWeek, def.Config.DayOfMonth,
		def.Timezone, def.Enabled, toUTC(def.NextRunAt), toUTC(def.LastRunAt),
		def.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schemas.ErrNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule by id.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schemas.ErrNotFound
	}
	return nil
}

// GetSchedule fetches a single schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (*schemas.ScheduleDefinition, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1;`, id)
	def, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schemas.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return def, nil
}

// ListSchedules returns all schedules, newest first.
func (s *Store) ListSchedules(ctx context.Context) ([]schemas.ScheduleDefinition, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY created_at DESC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListDueSchedules returns enabled, non-manual schedules whose next run is at
// or before now. Oldest due first, so the catch-up sweep drains the most
// overdue schedules ahead of the rest.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]schemas.ScheduleDefinition, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+scheduleColumns+`
        FROM schedules
        WHERE is_enabled = TRUE AND schedule_type <> 'manual'
          AND next_run_at IS NOT NULL AND next_run_at <= $1
        ORDER BY next_run_at ASC;`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	return collectSchedules(rows)
}

func collectSchedules(rows pgx.Rows) ([]schemas.ScheduleDefinition, error) {
	defer rows.Close()
	var defs []schemas.ScheduleDefinition
	for rows.Next() {
		def, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		defs = append(defs, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return defs, nil
}

func scanSchedule(row pgx.Row) (*schemas.ScheduleDefinition, error) {
	var (
		def     schemas.ScheduleDefinition
		typeStr string
	)
	err := row.Scan(
		&def.ID, &def.RepositoryRef, &typeStr,
		&def.Config.Hour, &def.Config.Minute, &def.Config.DayOfWeek, &def.Config.DayOfMonth,
		&def.Timezone, &def.Enabled, &def.NextRunAt, &def.LastRunAt,
		&def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	def.Type = schemas.ScheduleType(typeStr)
	return &def, nil
}

func toUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
