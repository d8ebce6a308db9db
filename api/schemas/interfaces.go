package schemas

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store implementations when the requested entity
// does not exist. Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// ScanRecord is a persisted scan without its findings, as read back for
// trend aggregation and listings.
type ScanRecord struct {
	Metadata ScanMetadata `json:"metadata"`
	Summary  ScanSummary  `json:"summary"`
}

// ScanStore persists completed scans. Implementations insert every scan's
// findings as new rows; fingerprints are stored for traceability but are not
// used as an upsert key.
type ScanStore interface {
	// SaveScan stores the payload and its compliance mappings atomically.
	SaveScan(ctx context.Context, payload *ScanPayload, mappings []ComplianceCategoryMapping) error

	// ListScansCompletedBetween returns the scans for a repository whose
	// completion time falls inside [from, to], ordered by completion time.
	ListScansCompletedBetween(ctx context.Context, repository string, from, to time.Time) ([]ScanRecord, error)
}

// ScheduleStore persists schedule definitions.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, def *ScheduleDefinition) error
	UpdateSchedule(ctx context.Context, def *ScheduleDefinition) error
	DeleteSchedule(ctx context.Context, id string) error
	GetSchedule(ctx context.Context, id string) (*ScheduleDefinition, error)
	ListSchedules(ctx context.Context) ([]ScheduleDefinition, error)

	// ListDueSchedules returns enabled, non-manual schedules whose NextRunAt
	// is at or before now. Used by the catch-up sweep.
	ListDueSchedules(ctx context.Context, now time.Time) ([]ScheduleDefinition, error)
}

// TrendStore persists daily trend rows, one per (repository, date).
type TrendStore interface {
	UpsertDailyTrend(ctx context.Context, trend *DailyTrend) error
	ListTrendsBetween(ctx context.Context, repository string, from, to time.Time) ([]DailyTrend, error)
}

// Notifier receives completion events. Delivery (WebSocket, webhook, ...) is
// outside this module; the default implementation just logs.
type Notifier interface {
	ScanCompleted(ctx context.Context, payload *ScanPayload, decision GateDecision)
	ScanFailed(ctx context.Context, repository, triggeredBy string, err error)
}
