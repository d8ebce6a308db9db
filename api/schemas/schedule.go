// api/schemas/schedule.go
package schemas

import (
	"fmt"
	"time"
)

// -- Schedule Schemas --

// ScheduleType is the cadence of a recurring scan schedule.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
	// ScheduleManual schedules are never auto-triggered and never have a
	// computed next run.
	ScheduleManual ScheduleType = "manual"
)

// Valid reports whether the schedule type is one of the known cadences.
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleManual:
		return true
	}
	return false
}

// ScheduleConfig holds the time-of-day and day selectors for a schedule.
// All selectors are pointers so that "not set" is distinguishable from the
// zero value (midnight, Sunday); unset selectors fall back to documented
// defaults via the Effective* accessors.
type ScheduleConfig struct {
	Hour   *int `json:"hour,omitempty" mapstructure:"hour"`     // 0-23, default 2.
	Minute *int `json:"minute,omitempty" mapstructure:"minute"` // 0-59, default 0.

	// DayOfWeek selects the weekday for weekly schedules. 0=Sunday through
	// 6=Saturday; defaults to Monday when nil.
	DayOfWeek *int `json:"day_of_week,omitempty" mapstructure:"day_of_week"`

	// DayOfMonth selects the day for monthly schedules, 1-31; defaults to 1
	// when nil.
	DayOfMonth *int `json:"day_of_month,omitempty" mapstructure:"day_of_month"`
}

// Schedule selector defaults: runs land at 02:00 on Monday / the 1st unless
// the operator says otherwise.
const (
	DefaultScheduleHour       = 2
	DefaultScheduleMinute     = 0
	DefaultScheduleDayOfWeek  = 1 // Monday.
	DefaultScheduleDayOfMonth = 1
)

// EffectiveHour returns the configured hour or its default.
func (c ScheduleConfig) EffectiveHour() int {
	if c.Hour != nil {
		return *c.Hour
	}
	return DefaultScheduleHour
}

// EffectiveMinute returns the configured minute or its default.
func (c ScheduleConfig) EffectiveMinute() int {
	if c.Minute != nil {
		return *c.Minute
	}
	return DefaultScheduleMinute
}

// EffectiveDayOfWeek returns the configured weekday or its default (Monday).
func (c ScheduleConfig) EffectiveDayOfWeek() int {
	if c.DayOfWeek != nil {
		return *c.DayOfWeek
	}
	return DefaultScheduleDayOfWeek
}

// EffectiveDayOfMonth returns the configured day of month or its default (1).
func (c ScheduleConfig) EffectiveDayOfMonth() int {
	if c.DayOfMonth != nil {
		return *c.DayOfMonth
	}
	return DefaultScheduleDayOfMonth
}

// Validate checks the selector ranges. It does not apply defaults; callers see
// the config exactly as the operator supplied it.
func (c ScheduleConfig) Validate() error {
	if c.Hour != nil && (*c.Hour < 0 || *c.Hour > 23) {
		return fmt.Errorf("hour must be in [0,23], got %d", *c.Hour)
	}
	if c.Minute != nil && (*c.Minute < 0 || *c.Minute > 59) {
		return fmt.Errorf("minute must be in [0,59], got %d", *c.Minute)
	}
	if c.DayOfWeek != nil && (*c.DayOfWeek < 0 || *c.DayOfWeek > 6) {
		return fmt.Errorf("day_of_week must be in [0,6], got %d", *c.DayOfWeek)
	}
	if c.DayOfMonth != nil && (*c.DayOfMonth < 1 || *c.DayOfMonth > 31) {
		return fmt.Errorf("day_of_month must be in [1,31], got %d", *c.DayOfMonth)
	}
	return nil
}

// ScheduleDefinition describes one recurring scan. NextRunAt is recomputed
// after every execution and after every configuration change; it is always nil
// for manual schedules.
type ScheduleDefinition struct {
	ID            string         `json:"id"`
	RepositoryRef string         `json:"repository_ref"`
	Type          ScheduleType   `json:"schedule_type"`
	Config        ScheduleConfig `json:"config"`
	Timezone      string         `json:"timezone"` // IANA name, e.g. "Europe/Berlin". Empty means UTC.
	Enabled       bool           `json:"is_enabled"`

	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location resolves the schedule's timezone, falling back to UTC for an empty
// name. An unknown name is a validation-time error, so execution-time callers
// treat failure as a bug.
func (d ScheduleDefinition) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(d.Timezone)
}
