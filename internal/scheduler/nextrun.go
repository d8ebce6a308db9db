// internal/scheduler/nextrun.go
package scheduler

import (
	"fmt"
	"time"

	"github.com/halcyonsec/scangate/api/schemas"
)

// NextRun computes the next execution instant for a schedule, relative to
// now. Manual schedules never have a next run and always yield nil.
//
// The computation works in the schedule's own timezone, so "daily at 02:00"
// means 02:00 wall-clock in that zone across DST transitions.
func NextRun(def schemas.ScheduleDefinition, now time.Time) (*time.Time, error) {
	if def.Type == schemas.ScheduleManual {
		return nil, nil
	}

	loc, err := def.Location()
	if err != nil {
		return nil, fmt.Errorf("schedule %s has invalid timezone %q: %w", def.ID, def.Timezone, err)
	}
	local := now.In(loc)

	hour := def.Config.EffectiveHour()
	minute := def.Config.EffectiveMinute()

	var next time.Time
	switch def.Type {
	case schemas.ScheduleDaily:
		next = time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !next.After(local) {
			next = next.AddDate(0, 0, 1)
		}

	case schemas.ScheduleWeekly:
		target := def.Config.EffectiveDayOfWeek()
		delta := (target - int(local.Weekday()) + 7) % 7
		next = time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc).AddDate(0, 0, delta)
		// Same weekday but the time of day has already passed: next week.
		if delta == 0 && !next.After(local) {
			next = next.AddDate(0, 0, 7)
		}

	case schemas.ScheduleMonthly:
		day := def.Config.EffectiveDayOfMonth()
		next = time.Date(local.Year(), local.Month(), day, hour, minute, 0, 0, loc)
		if !next.After(local) {
			next = time.Date(local.Year(), local.Month()+1, day, hour, minute, 0, 0, loc)
		}

	default:
		return nil, fmt.Errorf("unknown schedule type %q", def.Type)
	}

	return &next, nil
}
