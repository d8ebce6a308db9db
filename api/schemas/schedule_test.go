package schemas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestScheduleTypeValid(t *testing.T) {
	for _, typ := range []ScheduleType{ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleManual} {
		assert.True(t, typ.Valid(), "%s", typ)
	}
	assert.False(t, ScheduleType("hourly").Valid())
	assert.False(t, ScheduleType("").Valid())
}

func TestScheduleConfigEffectiveDefaults(t *testing.T) {
	var c ScheduleConfig
	assert.Equal(t, 2, c.EffectiveHour())
	assert.Equal(t, 0, c.EffectiveMinute())
	assert.Equal(t, 1, c.EffectiveDayOfWeek(), "weekly schedules default to Monday")
	assert.Equal(t, 1, c.EffectiveDayOfMonth())

	// Explicit zero values must not fall through to the defaults.
	c = ScheduleConfig{Hour: intp(0), DayOfWeek: intp(0)}
	assert.Equal(t, 0, c.EffectiveHour())
	assert.Equal(t, 0, c.EffectiveDayOfWeek(), "Sunday is distinguishable from unset")
}

func TestScheduleConfigValidate(t *testing.T) {
	assert.NoError(t, ScheduleConfig{}.Validate(), "an empty config is valid")
	assert.NoError(t, ScheduleConfig{
		Hour: intp(23), Minute: intp(59), DayOfWeek: intp(6), DayOfMonth: intp(31),
	}.Validate())

	cases := []struct {
		name string
		cfg  ScheduleConfig
		want string
	}{
		{"hour too large", ScheduleConfig{Hour: intp(24)}, "hour"},
		{"negative hour", ScheduleConfig{Hour: intp(-1)}, "hour"},
		{"minute too large", ScheduleConfig{Minute: intp(60)}, "minute"},
		{"weekday too large", ScheduleConfig{DayOfWeek: intp(7)}, "day_of_week"},
		{"day of month zero", ScheduleConfig{DayOfMonth: intp(0)}, "day_of_month"},
		{"day of month too large", ScheduleConfig{DayOfMonth: intp(32)}, "day_of_month"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestScheduleDefinitionLocation(t *testing.T) {
	loc, err := ScheduleDefinition{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = ScheduleDefinition{Timezone: "America/New_York"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	_, err = ScheduleDefinition{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
