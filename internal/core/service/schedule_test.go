package service

import (
	"testing"
	"time"

	"tariffmeter2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleToCron(t *testing.T) {

	assert := assert.New(t)

	cases := []struct {
		cycle   string
		offset  time.Duration
		pattern string
	}{
		{domain.CYCLE_QUARTER_HOURLY, 0, "0/15 * * * *"},
		{domain.CYCLE_HOURLY, 0, "0 * * * *"},
		{domain.CYCLE_DAILY, 0, "0 0 * * *"},
		{domain.CYCLE_WEEKLY, 0, "0 0 * * 1"},
		{domain.CYCLE_MONTHLY, 0, "0 0 1 * *"},
		{domain.CYCLE_BIMONTHLY, 0, "0 0 1 */2 *"},
		{domain.CYCLE_QUARTERLY, 0, "0 0 1 */3 *"},
		{domain.CYCLE_YEARLY, 0, "0 0 1 1/12 *"},
		// 4 days and 90 minutes into the period
		{domain.CYCLE_MONTHLY, 4*24*time.Hour + 90*time.Minute, "30 1 5 * *"},
		{domain.CYCLE_DAILY, 6*time.Hour + 30*time.Minute, "30 6 * * *"},
		{domain.CYCLE_HOURLY, 12 * time.Minute, "12 * * * *"},
	}
	for _, tc := range cases {
		pattern, err := cycleToCron(tc.cycle, tc.offset)
		assert.NoError(err, tc.cycle)
		assert.Equal(tc.pattern, pattern, tc.cycle)
	}
}

func TestCycleOffsetOutOfRange(t *testing.T) {

	assert := assert.New(t)

	_, err := cycleToCron(domain.CYCLE_MONTHLY, 29*24*time.Hour)
	assert.Error(err)
	_, err = cycleToCron(domain.CYCLE_MONTHLY, -time.Hour)
	assert.Error(err)
}

func TestResolveScheduleValidation(t *testing.T) {

	assert := assert.New(t)

	s, err := ResolveSchedule("", 0, "", time.UTC)
	assert.NoError(err)
	assert.Nil(s, "no cycle and no pattern means no auto reset")

	_, err = ResolveSchedule(domain.CYCLE_DAILY, 0, "0 0 * * *", time.UTC)
	assert.Error(err, "cycle and pattern are mutually exclusive")

	_, err = ResolveSchedule("", 0, "not a cron", time.UTC)
	assert.Error(err)

	_, err = ResolveSchedule("fortnightly", 0, "", time.UTC)
	assert.Error(err)
}

func TestNextInstantMonthlyWithOffset(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	s, err := ResolveSchedule(domain.CYCLE_MONTHLY, 4*24*time.Hour+90*time.Minute, "", time.UTC)
	require.NoError(err)
	assert.Equal("30 1 5 * *", s.Pattern())

	// just after the reset instant, the next one is a month away
	now := time.Date(2026, 3, 5, 1, 30, 1, 0, time.UTC)
	next, err := s.NextInstant(now)
	require.NoError(err)
	assert.Equal(time.Date(2026, 4, 5, 1, 30, 0, 0, time.UTC), next)

	// just before, it is seconds away
	now = time.Date(2026, 3, 5, 1, 29, 59, 0, time.UTC)
	next, err = s.NextInstant(now)
	require.NoError(err)
	assert.Equal(time.Date(2026, 3, 5, 1, 30, 0, 0, time.UTC), next)
}

func TestNextInstantSkipsShortMonths(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	// the maximum offset puts the reset on day 29
	s, err := ResolveSchedule(domain.CYCLE_MONTHLY, 28*24*time.Hour, "", time.UTC)
	require.NoError(err)
	assert.Equal("0 0 29 * *", s.Pattern())

	// 2026 is not a leap year: after January 29 the next day 29 is in March
	next, err := s.NextInstant(time.Date(2026, 1, 29, 0, 0, 1, 0, time.UTC))
	require.NoError(err)
	assert.Equal(time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC), next)

	// same from inside February
	next, err = s.NextInstant(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(err)
	assert.Equal(time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC), next)

	// leap years do have a February 29
	next, err = s.NextInstant(time.Date(2028, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(err)
	assert.Equal(time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), next)

	// explicit patterns on day 31 skip every short month
	s, err = ResolveSchedule("", 0, "0 0 31 * *", time.UTC)
	require.NoError(err)
	next, err = s.NextInstant(time.Date(2026, 1, 31, 0, 0, 1, 0, time.UTC))
	require.NoError(err)
	assert.Equal(time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), next)
}

func TestDayOfMonthSet(t *testing.T) {

	assert := assert.New(t)

	assert.Nil(dayOfMonthSet("0 0 * * *"))
	assert.Equal(map[int]bool{29: true}, dayOfMonthSet("0 0 29 * *"))
	assert.Equal(map[int]bool{1: true, 15: true}, dayOfMonthSet("0 0 1,15 * *"))
	assert.Equal(map[int]bool{10: true, 11: true, 12: true}, dayOfMonthSet("0 0 10-12 * *"))
	assert.Equal(map[int]bool{1: true, 11: true, 21: true, 31: true}, dayOfMonthSet("0 0 1/10 * *"))
}

func TestNextInstantDaily(t *testing.T) {

	require := require.New(t)

	s, err := ResolveSchedule(domain.CYCLE_DAILY, 0, "", time.UTC)
	require.NoError(err)

	now := time.Date(2026, 8, 29, 13, 45, 0, 0, time.UTC)
	next, err := s.NextInstant(now)
	require.NoError(err)
	require.Equal(time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), next)
}

func TestNextInstantExplicitPatternWithWeekday(t *testing.T) {

	require := require.New(t)

	// every Monday at 06:00
	s, err := ResolveSchedule("", 0, "0 6 * * 1", time.UTC)
	require.NoError(err)

	// 2026-08-29 is a Saturday
	now := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	next, err := s.NextInstant(now)
	require.NoError(err)
	require.Equal(time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC), next)
	require.Equal(time.Monday, next.Weekday())
}

func TestRenumberWeekdays(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("*", renumberWeekdays("*"))
	assert.Equal("1", renumberWeekdays("0"), "sunday")
	assert.Equal("2", renumberWeekdays("1"), "monday")
	assert.Equal("1", renumberWeekdays("7"), "sunday alias")
	assert.Equal("2-6", renumberWeekdays("1-5"))
	assert.Equal("2,4,6", renumberWeekdays("1,3,5"))
	assert.Equal("2/2", renumberWeekdays("1/2"))
	assert.Equal("MON", renumberWeekdays("MON"))
}
