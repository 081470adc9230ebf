package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tariffmeter2mqtt/internal/core/domain"

	"github.com/reugn/go-quartz/quartz"
)

// MaxCycleOffset bounds the cycle offset to 28 days. The derived
// day-of-month can still reach 29, which short months do not have;
// NextInstant skips those occurrences instead of firing early.
const MaxCycleOffset = 28 * 24 * time.Hour

// Schedule is a recurring reset rule resolved to a cron pattern.
// A nil *Schedule means the meter never auto-resets.
type Schedule struct {
	cycle   string
	pattern string
	trigger *quartz.CronTrigger
	// days is the set of days of month the pattern names, nil for all.
	days map[int]bool
}

// ResolveSchedule converts a named cycle plus offset, or an explicit
// five-field cron pattern, into a Schedule. Exactly one of cycle and
// cronPattern may be set; both empty yields a nil schedule. A malformed
// pattern is a configuration error.
func ResolveSchedule(cycle string, offset time.Duration, cronPattern string, loc *time.Location) (*Schedule, error) {
	if cycle == "" && cronPattern == "" {
		return nil, nil
	}
	if cycle != "" && cronPattern != "" {
		return nil, errors.New("cycle and cron_pattern are mutually exclusive")
	}
	pattern := cronPattern
	if cycle != "" {
		var err error
		pattern, err = cycleToCron(cycle, offset)
		if err != nil {
			return nil, err
		}
	}
	trigger, err := quartz.NewCronTriggerWithLoc(toQuartzCron(pattern), loc)
	if err != nil {
		return nil, fmt.Errorf("invalid cron pattern %q: %w", pattern, err)
	}
	return &Schedule{cycle: cycle, pattern: pattern, trigger: trigger, days: dayOfMonthSet(pattern)}, nil
}

func (s *Schedule) Cycle() string {
	return s.cycle
}

func (s *Schedule) Pattern() string {
	return s.pattern
}

// NextInstant returns the first occurrence strictly after now. The trigger
// rolls a day of month that overflows a short month onto the following day 1;
// such candidates are not named by the pattern and must be skipped, so a
// monthly reset on day 29 waits through February instead of firing early.
func (s *Schedule) NextInstant(now time.Time) (time.Time, error) {
	from := now.UnixNano()
	for i := 0; i < 64; i++ {
		next, err := s.trigger.NextFireTime(from)
		if err != nil {
			return time.Time{}, err
		}
		t := time.Unix(0, next).In(now.Location())
		if s.days == nil || s.days[t.Day()] {
			return t, nil
		}
		from = next
	}
	return time.Time{}, fmt.Errorf("no occurrence of pattern %q found", s.pattern)
}

// cycleToCron derives the five-field cron pattern for a named cycle. The
// offset day component maps to a 1-based day of month, the remainder within
// the day to hour and minute.
func cycleToCron(cycle string, offset time.Duration) (string, error) {
	if offset < 0 || offset > MaxCycleOffset {
		return "", fmt.Errorf("cycle offset %s out of range [0, 28 days]", offset)
	}
	day := int(offset / (24 * time.Hour))
	secs := int((offset % (24 * time.Hour)) / time.Second)
	hour := secs / 3600
	minute := secs % 3600 / 60

	switch cycle {
	case domain.CYCLE_QUARTER_HOURLY:
		return fmt.Sprintf("%d/15 * * * *", minute), nil
	case domain.CYCLE_HOURLY:
		return fmt.Sprintf("%d * * * *", minute), nil
	case domain.CYCLE_DAILY:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case domain.CYCLE_WEEKLY:
		return fmt.Sprintf("%d %d * * %d", minute, hour, day+1), nil
	case domain.CYCLE_MONTHLY:
		return fmt.Sprintf("%d %d %d * *", minute, hour, day+1), nil
	case domain.CYCLE_BIMONTHLY:
		return fmt.Sprintf("%d %d %d */2 *", minute, hour, day+1), nil
	case domain.CYCLE_QUARTERLY:
		return fmt.Sprintf("%d %d %d */3 *", minute, hour, day+1), nil
	case domain.CYCLE_YEARLY:
		return fmt.Sprintf("%d %d %d 1/12 *", minute, hour, day+1), nil
	default:
		return "", fmt.Errorf("unknown cycle %q", cycle)
	}
}

// dayOfMonthSet extracts the days of month a five-field pattern names.
// Returns nil when every day is allowed or the field cannot be enumerated, in
// which case the trigger's own evaluation stands.
func dayOfMonthSet(pattern string) map[int]bool {
	fields := strings.Fields(pattern)
	if len(fields) != 5 {
		return nil
	}
	field := fields[2]
	if field == "*" || field == "?" {
		return nil
	}
	days := map[int]bool{}
	for _, part := range strings.Split(field, ",") {
		base, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n < 1 {
				return nil
			}
			step = n
		}
		lo, hi := 1, 31
		switch {
		case base == "*":
		case strings.Contains(base, "-"):
			loStr, hiStr, _ := strings.Cut(base, "-")
			l, err1 := strconv.Atoi(loStr)
			h, err2 := strconv.Atoi(hiStr)
			if err1 != nil || err2 != nil {
				return nil
			}
			lo, hi = l, h
		default:
			n, err := strconv.Atoi(base)
			if err != nil {
				return nil
			}
			lo = n
			if !hasStep {
				hi = n
			}
		}
		if lo < 1 {
			lo = 1
		}
		if hi > 31 {
			hi = 31
		}
		for d := lo; d <= hi; d += step {
			days[d] = true
		}
	}
	return days
}

// toQuartzCron converts a five-field pattern to the quartz form: a seconds
// field is prepended and the day-of-week numbering moves from a 0-6
// Sunday-start (with 7 as Sunday alias) to the quartz 1-7 Sunday-start.
func toQuartzCron(pattern string) string {
	fields := strings.Fields(pattern)
	if len(fields) != 5 {
		// Leave it to the trigger parser to reject.
		return "0 " + pattern
	}
	return fmt.Sprintf("0 %s %s %s %s %s",
		fields[0], fields[1], fields[2], fields[3], renumberWeekdays(fields[4]))
}

func renumberWeekdays(field string) string {
	if field == "*" {
		return field
	}
	parts := strings.Split(field, ",")
	for i, part := range parts {
		parts[i] = renumberWeekdayPart(part)
	}
	return strings.Join(parts, ",")
}

func renumberWeekdayPart(part string) string {
	if from, step, ok := strings.Cut(part, "/"); ok {
		return renumberWeekdayPart(from) + "/" + step
	}
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		return renumberWeekday(lo) + "-" + renumberWeekday(hi)
	}
	return renumberWeekday(part)
}

func renumberWeekday(token string) string {
	n, err := strconv.Atoi(token)
	if err != nil {
		// Already a symbolic day name.
		return token
	}
	return strconv.Itoa(n%7 + 1)
}
