package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyCustom:
		return f, nil
	}
	return "", Validationf("invalid frequency_type %q, must be one of: daily, weekly, custom", s)
}

const (
	DefaultCustomIntervalHours = 24
	MinArticlesPerRun          = 1
	MaxArticlesPerRun          = 10
)

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS"; seconds are dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, Validationf("invalid time_of_day %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, Validationf("invalid time_of_day %q: hour must be 0-23", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, Validationf("invalid time_of_day %q: minute must be 0-59", s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return TimeOfDay{}, Validationf("invalid time_of_day %q: second must be 0-59", s)
		}
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// on returns the time of day applied to the calendar date of day, offset by
// addDays, in day's location.
func (t TimeOfDay) on(day time.Time, addDays int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+addDays, t.Hour, t.Minute, 0, 0, day.Location())
}

// Schedule is the per-site recurrence configuration.
type Schedule struct {
	ID     uuid.UUID
	SiteID uuid.UUID

	Enabled             bool
	Frequency           Frequency
	TimeOfDay           TimeOfDay
	DaysOfWeek          []int // 0=Sunday .. 6=Saturday
	CustomIntervalHours *int
	ArticlesPerRun      int

	LastRunAt *time.Time
	NextRunAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultSchedule is what a site gets before anyone configures it: disabled,
// daily at 09:00, weekdays, one article per run.
func DefaultSchedule(siteID uuid.UUID, now time.Time) Schedule {
	return Schedule{
		ID:             uuid.New(),
		SiteID:         siteID,
		Enabled:        false,
		Frequency:      FrequencyDaily,
		TimeOfDay:      TimeOfDay{Hour: 9},
		DaysOfWeek:     []int{1, 2, 3, 4, 5},
		ArticlesPerRun: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ClampArticlesPerRun forces n into [MinArticlesPerRun, MaxArticlesPerRun].
func ClampArticlesPerRun(n int) int {
	if n < MinArticlesPerRun {
		return MinArticlesPerRun
	}
	if n > MaxArticlesPerRun {
		return MaxArticlesPerRun
	}
	return n
}

// Validate checks a schedule before it is saved.
func (s Schedule) Validate() error {
	if _, err := ParseFrequency(string(s.Frequency)); err != nil {
		return err
	}
	for _, d := range s.DaysOfWeek {
		if d < 0 || d > 6 {
			return Validationf("invalid day of week %d, must be 0-6", d)
		}
	}
	if s.Frequency == FrequencyWeekly && len(s.DaysOfWeek) == 0 {
		return Validationf("weekly schedules need at least one day of week")
	}
	if s.CustomIntervalHours != nil && *s.CustomIntervalHours <= 0 {
		return Validationf("custom_interval_hours must be positive")
	}
	return nil
}

// IntervalHours returns the custom interval, falling back to the default for
// a missing or non-positive value.
func (s Schedule) IntervalHours() int {
	if s.CustomIntervalHours == nil || *s.CustomIntervalHours <= 0 {
		return DefaultCustomIntervalHours
	}
	return *s.CustomIntervalHours
}

// NextRun computes the next execution time after now.
//
// allowToday selects between the two modes. Saving settings passes true: a
// slot later today is eligible. Recording a finished run passes false: the
// schedule always advances by a full period (next day for daily, the next
// configured weekday excluding today for weekly).
//
// The result is nil when the schedule is disabled or weekly with no days.
func (s Schedule) NextRun(now time.Time, allowToday bool) *time.Time {
	if !s.Enabled {
		return nil
	}

	var next time.Time
	switch s.Frequency {
	case FrequencyDaily:
		next = s.TimeOfDay.on(now, 0)
		if !allowToday || !next.After(now) {
			next = s.TimeOfDay.on(now, 1)
		}

	case FrequencyWeekly:
		offset, ok := s.weeklyOffset(now, allowToday)
		if !ok {
			return nil
		}
		next = s.TimeOfDay.on(now, offset)

	case FrequencyCustom:
		next = now.Add(time.Duration(s.IntervalHours()) * time.Hour)

	default:
		// Unknown frequencies ignore CustomIntervalHours.
		next = now.Add(DefaultCustomIntervalHours * time.Hour)
	}
	return &next
}

// weeklyOffset returns how many days ahead of now the next configured
// weekday lies.
func (s Schedule) weeklyOffset(now time.Time, allowToday bool) (int, bool) {
	if len(s.DaysOfWeek) == 0 {
		return 0, false
	}
	today := int(now.Weekday())
	if allowToday && s.hasDay(today) && s.TimeOfDay.on(now, 0).After(now) {
		return 0, true
	}
	for i := 1; i <= 7; i++ {
		if s.hasDay((today + i) % 7) {
			return i, true
		}
	}
	return 0, false
}

func (s Schedule) hasDay(d int) bool {
	for _, day := range s.DaysOfWeek {
		if day == d {
			return true
		}
	}
	return false
}

// Reschedule recomputes NextRunAt after a settings change.
func (s *Schedule) Reschedule(now time.Time) {
	s.NextRunAt = s.NextRun(now, true)
	s.UpdatedAt = now
}

// RecordRun marks a run as done at now and advances NextRunAt by a full
// period.
func (s *Schedule) RecordRun(now time.Time) {
	s.LastRunAt = timePtr(now)
	s.NextRunAt = s.NextRun(now, false)
	s.UpdatedAt = now
}
