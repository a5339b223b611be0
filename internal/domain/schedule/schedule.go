// internal/domain/schedule/schedule.go
package schedule

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a configured forecast broadcast.
// Corresponds to the 'forecast_schedules' table.
type Schedule struct {
	ID          int64
	Enabled     bool
	TimeOfDay   TimeOfDay // UTC
	Countries   []string
	Topics      []string
	Language    string
	TimeHorizon string // 24h, 3d, 7d
	Depth       string // fast, standard, extended
	Title       sql.NullString
	CreatedAt   time.Time
}

// DisplayTitle returns the title or a generated fallback.
func (s *Schedule) DisplayTitle() string {
	if s.Title.Valid && s.Title.String != "" {
		return s.Title.String
	}
	return fmt.Sprintf("Schedule %d", s.ID)
}

// TimeOfDay is a UTC wall clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a 24h "HH:MM" value.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", value)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant of t on the UTC calendar day of date.
func (t TimeOfDay) On(date time.Time) time.Time {
	d := date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
}

// Matches reports whether now falls in the minute of t.
func (t TimeOfDay) Matches(now time.Time) bool {
	n := now.UTC()
	return n.Hour() == t.Hour && n.Minute() == t.Minute
}

// RunDate truncates an instant to its UTC calendar date.
func RunDate(now time.Time) time.Time {
	n := now.UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// Due returns the enabled schedules whose time of day matches now.
func Due(now time.Time, schedules []*Schedule) []*Schedule {
	due := make([]*Schedule, 0)
	for _, s := range schedules {
		if s == nil || !s.Enabled {
			continue
		}
		if s.TimeOfDay.Matches(now) {
			due = append(due, s)
		}
	}
	return due
}

// Validate checks the schedule invariants and returns the normalized
// country list.
func (s *Schedule) Validate() ([]string, error) {
	if len(s.Topics) == 0 {
		return nil, fmt.Errorf("schedule %d has no topics", s.ID)
	}
	if len(s.Countries) == 0 {
		return nil, fmt.Errorf("schedule %d has no countries", s.ID)
	}
	if !ValidLanguage(s.Language) {
		return nil, fmt.Errorf("invalid language: %s", s.Language)
	}
	if s.TimeHorizon != "" && !ValidTimeHorizon(s.TimeHorizon) {
		return nil, fmt.Errorf("invalid time horizon: %s", s.TimeHorizon)
	}
	if s.Depth != "" && !ValidDepth(s.Depth) {
		return nil, fmt.Errorf("invalid depth: %s", s.Depth)
	}

	countries := make([]string, 0, len(s.Countries))
	for _, c := range s.Countries {
		norm, ok := NormalizeCountry(c)
		if !ok {
			return nil, fmt.Errorf("invalid country code: %s", c)
		}
		countries = append(countries, norm)
	}
	return countries, nil
}
