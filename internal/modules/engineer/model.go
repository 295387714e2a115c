// README: Engineer scheduling view: weekly hours, time off, service areas, flags.
package engineer

import (
	"time"

	"voltmate/internal/modules/servicearea"
	"voltmate/internal/types"
)

// DayHours is one weekly-template entry. Start/End are "HH:MM" clock strings.
type DayHours struct {
	Available bool
	Start     string
	End       string
}

type WeeklyHours map[time.Weekday]DayHours

type TimeOff struct {
	Start    time.Time
	End      time.Time
	Approved bool
}

type Engineer struct {
	ID                 types.ID
	Name               string
	Postcode           string // home/starting location
	Hours              WeeklyHours
	TimeOff            []TimeOff
	ServiceAreas       []servicearea.Area
	Subcontractor      bool
	IgnoreWorkingHours bool
	MaxJobsPerDay      int // 0 falls back to the settings cap
	Available          bool
}

// DefaultHours is the Monday–Friday 09:00–17:00 template substituted when an
// engineer has no weekly template configured. Missing configuration never
// silently excludes an engineer.
func DefaultHours() WeeklyHours {
	h := WeeklyHours{}
	for d := time.Monday; d <= time.Friday; d++ {
		h[d] = DayHours{Available: true, Start: "09:00", End: "17:00"}
	}
	return h
}

// HoursOrDefault returns the configured weekly template, or the default one.
func (e *Engineer) HoursOrDefault() WeeklyHours {
	if len(e.Hours) == 0 {
		return DefaultHours()
	}
	return e.Hours
}

// OnTimeOff reports whether date falls inside an approved time-off range.
// Range bounds are inclusive at day granularity. Each value's civil date is
// compared in its own location, so a midnight in a non-UTC zone never shifts
// onto the neighboring day.
func (e *Engineer) OnTimeOff(date time.Time) bool {
	day := civilDate(date)
	for _, t := range e.TimeOff {
		if !t.Approved {
			continue
		}
		start := civilDate(t.Start)
		end := civilDate(t.End)
		if !day.Before(start) && !day.After(end) {
			return true
		}
	}
	return false
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
