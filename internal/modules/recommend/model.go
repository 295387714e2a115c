// README: Recommendation result types and scoring.
package recommend

import (
	"math"
	"time"

	"voltmate/internal/modules/engineer"
	"voltmate/internal/modules/servicearea"
)

// Recommendation pairs an engineer with the computed basis for ranking.
// Ephemeral: built per request, never persisted.
type Recommendation struct {
	Engineer      *engineer.Engineer
	DistanceMiles float64
	TravelMinutes int
	AvailableDate time.Time
	JobsOnDate    int
	Score         float64
	AreaMatch     servicearea.Match
	Reasons       []string
}

type Options struct {
	Postcode  string     // overrides the job's own location chain
	StartDate *time.Time // overrides the minimum booking horizon
	Limit     int        // featured count, 0 falls back to settings
}

// Diagnostics carries per-engineer exclusion reasons for operator
// troubleshooting; it never influences ranking.
type Diagnostics struct {
	TotalEngineers int
	Location       string
	Excluded       map[string][]string
}

type Result struct {
	Featured    []*Recommendation
	All         []*Recommendation
	Diagnostics Diagnostics
}

// score starts at 100, penalizes distance (2/mile, cap 50) and travel time
// (0.5/minute, cap 30), rewards earlier dates (up to 20, linear falloff) and a
// completely free day (+8), clamped to [0, 100].
func score(distanceMiles float64, travelMinutes, daysOut, jobsOnDate int) float64 {
	s := 100.0
	s -= math.Min(2*distanceMiles, 50)
	s -= math.Min(0.5*float64(travelMinutes), 30)
	if bonus := 20 - float64(daysOut); bonus > 0 {
		s += bonus
	}
	if jobsOnDate == 0 {
		s += 8
	}
	return math.Min(100, math.Max(0, s))
}
