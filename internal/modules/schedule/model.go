// README: Day-fit value types: candidates, assembled day state, fit results.
package schedule

import (
	"time"

	"voltmate/internal/modules/engineer"
	"voltmate/internal/types"
)

const (
	// DefaultJobDurationMinutes is used when a job has no usable estimate.
	DefaultJobDurationMinutes = 120
	// FallbackTravelMinutes substitutes for a failed travel-time lookup so a
	// provider outage degrades the estimate instead of aborting scheduling.
	FallbackTravelMinutes = 30
	// matrixTravelBaseMinutes is the base of the matrix variant's separate
	// travel budget, scaled by the caller's tolerance multiplier.
	matrixTravelBaseMinutes = 120
)

// Candidate is the lean scheduling view of a job: exactly the fields day-fit
// logic needs. Built by adapters at the storage boundary, never ad hoc.
type Candidate struct {
	ID              types.ID
	Postcode        string
	DurationMinutes int
	StartHint       string // "HH:MM" fixed time preference, optional
	Virtual         bool   // simulated for what-if checks, not persisted
}

// State is one engineer-day ready for fit computation: budget resolved, all
// real jobs, valid holds, and virtual candidates merged and deduplicated.
type State struct {
	Engineer      *engineer.Engineer
	Date          time.Time
	Available     bool
	BudgetMinutes int
	Jobs          []Candidate
}

// DayFitResult reports whether the day's jobs plus travel fit the working-hour
// budget. Reasons are operator diagnostics, not control flow.
type DayFitResult struct {
	CanFit         bool
	TotalMinutes   int
	TravelMinutes  int
	BudgetMinutes  int
	OverageMinutes int
	JobCount       int
	TravelConflict bool
	Reasons        []string
}
