// README: Day-fit calculator: state assembly, budget resolution, fit computation.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voltmate/internal/modules/engineer"
	"voltmate/internal/types"
)

// DaySource supplies the jobs already committed for an engineer-day: scheduled
// jobs (not completed) plus valid soft holds, as ready-made candidates.
type DaySource interface {
	DayCandidates(ctx context.Context, engineerID types.ID, date time.Time) ([]Candidate, error)
}

type Service struct {
	travel TravelEstimator
	jobs   DaySource
	log    zerolog.Logger
}

func NewService(travel TravelEstimator, jobs DaySource, log zerolog.Logger) *Service {
	return &Service{travel: travel, jobs: jobs, log: log}
}

// CalculateDayFit answers whether candidate (plus everything already on the
// engineer's date, plus any virtual jobs) fits the working-hours budget.
func (s *Service) CalculateDayFit(ctx context.Context, eng *engineer.Engineer, date time.Time,
	candidate *Candidate, leniencyMinutes int, virtual []Candidate) (*DayFitResult, error) {

	st, err := s.AssembleState(ctx, eng, date, leniencyMinutes, candidate, virtual)
	if err != nil {
		return nil, err
	}
	return s.ComputeDayFit(ctx, st), nil
}

// AssembleState resolves the date's budget and merges committed, candidate,
// and virtual jobs into one deduplicated set. Kept separate from ComputeDayFit
// so simulations can assemble state once and fit it many ways.
func (s *Service) AssembleState(ctx context.Context, eng *engineer.Engineer, date time.Time,
	leniencyMinutes int, candidate *Candidate, virtual []Candidate) (*State, error) {

	st := &State{Engineer: eng, Date: date}

	day, ok := eng.HoursOrDefault()[date.Weekday()]
	if !ok || !day.Available {
		return st, nil
	}
	st.Available = true

	if eng.Subcontractor && eng.IgnoreWorkingHours {
		st.BudgetMinutes = 24 * 60
	} else {
		start, err := parseClock(day.Start)
		if err != nil {
			return nil, fmt.Errorf("engineer %s %s start: %w", eng.ID, date.Weekday(), err)
		}
		end, err := parseClock(day.End)
		if err != nil {
			return nil, fmt.Errorf("engineer %s %s end: %w", eng.ID, date.Weekday(), err)
		}
		st.BudgetMinutes = end - start + leniencyMinutes
	}

	committed, err := s.jobs.DayCandidates(ctx, eng.ID, date)
	if err != nil {
		return nil, err
	}

	seen := map[types.ID]bool{}
	add := func(c Candidate) {
		if c.ID != "" {
			if seen[c.ID] {
				return
			}
			seen[c.ID] = true
		}
		if c.DurationMinutes <= 0 {
			c.DurationMinutes = DefaultJobDurationMinutes
		}
		st.Jobs = append(st.Jobs, c)
	}
	for _, c := range committed {
		add(c)
	}
	if candidate != nil {
		add(*candidate)
	}
	for _, c := range virtual {
		add(c)
	}
	return st, nil
}

// ComputeDayFit is pure given its travel estimator: no storage reads.
func (s *Service) ComputeDayFit(ctx context.Context, st *State) *DayFitResult {
	res := &DayFitResult{
		BudgetMinutes: st.BudgetMinutes,
		JobCount:      len(st.Jobs),
	}
	if !st.Available {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("not available on %s", strings.ToLower(st.Date.Weekday().String())))
		return res
	}
	if len(st.Jobs) == 0 {
		res.CanFit = true
		res.Reasons = append(res.Reasons, "no jobs scheduled, day is free")
		return res
	}

	planner := &NearestNeighbor{Travel: s.travel}
	res.CanFit = s.fit(ctx, st, planner, res)
	return res
}

// MatrixDayFit evaluates the same schedule against a single batched
// travel-time matrix, and additionally reports a travel-budget conflict when
// total travel exceeds toleranceMult × the 120-minute base. A degraded matrix
// falls back to per-leg lookups (which themselves fall back to the fixed
// estimate).
func (s *Service) MatrixDayFit(ctx context.Context, st *State, toleranceMult float64) *DayFitResult {
	res := &DayFitResult{
		BudgetMinutes: st.BudgetMinutes,
		JobCount:      len(st.Jobs),
	}
	if !st.Available {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("not available on %s", strings.ToLower(st.Date.Weekday().String())))
		return res
	}
	if len(st.Jobs) == 0 {
		res.CanFit = true
		res.Reasons = append(res.Reasons, "no jobs scheduled, day is free")
		return res
	}

	locations := make([]string, 0, len(st.Jobs)+1)
	locations = append(locations, st.Engineer.Postcode)
	for _, j := range st.Jobs {
		locations = append(locations, j.Postcode)
	}

	var planner RoutePlanner
	if matrix, err := s.travel.TravelMatrix(ctx, locations); err != nil {
		s.log.Warn().Err(err).Str("engineer", string(st.Engineer.ID)).
			Msg("travel matrix unavailable, using per-leg estimates")
		planner = &NearestNeighbor{Travel: s.travel}
	} else {
		planner = &MatrixPlanner{Matrix: matrix}
	}

	res.CanFit = s.fit(ctx, st, planner, res)

	if toleranceMult <= 0 {
		toleranceMult = 1
	}
	travelBudget := int(toleranceMult * matrixTravelBaseMinutes)
	if res.TravelMinutes > travelBudget {
		res.TravelConflict = true
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("total travel %dm exceeds travel budget %dm", res.TravelMinutes, travelBudget))
	}
	return res
}

func (s *Service) fit(ctx context.Context, st *State, planner RoutePlanner, res *DayFitResult) bool {
	est := planner.Plan(ctx, st.Engineer.Postcode, st.Jobs)
	work := 0
	for _, j := range st.Jobs {
		work += j.DurationMinutes
	}
	res.TravelMinutes = est.TravelMinutes
	res.TotalMinutes = work + est.TravelMinutes
	if res.TotalMinutes > res.BudgetMinutes {
		res.OverageMinutes = res.TotalMinutes - res.BudgetMinutes
	}
	if est.FallbackLegs > 0 {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("%d travel leg(s) estimated at %dm after lookup failure", est.FallbackLegs, FallbackTravelMinutes))
	}
	if res.OverageMinutes > 0 {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("%d job(s) + travel need %dm, over the %dm budget by %dm",
				res.JobCount, res.TotalMinutes, res.BudgetMinutes, res.OverageMinutes))
		return false
	}
	res.Reasons = append(res.Reasons,
		fmt.Sprintf("%d job(s) + travel fit in %dm of the %dm budget",
			res.JobCount, res.TotalMinutes, res.BudgetMinutes))
	return true
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(v string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("malformed time %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed time %q", v)
	}
	return h*60 + m, nil
}
