// README: Recommendation engine: filter, forward-date search, score, rank.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	cal "github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/gb"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voltmate/internal/geo"
	"voltmate/internal/modules/engineer"
	"voltmate/internal/modules/job"
	"voltmate/internal/modules/schedule"
	"voltmate/internal/modules/servicearea"
	"voltmate/internal/modules/settings"
	"voltmate/internal/types"
)

// ErrNoLocation means the request itself is unanswerable: no engineer
// evaluation is possible without a resolvable location.
var ErrNoLocation = errors.New("no resolvable location for job")

// extendedHorizonDays is how far the forward search reaches when the
// configured horizon finds nothing. The extension keeps sparse-diary engineers
// in long-lead recommendations instead of dropping them.
const extendedHorizonDays = 365

type EngineerSource interface {
	ListAvailable(ctx context.Context) ([]*engineer.Engineer, error)
}

type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type TravelSource interface {
	TravelTime(ctx context.Context, from, to string) (geo.Leg, error)
}

type DayFitter interface {
	AssembleState(ctx context.Context, eng *engineer.Engineer, date time.Time,
		leniencyMinutes int, candidate *schedule.Candidate, virtual []schedule.Candidate) (*schedule.State, error)
	ComputeDayFit(ctx context.Context, st *schedule.State) *schedule.DayFitResult
}

type BlockedSource interface {
	BlockedDates(ctx context.Context, clientID types.ID, from, to time.Time) (map[string]bool, error)
}

var ukHolidays = func() *cal.BusinessCalendar {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(gb.Holidays...)
	return c
}()

type Service struct {
	engineers EngineerSource
	config    SettingsSource
	travel    TravelSource
	dayfit    DayFitter
	blocked   BlockedSource
	clock     types.Clock
	log       zerolog.Logger
}

func NewService(engineers EngineerSource, config SettingsSource, travel TravelSource,
	dayfit DayFitter, blocked BlockedSource, clock types.Clock, log zerolog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Service{
		engineers: engineers,
		config:    config,
		travel:    travel,
		dayfit:    dayfit,
		blocked:   blocked,
		clock:     clock,
		log:       log,
	}
}

// Recommendations evaluates every generally-available engineer against the
// job and returns a deterministic ranking plus exclusion diagnostics. One
// engineer's failure never aborts the run; a missing location does.
func (s *Service) Recommendations(ctx context.Context, j *job.Job, opts Options) (*Result, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduling settings: %w", err)
	}

	location := geo.NormalizeLocation(opts.Postcode)
	if location == "" {
		location = geo.NormalizeLocation(j.BestPostcode())
	}
	if location == "" {
		return nil, ErrNoLocation
	}

	engineers, err := s.engineers.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load engineers: %w", err)
	}

	result := &Result{
		Diagnostics: Diagnostics{
			TotalEngineers: len(engineers),
			Location:       location,
			Excluded:       map[string][]string{},
		},
	}
	if len(engineers) == 0 {
		result.Diagnostics.Excluded["_run"] = []string{"no generally available engineers in storage"}
		return result, nil
	}

	start := s.searchStart(cfg, opts)
	blocked, err := s.blockedDates(ctx, j.ClientID, start, searchHorizon(cfg))
	if err != nil {
		s.log.Warn().Err(err).Msg("blocked dates unavailable, treating none as blocked")
		blocked = map[string]bool{}
	}

	cand := job.Candidate(j)
	if cand.Postcode == "" {
		cand.Postcode = location
	}

	recs := make([]*Recommendation, len(engineers))
	exclusions := make([]string, len(engineers))
	g, gctx := errgroup.WithContext(ctx)
	for i, eng := range engineers {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					exclusions[i] = fmt.Sprintf("evaluation failed: %v", r)
				}
			}()
			rec, reason := s.evaluate(gctx, eng, cand, location, cfg, start, blocked)
			recs[i] = rec
			exclusions[i] = reason
			return nil
		})
	}
	_ = g.Wait()

	for i, eng := range engineers {
		if recs[i] != nil {
			result.All = append(result.All, recs[i])
		} else if exclusions[i] != "" {
			result.Diagnostics.Excluded[string(eng.ID)] = append(
				result.Diagnostics.Excluded[string(eng.ID)], exclusions[i])
		}
	}

	rank(result.All)

	limit := opts.Limit
	if limit <= 0 {
		limit = cfg.TopRecommendations
	}
	if limit > len(result.All) {
		limit = len(result.All)
	}
	result.Featured = result.All[:limit]
	return result, nil
}

// evaluate runs one engineer through setup, service-area, travel-ceiling, and
// forward-search checks. A non-empty reason means exclusion.
func (s *Service) evaluate(ctx context.Context, eng *engineer.Engineer, cand schedule.Candidate,
	location string, cfg settings.Settings, start time.Time, blocked map[string]bool) (*Recommendation, string) {

	if eng.Postcode == "" {
		return nil, "no starting location configured"
	}

	match := servicearea.MatchAreas(eng.ServiceAreas, location)
	ceiling := cfg.TravelFallbackCeilingMinutes
	if match.CanServe {
		ceiling = match.MaxTravelMinutes
	} else if cfg.StrictServiceAreaMatch {
		return nil, "outside declared service areas (strict matching)"
	}

	var reasons []string
	leg, err := s.travel.TravelTime(ctx, eng.Postcode, location)
	if err != nil {
		leg = geo.Leg{DurationMinutes: schedule.FallbackTravelMinutes}
		reasons = append(reasons,
			fmt.Sprintf("travel lookup failed, estimated at %dm", schedule.FallbackTravelMinutes))
	}
	if leg.DurationMinutes > ceiling {
		return nil, fmt.Sprintf("travel time %dm exceeds %dm ceiling", leg.DurationMinutes, ceiling)
	}
	if leg.DistanceMiles > cfg.MaxDistanceMiles {
		return nil, fmt.Sprintf("distance %.1f miles exceeds %.0f mile maximum",
			leg.DistanceMiles, cfg.MaxDistanceMiles)
	}

	date, jobsOnDate, found, err := s.firstFit(ctx, eng, cand, cfg, start, blocked)
	if err != nil {
		return nil, fmt.Sprintf("availability check failed: %v", err)
	}
	if !found {
		return nil, fmt.Sprintf("no feasible date within %d days", extendedHorizonDays)
	}

	daysOut := int(date.Sub(start).Hours() / 24)
	if match.CanServe {
		reasons = append(reasons, fmt.Sprintf("service area match: %s", match.Type))
	} else {
		reasons = append(reasons, "outside declared areas, included on travel time")
	}
	reasons = append(reasons,
		fmt.Sprintf("%.1f miles, %dm travel", leg.DistanceMiles, leg.DurationMinutes),
		fmt.Sprintf("first fit on %s with %d existing job(s)", date.Format("2006-01-02"), jobsOnDate))

	return &Recommendation{
		Engineer:      eng,
		DistanceMiles: leg.DistanceMiles,
		TravelMinutes: leg.DurationMinutes,
		AvailableDate: date,
		JobsOnDate:    jobsOnDate,
		Score:         score(leg.DistanceMiles, leg.DurationMinutes, daysOut, jobsOnDate),
		AreaMatch:     match,
		Reasons:       reasons,
	}, ""
}

// firstFit walks days in strictly ascending order and stops at the first date
// that passes every hard constraint. One loop covers both the configured
// horizon and the 365-day extension; exhaustion is a normal negative result.
func (s *Service) firstFit(ctx context.Context, eng *engineer.Engineer, cand schedule.Candidate,
	cfg settings.Settings, start time.Time, blocked map[string]bool) (time.Time, int, bool, error) {

	horizon := searchHorizon(cfg)
	dailyCap := eng.MaxJobsPerDay
	if dailyCap <= 0 {
		dailyCap = cfg.MaxJobsPerDay
	}

	for d := 0; d < horizon; d++ {
		date := start.AddDate(0, 0, d)

		if blocked[date.Format("2006-01-02")] {
			continue
		}
		if isWeekend(date) && !cfg.AllowWeekendBookings {
			continue
		}
		if !cfg.AllowHolidayBookings {
			// weekend holidays carry a substitute weekday, so the observed
			// day is just as non-bookable as the actual one
			if actual, observed, _ := ukHolidays.IsHoliday(date); actual || observed {
				continue
			}
		}
		if eng.OnTimeOff(date) {
			continue
		}

		st, err := s.dayfit.AssembleState(ctx, eng, date, cfg.DayLeniencyMinutes, &cand, nil)
		if err != nil {
			return time.Time{}, 0, false, err
		}
		if !st.Available {
			continue
		}
		existing := 0
		for _, c := range st.Jobs {
			if c.ID != cand.ID {
				existing++
			}
		}
		if existing >= dailyCap {
			continue
		}
		if res := s.dayfit.ComputeDayFit(ctx, st); res.CanFit {
			return date, existing, true, nil
		}
	}
	return time.Time{}, 0, false, nil
}

// rank applies the strict lexicographic ordering: earlier date, shorter
// travel, lighter same-day workload, shorter distance, higher score. Stable so
// identical inputs always produce identical output.
func rank(recs []*Recommendation) {
	sort.SliceStable(recs, func(a, b int) bool {
		ra, rb := recs[a], recs[b]
		if !ra.AvailableDate.Equal(rb.AvailableDate) {
			return ra.AvailableDate.Before(rb.AvailableDate)
		}
		if ra.TravelMinutes != rb.TravelMinutes {
			return ra.TravelMinutes < rb.TravelMinutes
		}
		if ra.JobsOnDate != rb.JobsOnDate {
			return ra.JobsOnDate < rb.JobsOnDate
		}
		if ra.DistanceMiles != rb.DistanceMiles {
			return ra.DistanceMiles < rb.DistanceMiles
		}
		return ra.Score > rb.Score
	})
}

func (s *Service) searchStart(cfg settings.Settings, opts Options) time.Time {
	if opts.StartDate != nil {
		return dateOnly(*opts.StartDate)
	}
	min := s.clock.Now().Add(time.Duration(cfg.MinAdvanceHours) * time.Hour)
	return dateOnly(min)
}

// blockedDates loads the client's blocked set over the full search window so
// firstFit never walks a day the window misses.
func (s *Service) blockedDates(ctx context.Context, clientID types.ID, start time.Time, horizonDays int) (map[string]bool, error) {
	if clientID == "" || s.blocked == nil {
		return map[string]bool{}, nil
	}
	return s.blocked.BlockedDates(ctx, clientID, start, start.AddDate(0, 0, horizonDays))
}

// searchHorizon is the forward-search reach: the configured horizon, extended
// to a year so sparse-diary engineers still surface.
func searchHorizon(cfg settings.Settings) int {
	if cfg.SearchHorizonDays > extendedHorizonDays {
		return cfg.SearchHorizonDays
	}
	return extendedHorizonDays
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
