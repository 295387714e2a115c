// README: Greedy nearest-neighbor route approximation (per-leg and matrix-backed).
package schedule

import (
	"context"

	"voltmate/internal/geo"
)

// RoutePlanner estimates total travel for one engineer-day. The greedy
// nearest-neighbor walk is a documented approximation, not an optimizer; it is
// kept behind this interface so an exact solver could replace it without
// touching callers.
type RoutePlanner interface {
	Plan(ctx context.Context, home string, jobs []Candidate) RouteEstimate
}

type RouteEstimate struct {
	TravelMinutes int
	FallbackLegs  int // legs that used the fixed estimate after lookup failure
}

// TravelEstimator is the slice of the geo cache the planner needs.
type TravelEstimator interface {
	TravelTime(ctx context.Context, from, to string) (geo.Leg, error)
	TravelMatrix(ctx context.Context, locations []string) (*geo.Matrix, error)
}

// NearestNeighbor plans yardstick routes with one travel-time lookup per
// considered leg. Lookups hit the cache after the first pass over a pair.
type NearestNeighbor struct {
	Travel TravelEstimator
}

// Plan starts at home, repeatedly visits the unvisited job with the smallest
// travel time from the current location (ties: first found wins), then adds
// the return trip home unless the last stop already is home.
func (p *NearestNeighbor) Plan(ctx context.Context, home string, jobs []Candidate) RouteEstimate {
	return planGreedy(home, jobs, func(from, to string) (int, bool) {
		leg, err := p.Travel.TravelTime(ctx, from, to)
		if err != nil {
			return FallbackTravelMinutes, true
		}
		return leg.DurationMinutes, false
	})
}

// MatrixPlanner walks the same greedy schedule but indexes into a precomputed
// travel-time matrix instead of issuing a lookup per leg.
type MatrixPlanner struct {
	Matrix *geo.Matrix
}

func (p *MatrixPlanner) Plan(_ context.Context, home string, jobs []Candidate) RouteEstimate {
	return planGreedy(home, jobs, func(from, to string) (int, bool) {
		leg, ok := p.Matrix.Leg(from, to)
		if !ok {
			return FallbackTravelMinutes, true
		}
		return leg.DurationMinutes, false
	})
}

func planGreedy(home string, jobs []Candidate, minutes func(from, to string) (int, bool)) RouteEstimate {
	var est RouteEstimate
	if len(jobs) == 0 {
		return est
	}

	leg := func(from, to string) int {
		if geo.NormalizeLocation(from) == geo.NormalizeLocation(to) {
			return 0
		}
		m, fellBack := minutes(from, to)
		if fellBack {
			est.FallbackLegs++
		}
		return m
	}

	visited := make([]bool, len(jobs))
	current := home
	for range jobs {
		best := -1
		bestMinutes := 0
		for i, job := range jobs {
			if visited[i] {
				continue
			}
			m := leg(current, job.Postcode)
			if best == -1 || m < bestMinutes {
				best = i
				bestMinutes = m
			}
		}
		visited[best] = true
		est.TravelMinutes += bestMinutes
		current = jobs[best].Postcode
	}

	if geo.NormalizeLocation(current) != geo.NormalizeLocation(home) {
		est.TravelMinutes += leg(current, home)
	}
	return est
}
