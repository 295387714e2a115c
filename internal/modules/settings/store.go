// README: Settings store backed by PostgreSQL (single-row read).
package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Get loads the scheduling settings row. A missing row yields Defaults.
func (s *Store) Get(ctx context.Context) (Settings, error) {
	row := s.db.QueryRow(ctx, `
        SELECT min_advance_hours, max_distance_miles, max_jobs_per_day,
               day_leniency_minutes, allow_weekend_bookings, allow_holiday_bookings,
               search_horizon_days, top_recommendations, strict_service_area_match,
               travel_fallback_ceiling_minutes
        FROM scheduling_settings
        LIMIT 1`,
	)

	var out Settings
	err := row.Scan(
		&out.MinAdvanceHours, &out.MaxDistanceMiles, &out.MaxJobsPerDay,
		&out.DayLeniencyMinutes, &out.AllowWeekendBookings, &out.AllowHolidayBookings,
		&out.SearchHorizonDays, &out.TopRecommendations, &out.StrictServiceAreaMatch,
		&out.TravelFallbackCeilingMinutes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	return out, nil
}
