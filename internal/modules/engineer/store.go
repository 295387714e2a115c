// README: Engineer store backed by PostgreSQL (nested hours, areas, time off).
package engineer

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voltmate/internal/modules/servicearea"
	"voltmate/internal/types"
)

var ErrNotFound = errors.New("engineer not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ListAvailable returns all engineers flagged generally available, with their
// weekly hours, service areas, and approved time off loaded. Ordered by id so
// downstream ranking is reproducible run to run.
func (s *Store) ListAvailable(ctx context.Context) ([]*Engineer, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, name, postcode, subcontractor, ignore_working_hours,
               COALESCE(max_jobs_per_day, 0), available
        FROM engineers
        WHERE available = TRUE
        ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var engineers []*Engineer
	byID := map[types.ID]*Engineer{}
	for rows.Next() {
		var e Engineer
		if err := rows.Scan(&e.ID, &e.Name, &e.Postcode, &e.Subcontractor,
			&e.IgnoreWorkingHours, &e.MaxJobsPerDay, &e.Available); err != nil {
			return nil, err
		}
		engineers = append(engineers, &e)
		byID[e.ID] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(engineers) == 0 {
		return nil, nil
	}

	if err := s.loadHours(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadServiceAreas(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadTimeOff(ctx, byID); err != nil {
		return nil, err
	}
	return engineers, nil
}

// Get loads a single engineer with nested records.
func (s *Store) Get(ctx context.Context, id types.ID) (*Engineer, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, name, postcode, subcontractor, ignore_working_hours,
               COALESCE(max_jobs_per_day, 0), available
        FROM engineers
        WHERE id = $1`, string(id),
	)
	var e Engineer
	err := row.Scan(&e.ID, &e.Name, &e.Postcode, &e.Subcontractor,
		&e.IgnoreWorkingHours, &e.MaxJobsPerDay, &e.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	byID := map[types.ID]*Engineer{e.ID: &e}
	if err := s.loadHours(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadServiceAreas(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadTimeOff(ctx, byID); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) loadHours(ctx context.Context, byID map[types.ID]*Engineer) error {
	rows, err := s.db.Query(ctx, `
        SELECT engineer_id, day_of_week, available, start_time, end_time
        FROM engineer_hours
        WHERE engineer_id = ANY($1)`, ids(byID),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var engID string
		var dow int
		var h DayHours
		if err := rows.Scan(&engID, &dow, &h.Available, &h.Start, &h.End); err != nil {
			return err
		}
		e := byID[types.ID(engID)]
		if e == nil {
			continue
		}
		if e.Hours == nil {
			e.Hours = WeeklyHours{}
		}
		e.Hours[time.Weekday(dow)] = h
	}
	return rows.Err()
}

func (s *Store) loadServiceAreas(ctx context.Context, byID map[types.ID]*Engineer) error {
	rows, err := s.db.Query(ctx, `
        SELECT engineer_id, area_code, max_travel_minutes
        FROM engineer_service_areas
        WHERE engineer_id = ANY($1)
        ORDER BY engineer_id, position`, ids(byID),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var engID string
		var a servicearea.Area
		if err := rows.Scan(&engID, &a.Code, &a.MaxTravelMinutes); err != nil {
			return err
		}
		if e := byID[types.ID(engID)]; e != nil {
			e.ServiceAreas = append(e.ServiceAreas, a)
		}
	}
	return rows.Err()
}

func (s *Store) loadTimeOff(ctx context.Context, byID map[types.ID]*Engineer) error {
	rows, err := s.db.Query(ctx, `
        SELECT engineer_id, start_date, end_date, approved
        FROM engineer_time_off
        WHERE engineer_id = ANY($1) AND approved = TRUE`, ids(byID),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var engID string
		var t TimeOff
		if err := rows.Scan(&engID, &t.Start, &t.End, &t.Approved); err != nil {
			return err
		}
		if e := byID[types.ID(engID)]; e != nil {
			e.TimeOff = append(e.TimeOff, t)
		}
	}
	return rows.Err()
}

func ids(byID map[types.ID]*Engineer) []string {
	out := make([]string, 0, len(byID))
	for id := range byID {
		out = append(out, string(id))
	}
	return out
}
