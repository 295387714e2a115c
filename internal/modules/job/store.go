// README: Job/offer/blocked-date store backed by PostgreSQL.
package job

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"voltmate/internal/modules/schedule"
	"voltmate/internal/types"
)

type Store struct {
	db    *pgxpool.Pool
	clock types.Clock
}

func NewStore(db *pgxpool.Pool, clock types.Clock) *Store {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Store{db: db, clock: clock}
}

// DayCandidates returns everything occupying the engineer's date as schedule
// candidates: scheduled jobs that are not completed, plus valid soft holds
// (pending and unexpired, or accepted for a job not yet scheduled elsewhere).
func (s *Store) DayCandidates(ctx context.Context, engineerID types.ID, date time.Time) ([]schedule.Candidate, error) {
	jobs, err := s.ListByEngineerAndDate(ctx, engineerID, date)
	if err != nil {
		return nil, err
	}
	offers, err := s.ListHolds(ctx, engineerID, date)
	if err != nil {
		return nil, err
	}

	candidates := make([]schedule.Candidate, 0, len(jobs)+len(offers))
	for _, j := range jobs {
		candidates = append(candidates, Candidate(j))
	}
	for _, o := range offers {
		candidates = append(candidates, offerCandidate(o))
	}
	return candidates, nil
}

// ListByEngineerAndDate loads the engineer's jobs scheduled on date, excluding
// completed and cancelled ones.
func (s *Store) ListByEngineerAndDate(ctx context.Context, engineerID types.ID, date time.Time) ([]*Job, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, COALESCE(postcode, ''), COALESCE(client_postcode, ''),
               COALESCE(client_address, ''), COALESCE(address, ''),
               COALESCE(duration_minutes, 0), COALESCE(preferred_time, ''),
               status, scheduled_date
        FROM jobs
        WHERE engineer_id = $1
          AND scheduled_date = $2::date
          AND status NOT IN ('completed', 'cancelled')
        ORDER BY id`,
		string(engineerID), date.Format("2006-01-02"),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Postcode, &j.ClientPostcode, &j.ClientAddress,
			&j.Address, &j.DurationMinutes, &j.PreferredTime, &j.Status, &j.ScheduledDate); err != nil {
			return nil, err
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// ListHolds loads valid soft holds for the engineer's date: pending offers
// that have not expired, and accepted offers whose job has no confirmed
// schedule elsewhere yet.
func (s *Store) ListHolds(ctx context.Context, engineerID types.ID, date time.Time) ([]*Offer, error) {
	rows, err := s.db.Query(ctx, `
        SELECT o.id, o.job_id, o.engineer_id, o.offer_date, o.status, o.expires_at,
               COALESCE(o.postcode, ''), COALESCE(o.duration_minutes, 0)
        FROM job_offers o
        LEFT JOIN jobs j ON j.id = o.job_id
        WHERE o.engineer_id = $1
          AND o.offer_date = $2::date
          AND (
                (o.status = 'pending' AND o.expires_at > $3)
             OR (o.status = 'accepted' AND (j.scheduled_date IS NULL OR j.scheduled_date = $2::date))
          )
        ORDER BY o.id`,
		string(engineerID), date.Format("2006-01-02"), s.clock.Now(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []*Offer
	for rows.Next() {
		var o Offer
		if err := rows.Scan(&o.ID, &o.JobID, &o.EngineerID, &o.Date, &o.Status,
			&o.ExpiresAt, &o.Postcode, &o.DurationMinutes); err != nil {
			return nil, err
		}
		offers = append(offers, &o)
	}
	return offers, rows.Err()
}

// CountByEngineerAndDate returns the engineer's existing job count for the
// date, for the per-day cap check.
func (s *Store) CountByEngineerAndDate(ctx context.Context, engineerID types.ID, date time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
        SELECT COUNT(*)
        FROM jobs
        WHERE engineer_id = $1
          AND scheduled_date = $2::date
          AND status NOT IN ('completed', 'cancelled')`,
		string(engineerID), date.Format("2006-01-02"),
	).Scan(&n)
	return n, err
}

// BlockedDates returns the client's blocked dates within [from, to] as a set
// keyed by "2006-01-02".
func (s *Store) BlockedDates(ctx context.Context, clientID types.ID, from, to time.Time) (map[string]bool, error) {
	rows, err := s.db.Query(ctx, `
        SELECT blocked_date
        FROM client_blocked_dates
        WHERE client_id = $1 AND blocked_date BETWEEN $2::date AND $3::date`,
		string(clientID), from.Format("2006-01-02"), to.Format("2006-01-02"),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocked := map[string]bool{}
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		blocked[d.Format("2006-01-02")] = true
	}
	return blocked, rows.Err()
}
