// README: Job/offer scheduling views, postcode resolution chain, candidate adapter.
package job

import (
	"regexp"
	"strings"
	"time"

	"voltmate/internal/modules/schedule"
	"voltmate/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Job is the scheduling view of an installation order. Location fields feed
// the BestPostcode priority chain; assignment is owned by the caller's layer.
type Job struct {
	ID              types.ID
	ClientID        types.ID
	Postcode        string
	ClientPostcode  string
	ClientAddress   string
	Address         string
	DurationMinutes int
	PreferredTime   string // "HH:MM", optional fixed time preference
	EngineerID      *types.ID
	ScheduledDate   *time.Time
	Status          Status
}

// OfferStatus tracks soft holds: tentatively offered slots that occupy
// capacity without being confirmed bookings.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferDeclined OfferStatus = "declined"
	OfferExpired  OfferStatus = "expired"
)

type Offer struct {
	ID              types.ID
	JobID           types.ID
	EngineerID      types.ID
	Date            time.Time
	Status          OfferStatus
	ExpiresAt       time.Time
	Postcode        string
	DurationMinutes int
}

// postcodeRe finds a full UK postcode inside free text.
var postcodeRe = regexp.MustCompile(`(?i)\b[A-Z]{1,2}[0-9][0-9A-Z]?\s*[0-9][A-Z]{2}\b`)

// BestPostcode resolves the job's effective location through the fixed
// priority chain: job postcode → client postcode → client address extraction →
// job address extraction. Empty means no resolvable location.
func (j *Job) BestPostcode() string {
	if pc := strings.TrimSpace(j.Postcode); pc != "" {
		return pc
	}
	if pc := strings.TrimSpace(j.ClientPostcode); pc != "" {
		return pc
	}
	if pc := ExtractPostcode(j.ClientAddress); pc != "" {
		return pc
	}
	return ExtractPostcode(j.Address)
}

// ExtractPostcode pulls the first postcode-shaped token out of free text.
func ExtractPostcode(address string) string {
	return strings.ToUpper(strings.TrimSpace(postcodeRe.FindString(address)))
}

// Candidate adapts a job into the lean view day-fit logic consumes. This is
// the only place persisted-order fields are folded into a schedule candidate.
func Candidate(j *Job) schedule.Candidate {
	duration := j.DurationMinutes
	if duration <= 0 {
		duration = schedule.DefaultJobDurationMinutes
	}
	return schedule.Candidate{
		ID:              j.ID,
		Postcode:        j.BestPostcode(),
		DurationMinutes: duration,
		StartHint:       j.PreferredTime,
	}
}

func offerCandidate(o *Offer) schedule.Candidate {
	duration := o.DurationMinutes
	if duration <= 0 {
		duration = schedule.DefaultJobDurationMinutes
	}
	return schedule.Candidate{
		ID:              o.JobID,
		Postcode:        o.Postcode,
		DurationMinutes: duration,
	}
}
