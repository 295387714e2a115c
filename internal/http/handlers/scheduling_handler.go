// README: Scheduling handlers: engineer recommendations and day-fit checks.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voltmate/internal/modules/engineer"
	"voltmate/internal/modules/job"
	"voltmate/internal/modules/recommend"
	"voltmate/internal/modules/schedule"
	"voltmate/internal/types"
)

// EngineerSource is the slice of the engineer store the day-fit endpoint needs.
type EngineerSource interface {
	Get(ctx context.Context, id types.ID) (*engineer.Engineer, error)
}

type SchedulingHandler struct {
	recommend *recommend.Service
	dayfit    *schedule.Service
	engineers EngineerSource
}

func NewSchedulingHandler(rec *recommend.Service, dayfit *schedule.Service, engineers EngineerSource) *SchedulingHandler {
	return &SchedulingHandler{recommend: rec, dayfit: dayfit, engineers: engineers}
}

type jobReq struct {
	ID              string `json:"id"`
	ClientID        string `json:"client_id"`
	Postcode        string `json:"postcode"`
	ClientPostcode  string `json:"client_postcode"`
	ClientAddress   string `json:"client_address"`
	Address         string `json:"address"`
	DurationMinutes int    `json:"duration_minutes"`
	PreferredTime   string `json:"preferred_time"`
}

func (r jobReq) toJob() *job.Job {
	return &job.Job{
		ID:              types.ID(r.ID),
		ClientID:        types.ID(r.ClientID),
		Postcode:        r.Postcode,
		ClientPostcode:  r.ClientPostcode,
		ClientAddress:   r.ClientAddress,
		Address:         r.Address,
		DurationMinutes: r.DurationMinutes,
		PreferredTime:   r.PreferredTime,
	}
}

type recommendationsReq struct {
	Job       jobReq `json:"job"`
	Postcode  string `json:"postcode"`
	StartDate string `json:"start_date"` // "2006-01-02", optional
	Limit     int    `json:"limit"`
}

type areaMatchResp struct {
	CanServe         bool   `json:"can_serve"`
	MaxTravelMinutes int    `json:"max_travel_minutes"`
	Type             string `json:"type,omitempty"`
}

type recommendationResp struct {
	EngineerID    string        `json:"engineer_id"`
	EngineerName  string        `json:"engineer_name"`
	Subcontractor bool          `json:"subcontractor"`
	DistanceMiles float64       `json:"distance_miles"`
	TravelMinutes int           `json:"travel_minutes"`
	AvailableDate string        `json:"available_date"`
	JobsOnDate    int           `json:"jobs_on_date"`
	Score         float64       `json:"score"`
	AreaMatch     areaMatchResp `json:"area_match"`
	Reasons       []string      `json:"reasons"`
}

type diagnosticsResp struct {
	TotalEngineers int                 `json:"total_engineers"`
	Location       string              `json:"location"`
	Excluded       map[string][]string `json:"excluded"`
}

type recommendationsResp struct {
	Featured    []recommendationResp `json:"featured"`
	All         []recommendationResp `json:"all"`
	Diagnostics diagnosticsResp      `json:"diagnostics"`
}

func (h *SchedulingHandler) Recommendations(c *gin.Context) {
	var req recommendationsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	opts := recommend.Options{Postcode: req.Postcode, Limit: req.Limit}
	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeError(c, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
			return
		}
		opts.StartDate = &start
	}

	result, err := h.recommend.Recommendations(c.Request.Context(), req.Job.toJob(), opts)
	if err != nil {
		writeSchedulingError(c, err)
		return
	}

	resp := recommendationsResp{
		Featured: toRecommendationResps(result.Featured),
		All:      toRecommendationResps(result.All),
		Diagnostics: diagnosticsResp{
			TotalEngineers: result.Diagnostics.TotalEngineers,
			Location:       result.Diagnostics.Location,
			Excluded:       result.Diagnostics.Excluded,
		},
	}
	writeJSON(c, http.StatusOK, resp)
}

func toRecommendationResps(recs []*recommend.Recommendation) []recommendationResp {
	out := make([]recommendationResp, 0, len(recs))
	for _, r := range recs {
		out = append(out, recommendationResp{
			EngineerID:    string(r.Engineer.ID),
			EngineerName:  r.Engineer.Name,
			Subcontractor: r.Engineer.Subcontractor,
			DistanceMiles: r.DistanceMiles,
			TravelMinutes: r.TravelMinutes,
			AvailableDate: r.AvailableDate.Format("2006-01-02"),
			JobsOnDate:    r.JobsOnDate,
			Score:         r.Score,
			AreaMatch: areaMatchResp{
				CanServe:         r.AreaMatch.CanServe,
				MaxTravelMinutes: r.AreaMatch.MaxTravelMinutes,
				Type:             string(r.AreaMatch.Type),
			},
			Reasons: r.Reasons,
		})
	}
	return out
}

type candidateReq struct {
	ID              string `json:"id"`
	Postcode        string `json:"postcode"`
	DurationMinutes int    `json:"duration_minutes"`
	StartHint       string `json:"start_hint"`
}

func (r candidateReq) toCandidate(virtual bool) schedule.Candidate {
	return schedule.Candidate{
		ID:              types.ID(r.ID),
		Postcode:        r.Postcode,
		DurationMinutes: r.DurationMinutes,
		StartHint:       r.StartHint,
		Virtual:         virtual,
	}
}

type dayFitReq struct {
	EngineerID      string         `json:"engineer_id"`
	Date            string         `json:"date"` // "2006-01-02"
	Job             *candidateReq  `json:"job"`
	Virtual         []candidateReq `json:"virtual"`
	LeniencyMinutes int            `json:"leniency_minutes"`
	UseMatrix       bool           `json:"use_matrix"`       // batched matrix lookup instead of per-leg
	TravelTolerance float64        `json:"travel_tolerance"` // matrix travel-budget multiplier, 0 = 1.0
}

type dayFitResp struct {
	CanFit         bool     `json:"can_fit"`
	TotalMinutes   int      `json:"total_minutes"`
	TravelMinutes  int      `json:"travel_minutes"`
	BudgetMinutes  int      `json:"budget_minutes"`
	OverageMinutes int      `json:"overage_minutes"`
	JobCount       int      `json:"job_count"`
	TravelConflict bool     `json:"travel_conflict"`
	Reasons        []string `json:"reasons"`
}

func (h *SchedulingHandler) DayFit(c *gin.Context) {
	var req dayFitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.EngineerID == "" {
		writeError(c, http.StatusBadRequest, "missing engineer_id")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	eng, err := h.engineers.Get(c.Request.Context(), types.ID(req.EngineerID))
	if err != nil {
		writeSchedulingError(c, err)
		return
	}

	var candidate *schedule.Candidate
	if req.Job != nil {
		cand := req.Job.toCandidate(false)
		candidate = &cand
	}
	virtual := make([]schedule.Candidate, 0, len(req.Virtual))
	for _, v := range req.Virtual {
		virtual = append(virtual, v.toCandidate(true))
	}

	var res *schedule.DayFitResult
	if req.UseMatrix {
		st, err := h.dayfit.AssembleState(c.Request.Context(), eng, date, req.LeniencyMinutes, candidate, virtual)
		if err != nil {
			writeSchedulingError(c, err)
			return
		}
		res = h.dayfit.MatrixDayFit(c.Request.Context(), st, req.TravelTolerance)
	} else {
		res, err = h.dayfit.CalculateDayFit(c.Request.Context(), eng, date, candidate, req.LeniencyMinutes, virtual)
		if err != nil {
			writeSchedulingError(c, err)
			return
		}
	}
	writeJSON(c, http.StatusOK, dayFitResp{
		CanFit:         res.CanFit,
		TotalMinutes:   res.TotalMinutes,
		TravelMinutes:  res.TravelMinutes,
		BudgetMinutes:  res.BudgetMinutes,
		OverageMinutes: res.OverageMinutes,
		JobCount:       res.JobCount,
		TravelConflict: res.TravelConflict,
		Reasons:        res.Reasons,
	})
}
