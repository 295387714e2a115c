// README: Recommendation engine tests: ranking, search, exclusions, determinism.
package recommend

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voltmate/internal/geo"
	"voltmate/internal/modules/engineer"
	"voltmate/internal/modules/job"
	"voltmate/internal/modules/schedule"
	"voltmate/internal/modules/servicearea"
	"voltmate/internal/modules/settings"
	"voltmate/internal/types"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeEngineers struct {
	list []*engineer.Engineer
	err  error
}

func (f *fakeEngineers) ListAvailable(context.Context) ([]*engineer.Engineer, error) {
	return f.list, f.err
}

type fakeSettings struct{ cfg settings.Settings }

func (f *fakeSettings) Get(context.Context) (settings.Settings, error) { return f.cfg, nil }

// fakeTravel serves both the engine's home→job lookup and the day-fit
// calculator's per-leg lookups.
type fakeTravel struct {
	legs map[string]geo.Leg // "FROM|TO", normalized
}

func (f *fakeTravel) TravelTime(_ context.Context, from, to string) (geo.Leg, error) {
	key := geo.NormalizeLocation(from) + "|" + geo.NormalizeLocation(to)
	if leg, ok := f.legs[key]; ok {
		return leg, nil
	}
	return geo.Leg{}, errors.New("route unavailable")
}

func (f *fakeTravel) TravelMatrix(context.Context, []string) (*geo.Matrix, error) {
	return nil, errors.New("not used")
}

type fakeDays struct {
	byEngineerDay map[string][]schedule.Candidate // "engID|2006-01-02"
	errFor        types.ID
}

func (f *fakeDays) DayCandidates(_ context.Context, engID types.ID, date time.Time) ([]schedule.Candidate, error) {
	if f.errFor != "" && engID == f.errFor {
		return nil, errors.New("storage unavailable")
	}
	return f.byEngineerDay[string(engID)+"|"+date.Format("2006-01-02")], nil
}

type fakeBlocked struct {
	dates    map[string]bool
	from, to time.Time // last requested window
}

func (f *fakeBlocked) BlockedDates(_ context.Context, _ types.ID, from, to time.Time) (map[string]bool, error) {
	f.from, f.to = from, to
	if f.dates == nil {
		return map[string]bool{}, nil
	}
	return f.dates, nil
}

// 2026-09-01 is a Tuesday; with 24h advance notice the search starts
// Wednesday 2026-09-02.
var testNow = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func testConfig() settings.Settings {
	cfg := settings.Defaults()
	cfg.AllowHolidayBookings = true // keep fixtures independent of bank holidays
	return cfg
}

func newTestService(engs *fakeEngineers, cfg settings.Settings, travel *fakeTravel,
	days *fakeDays, blocked *fakeBlocked) *Service {
	if travel == nil {
		travel = &fakeTravel{}
	}
	if days == nil {
		days = &fakeDays{}
	}
	if blocked == nil {
		blocked = &fakeBlocked{}
	}
	dayfit := schedule.NewService(travel, days, zerolog.Nop())
	return NewService(engs, &fakeSettings{cfg: cfg}, travel, dayfit, blocked,
		fixedClock{now: testNow}, zerolog.Nop())
}

func testJob() *job.Job {
	return &job.Job{ID: "job1", Postcode: "DA5 2AB", DurationMinutes: 120}
}

func eng(id, postcode string, areas ...servicearea.Area) *engineer.Engineer {
	return &engineer.Engineer{ID: types.ID(id), Postcode: postcode, ServiceAreas: areas, Available: true}
}

func leg(miles float64, minutes int) geo.Leg {
	return geo.Leg{DistanceMiles: miles, DurationMinutes: minutes}
}

func TestZeroEngineersYieldsEmptyResult(t *testing.T) {
	svc := newTestService(&fakeEngineers{}, testConfig(), nil, nil, nil)

	res, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if len(res.Featured) != 0 || len(res.All) != 0 {
		t.Errorf("expected empty lists, got featured=%d all=%d", len(res.Featured), len(res.All))
	}
	if res.Diagnostics.TotalEngineers != 0 {
		t.Errorf("TotalEngineers = %d, want 0", res.Diagnostics.TotalEngineers)
	}
	if len(res.Diagnostics.Excluded) == 0 {
		t.Error("diagnostics should note that no engineers were found")
	}
}

func TestNoResolvableLocationIsHardStop(t *testing.T) {
	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{eng("e1", "DA5 9XX")}},
		testConfig(), nil, nil, nil)

	_, err := svc.Recommendations(context.Background(),
		&job.Job{ID: "job1", Address: "no postcode anywhere"}, Options{})
	if !errors.Is(err, ErrNoLocation) {
		t.Fatalf("err = %v, want ErrNoLocation", err)
	}
}

func TestRankingAndDeterminism(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{
		"DA5 9XX|DA5 2AB": leg(3, 12),
		"DA1 1AA|DA5 2AB": leg(6, 18),
		"DA2 2BB|DA5 2AB": leg(6, 18),
	}}
	area := servicearea.Area{Code: "DA", MaxTravelMinutes: 40}
	engs := &fakeEngineers{list: []*engineer.Engineer{
		eng("e1", "DA1 1AA", area),
		eng("e2", "DA5 9XX", area),
		eng("e3", "DA2 2BB", area),
	}}
	// e3 already has a job on the first searchable day; same travel as e1,
	// so workload breaks the tie in e1's favor.
	days := &fakeDays{byEngineerDay: map[string][]schedule.Candidate{
		"e3|2026-09-02": {{ID: "existing", Postcode: "DA5 1AA", DurationMinutes: 60}},
	}}

	svc := newTestService(engs, testConfig(), travel, days, nil)

	res, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	order := func(r *Result) []string {
		var ids []string
		for _, rec := range r.All {
			ids = append(ids, string(rec.Engineer.ID))
		}
		return ids
	}
	got := order(res)
	want := []string{"e2", "e1", "e3"} // shortest travel first, then lighter workload
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ranking = %v, want %v", got, want)
	}
	if len(res.Featured) != 3 {
		t.Errorf("featured = %d, want 3 (default top count)", len(res.Featured))
	}

	// identical inputs must produce byte-identical ordering
	res2, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order(res2), got) {
		t.Errorf("second run ranking = %v, want %v", order(res2), got)
	}
}

func TestFirstAvailableDateIsEarliest(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{"DA5 9XX|DA5 2AB": leg(3, 12)}}
	e := eng("e1", "DA5 9XX", servicearea.Area{Code: "DA5", MaxTravelMinutes: 40})
	e.TimeOff = []engineer.TimeOff{{
		Start:    time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		Approved: true,
	}}
	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, testConfig(), travel, nil, nil)

	res, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.All) != 1 {
		t.Fatalf("recommendations = %d, want 1 (diagnostics: %v)", len(res.All), res.Diagnostics.Excluded)
	}
	// Wed 2nd and Thu 3rd are time off; Fri 4th is the earliest valid date.
	want := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	if !res.All[0].AvailableDate.Equal(want) {
		t.Errorf("AvailableDate = %s, want %s",
			res.All[0].AvailableDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}
}

func TestWeekendSkippedUnlessAllowed(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{"DA5 9XX|DA5 2AB": leg(3, 12)}}
	e := eng("e1", "DA5 9XX", servicearea.Area{Code: "DA5", MaxTravelMinutes: 40})
	// weekend template so only the weekend flag gates Saturday
	e.Hours = engineer.WeeklyHours{
		time.Saturday: {Available: true, Start: "09:00", End: "17:00"},
		time.Sunday:   {Available: true, Start: "09:00", End: "17:00"},
		time.Monday:   {Available: true, Start: "09:00", End: "17:00"},
	}

	cfg := testConfig()
	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, cfg, travel, nil, nil)
	res, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	// Wed-Fri unavailable in template; Sat/Sun blocked by flag → Mon 7th
	want := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	if !res.All[0].AvailableDate.Equal(want) {
		t.Errorf("AvailableDate = %s, want %s (weekend disallowed)",
			res.All[0].AvailableDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}

	cfg.AllowWeekendBookings = true
	svc = newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, cfg, travel, nil, nil)
	res, err = svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	want = time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC) // Saturday
	if !res.All[0].AvailableDate.Equal(want) {
		t.Errorf("AvailableDate = %s, want %s (weekend allowed)",
			res.All[0].AvailableDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}
}

func TestBlockedDatesSkipped(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{"DA5 9XX|DA5 2AB": leg(3, 12)}}
	e := eng("e1", "DA5 9XX", servicearea.Area{Code: "DA5", MaxTravelMinutes: 40})
	blocked := &fakeBlocked{dates: map[string]bool{"2026-09-02": true, "2026-09-03": true}}

	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, testConfig(), travel, nil, blocked)
	j := testJob()
	j.ClientID = "c1"
	res, err := svc.Recommendations(context.Background(), j, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	if !res.All[0].AvailableDate.Equal(want) {
		t.Errorf("AvailableDate = %s, want %s (client-blocked days skipped)",
			res.All[0].AvailableDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}
}

func TestBankHolidaysSkippedUnlessAllowed(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{"DA5 9XX|DA5 2AB": leg(3, 12)}}
	e := eng("e1", "DA5 9XX", servicearea.Area{Code: "DA5", MaxTravelMinutes: 40})

	cfg := settings.Defaults() // holiday bookings off
	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, cfg, travel, nil, nil)

	// Fri 2026-12-25 is Christmas Day; Sat 26 / Sun 27 are the weekend; Mon 28
	// is the observed Boxing Day substitute. First bookable day is Tue 29.
	start := time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	res, err := svc.Recommendations(context.Background(), testJob(), Options{StartDate: &start})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.All) != 1 {
		t.Fatalf("recommendations = %d (diagnostics: %v)", len(res.All), res.Diagnostics.Excluded)
	}
	want := time.Date(2026, 12, 29, 0, 0, 0, 0, time.UTC)
	if !res.All[0].AvailableDate.Equal(want) {
		t.Errorf("AvailableDate = %s, want %s (actual and observed holidays skipped)",
			res.All[0].AvailableDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}

	// 2027: Christmas falls on Sat 25, Boxing Day on Sun 26; the substitutes
	// are Mon 27 and Tue 28, neither of which is bookable either.
	start = time.Date(2027, 12, 27, 0, 0, 0, 0, time.UTC)
	res, err = svc.Recommendations(context.Background(), testJob(), Options{StartDate: &start})
	if err != nil {
		t.Fatal(err)
	}
	want = time.Date(2027, 12, 29, 0, 0, 0, 0, time.UTC)
	if !res.All[0].AvailableDate.Equal(want) {
		t.Errorf("AvailableDate = %s, want %s (substitute days skipped)",
			res.All[0].AvailableDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}

	cfg.AllowHolidayBookings = true
	svc = newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, cfg, travel, nil, nil)
	start = time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	res, err = svc.Recommendations(context.Background(), testJob(), Options{StartDate: &start})
	if err != nil {
		t.Fatal(err)
	}
	want = time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	if !res.All[0].AvailableDate.Equal(want) {
		t.Errorf("AvailableDate = %s, want %s (flag permits holiday bookings)",
			res.All[0].AvailableDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}
}

func TestBlockedWindowCoversConfiguredHorizon(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{"DA5 9XX|DA5 2AB": leg(3, 12)}}
	e := eng("e1", "DA5 9XX", servicearea.Area{Code: "DA5", MaxTravelMinutes: 40})
	blocked := &fakeBlocked{}

	cfg := testConfig()
	cfg.SearchHorizonDays = 400 // longer than the default year-long extension
	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, cfg, travel, nil, blocked)

	j := testJob()
	j.ClientID = "c1"
	if _, err := svc.Recommendations(context.Background(), j, Options{}); err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	if !blocked.from.Equal(start) {
		t.Errorf("blocked window start = %s, want %s", blocked.from, start)
	}
	if want := start.AddDate(0, 0, 400); !blocked.to.Equal(want) {
		t.Errorf("blocked window end = %s, want %s (full search horizon)", blocked.to, want)
	}
}

func TestStrictServiceAreaExcludes(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{"MK9 9XX|DA5 2AB": leg(20, 45)}}
	e := eng("e1", "MK9 9XX", servicearea.Area{Code: "MK", MaxTravelMinutes: 60})

	cfg := testConfig()
	cfg.StrictServiceAreaMatch = true
	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, cfg, travel, nil, nil)

	res, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.All) != 0 {
		t.Fatalf("expected exclusion under strict matching, got %d recommendations", len(res.All))
	}
	reasons := res.Diagnostics.Excluded["e1"]
	if len(reasons) == 0 || !strings.Contains(reasons[0], "service area") {
		t.Errorf("exclusion reasons = %v, want a service-area reason", reasons)
	}

	// soft mode: same engineer falls through to the fallback ceiling (80m)
	cfg.StrictServiceAreaMatch = false
	svc = newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, cfg, travel, nil, nil)
	res, err = svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.All) != 1 {
		t.Errorf("soft mode should include the engineer (45m < 80m fallback ceiling), diagnostics: %v",
			res.Diagnostics.Excluded)
	}
}

func TestTravelCeilingAndDistanceExclusions(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{
		"DA5 9XX|DA5 2AB": leg(3, 55),   // over the 40m area ceiling
		"DA1 1AA|DA5 2AB": leg(90, 30),  // over the 75 mile maximum
	}}
	engs := &fakeEngineers{list: []*engineer.Engineer{
		eng("slow", "DA5 9XX", servicearea.Area{Code: "DA5", MaxTravelMinutes: 40}),
		eng("far", "DA1 1AA", servicearea.Area{Code: "DA", MaxTravelMinutes: 40}),
	}}
	svc := newTestService(engs, testConfig(), travel, nil, nil)

	res, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.All) != 0 {
		t.Fatalf("expected both engineers excluded, got %d", len(res.All))
	}
	if r := res.Diagnostics.Excluded["slow"]; len(r) == 0 || !strings.Contains(r[0], "travel time") {
		t.Errorf("slow exclusion = %v, want travel-time reason", r)
	}
	if r := res.Diagnostics.Excluded["far"]; len(r) == 0 || !strings.Contains(r[0], "distance") {
		t.Errorf("far exclusion = %v, want distance reason", r)
	}
}

func TestMissingStartingLocationExcludes(t *testing.T) {
	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{eng("e1", "")}},
		testConfig(), nil, nil, nil)

	res, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if r := res.Diagnostics.Excluded["e1"]; len(r) == 0 || !strings.Contains(r[0], "starting location") {
		t.Errorf("exclusion = %v, want starting-location reason", r)
	}
}

func TestDailyCapPushesToNextDay(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{"DA5 9XX|DA5 2AB": leg(3, 12)}}
	e := eng("e1", "DA5 9XX", servicearea.Area{Code: "DA5", MaxTravelMinutes: 40})
	e.MaxJobsPerDay = 1
	days := &fakeDays{byEngineerDay: map[string][]schedule.Candidate{
		"e1|2026-09-02": {{ID: "existing", Postcode: "DA5 1AA", DurationMinutes: 60}},
	}}

	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, testConfig(), travel, days, nil)
	res, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)
	if !res.All[0].AvailableDate.Equal(want) {
		t.Errorf("AvailableDate = %s, want %s (day at cap skipped)",
			res.All[0].AvailableDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}
	if res.All[0].JobsOnDate != 0 {
		t.Errorf("JobsOnDate = %d, want 0", res.All[0].JobsOnDate)
	}
}

func TestPerEngineerFailureDoesNotAbortRun(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{
		"DA5 9XX|DA5 2AB": leg(3, 12),
		"DA1 1AA|DA5 2AB": leg(6, 18),
	}}
	engs := &fakeEngineers{list: []*engineer.Engineer{
		eng("broken", "DA1 1AA", servicearea.Area{Code: "DA", MaxTravelMinutes: 40}),
		eng("healthy", "DA5 9XX", servicearea.Area{Code: "DA5", MaxTravelMinutes: 40}),
	}}
	days := &fakeDays{errFor: "broken"}

	svc := newTestService(engs, testConfig(), travel, days, nil)
	res, err := svc.Recommendations(context.Background(), testJob(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.All) != 1 || res.All[0].Engineer.ID != "healthy" {
		t.Fatalf("expected only the healthy engineer, got %d", len(res.All))
	}
	if r := res.Diagnostics.Excluded["broken"]; len(r) == 0 {
		t.Error("broken engineer should carry an exclusion reason")
	}
}

func TestCallerStartDateOverridesHorizon(t *testing.T) {
	travel := &fakeTravel{legs: map[string]geo.Leg{"DA5 9XX|DA5 2AB": leg(3, 12)}}
	e := eng("e1", "DA5 9XX", servicearea.Area{Code: "DA5", MaxTravelMinutes: 40})
	svc := newTestService(&fakeEngineers{list: []*engineer.Engineer{e}}, testConfig(), travel, nil, nil)

	start := time.Date(2026, 10, 12, 9, 30, 0, 0, time.UTC) // a Monday
	res, err := svc.Recommendations(context.Background(), testJob(), Options{StartDate: &start})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	if !res.All[0].AvailableDate.Equal(want) {
		t.Errorf("AvailableDate = %s, want caller start date %s",
			res.All[0].AvailableDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}
}

func TestScore(t *testing.T) {
	cases := []struct {
		name     string
		distance float64
		travel   int
		daysOut  int
		jobs     int
		want     float64
	}{
		{"near, soon, free day", 5, 10, 0, 0, 100}, // 100-10-5+20+8 = 113 → clamp 100
		{"typical", 10, 20, 10, 1, 80},             // 100-20-10+10 = 80
		{"distance capped at 50", 40, 0, 20, 1, 50},
		{"travel capped at 30", 0, 120, 20, 1, 70},
		{"floor at zero", 30, 120, 30, 2, 20}, // 100-50-30 = 20
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := score(tc.distance, tc.travel, tc.daysOut, tc.jobs); got != tc.want {
				t.Errorf("score(%v, %d, %d, %d) = %v, want %v",
					tc.distance, tc.travel, tc.daysOut, tc.jobs, got, tc.want)
			}
		})
	}
}
