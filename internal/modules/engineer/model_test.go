// README: Engineer model tests (default template, time off).
package engineer

import (
	"testing"
	"time"
)

func TestHoursOrDefault(t *testing.T) {
	e := &Engineer{ID: "e1"}
	h := e.HoursOrDefault()

	for d := time.Monday; d <= time.Friday; d++ {
		day, ok := h[d]
		if !ok || !day.Available {
			t.Fatalf("weekday %v should default to available", d)
		}
		if day.Start != "09:00" || day.End != "17:00" {
			t.Errorf("weekday %v defaulted to %s-%s, want 09:00-17:00", d, day.Start, day.End)
		}
	}
	if _, ok := h[time.Saturday]; ok {
		t.Error("Saturday should not be in the default template")
	}
	if _, ok := h[time.Sunday]; ok {
		t.Error("Sunday should not be in the default template")
	}

	custom := WeeklyHours{time.Monday: {Available: true, Start: "08:00", End: "14:00"}}
	e.Hours = custom
	if got := e.HoursOrDefault(); got[time.Monday].Start != "08:00" {
		t.Error("configured template must not be replaced by the default")
	}
}

func TestOnTimeOff(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	e := &Engineer{
		TimeOff: []TimeOff{
			{Start: day(2026, 9, 7), End: day(2026, 9, 11), Approved: true},
			{Start: day(2026, 10, 1), End: day(2026, 10, 2), Approved: false},
		},
	}

	cases := []struct {
		date time.Time
		want bool
	}{
		{day(2026, 9, 6), false},
		{day(2026, 9, 7), true},  // inclusive start
		{day(2026, 9, 9), true},
		{day(2026, 9, 11), true}, // inclusive end
		{day(2026, 9, 12), false},
		{day(2026, 10, 1), false}, // unapproved ranges do not block
	}
	for _, tc := range cases {
		if got := e.OnTimeOff(tc.date); got != tc.want {
			t.Errorf("OnTimeOff(%s) = %v, want %v", tc.date.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestOnTimeOffNonUTCZone(t *testing.T) {
	// range bounds stored as UTC dates, queried with local midnights
	e := &Engineer{
		TimeOff: []TimeOff{{
			Start:    time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC),
			Approved: true,
		}},
	}
	bst := time.FixedZone("BST", 3600)

	cases := []struct {
		date time.Time
		want bool
	}{
		{time.Date(2026, 9, 7, 0, 0, 0, 0, bst), true},   // 2026-09-06 23:00 UTC, still Sep 7
		{time.Date(2026, 9, 11, 0, 0, 0, 0, bst), true},  // inclusive end holds in BST
		{time.Date(2026, 9, 6, 0, 0, 0, 0, bst), false},
		{time.Date(2026, 9, 12, 0, 0, 0, 0, bst), false},
	}
	for _, tc := range cases {
		if got := e.OnTimeOff(tc.date); got != tc.want {
			t.Errorf("OnTimeOff(%s) = %v, want %v", tc.date.Format(time.RFC3339), got, tc.want)
		}
	}
}
