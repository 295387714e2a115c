// README: Scheduling settings record and code defaults.
package settings

// Settings is the operator-tunable scheduling policy. A single row in storage;
// Defaults applies when the row is absent.
type Settings struct {
	MinAdvanceHours              int
	MaxDistanceMiles             float64
	MaxJobsPerDay                int
	DayLeniencyMinutes           int
	AllowWeekendBookings         bool
	AllowHolidayBookings         bool
	SearchHorizonDays            int
	TopRecommendations           int
	StrictServiceAreaMatch       bool
	TravelFallbackCeilingMinutes int
}

func Defaults() Settings {
	return Settings{
		MinAdvanceHours:              24,
		MaxDistanceMiles:             75,
		MaxJobsPerDay:                3,
		DayLeniencyMinutes:           15,
		AllowWeekendBookings:         false,
		AllowHolidayBookings:         false,
		SearchHorizonDays:            120,
		TopRecommendations:           3,
		StrictServiceAreaMatch:       false,
		TravelFallbackCeilingMinutes: 80,
	}
}
