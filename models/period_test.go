package models

import (
	"math"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodEnd_Weekly(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday", date(2024, time.March, 4), date(2024, time.March, 10)},
		{"friday afternoon", time.Date(2024, time.March, 8, 16, 0, 0, 0, time.UTC), date(2024, time.March, 10)},
		{"sunday midnight", date(2024, time.March, 10), date(2024, time.March, 10)},
		{"sunday evening", time.Date(2024, time.March, 10, 20, 0, 0, 0, time.UTC), date(2024, time.March, 10)},
		{"across a year", date(2024, time.December, 31), date(2025, time.January, 5)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PeriodWeekly.PeriodEnd(tc.in))
		})
	}
}

func TestPeriodEnd_NormalizesToUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)

	// monday 08:00 in tokyo is still sunday in UTC
	in := time.Date(2024, time.March, 11, 8, 0, 0, 0, tokyo)
	got := PeriodWeekly.PeriodEnd(in)

	assert.Equal(t, date(2024, time.March, 10), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestPeriodEnd_MonthlyAndDaily(t *testing.T) {
	assert.Equal(t, date(2024, time.February, 29), PeriodMonthly.PeriodEnd(date(2024, time.February, 3)))
	assert.Equal(t, date(2024, time.January, 31), PeriodMonthly.PeriodEnd(time.Date(2024, time.January, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, date(2024, time.March, 8), PeriodDaily.PeriodEnd(time.Date(2024, time.March, 8, 16, 0, 0, 0, time.UTC)))
}

func TestPeriodNext(t *testing.T) {
	assert.Equal(t, date(2024, time.March, 17), PeriodWeekly.Next(date(2024, time.March, 10)))
	assert.Equal(t, date(2024, time.March, 9), PeriodDaily.Next(date(2024, time.March, 8)))
	assert.Equal(t, date(2024, time.February, 29), PeriodMonthly.Next(date(2024, time.January, 31)))
	assert.Equal(t, date(2024, time.March, 31), PeriodMonthly.Next(date(2024, time.February, 29)))
}

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{
		"weekly": PeriodWeekly,
		"W":      PeriodWeekly,
		"":       PeriodWeekly,
		" Daily": PeriodDaily,
		"month":  PeriodMonthly,
	} {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePeriod("hourly")
	assert.Error(t, err)
}

func TestPeriodsPerYear(t *testing.T) {
	assert.Equal(t, Weekly, PeriodWeekly.PeriodsPerYear())
	assert.Equal(t, Daily, PeriodDaily.PeriodsPerYear())
	assert.Equal(t, Monthly, PeriodMonthly.PeriodsPerYear())
}

func TestAnnualize(t *testing.T) {
	assert.InDelta(t, 0.02*math.Sqrt(52), PeriodWeekly.Annualize(0.02), 1e-12)
	assert.InDelta(t, 0.01*math.Sqrt(252), PeriodDaily.Annualize(0.01), 1e-12)
	assert.InDelta(t, 0.05*math.Sqrt(12), PeriodMonthly.Annualize(0.05), 1e-12)
	assert.Zero(t, PeriodWeekly.Annualize(0))
}

func TestForecastSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultForecastSettings().Validate())

	s := DefaultForecastSettings()
	s.ArchLags = 0
	assert.Error(t, s.Validate())

	s = DefaultForecastSettings()
	s.RescaleFactor = 0
	assert.Error(t, s.Validate())
}

func TestVolatilitySeriesValueAt(t *testing.T) {
	vs := VolatilitySeries{Points: []VolatilityPoint{
		{Timestamp: date(2024, time.March, 10)},
		{Timestamp: date(2024, time.March, 17), Value: null.FloatFrom(0.02)},
	}}

	assert.False(t, vs.ValueAt(date(2024, time.March, 10)).Valid)
	assert.InDelta(t, 0.02, vs.ValueAt(date(2024, time.March, 17).In(time.FixedZone("EST", -5*60*60))).Float64, 1e-12)
	assert.False(t, vs.ValueAt(date(2024, time.March, 24)).Valid)
}

func TestForecastRunPoints_PairsForecastWithNextPeriod(t *testing.T) {
	f := &InstrumentForecast{
		Symbol: "SPY",
		Actual: &VolatilitySeries{Points: []VolatilityPoint{
			{Timestamp: date(2024, time.March, 17), Value: null.FloatFrom(0.015)},
		}},
		Forecast: &ForecastResult{Points: []ForecastPoint{
			{Timestamp: date(2024, time.March, 10), Value: null.FloatFrom(0.014), Observations: 12},
			{Timestamp: date(2024, time.March, 17), Observations: 13, Failure: FitFailureNumerical},
		}},
	}

	rows := ForecastRunPoints(7, PeriodWeekly, []*InstrumentForecast{f, {Symbol: "FAILED"}, nil})
	require.Len(t, rows, 2)

	assert.Equal(t, int32(7), rows[0].RunId)
	assert.InDelta(t, 0.015, rows[0].Actual.Float64, 1e-12)
	assert.Equal(t, "none", rows[0].Failure)
	assert.False(t, rows[1].Actual.Valid)
	assert.False(t, rows[1].Forecast.Valid)
	assert.Equal(t, "numerical", rows[1].Failure)
}
