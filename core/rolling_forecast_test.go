package core

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "volcast/models"
)

type countingRecorder struct {
	mu       sync.Mutex
	points   map[string]int
	failures map[string]int
	fits     int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{points: map[string]int{}, failures: map[string]int{}}
}

func (r *countingRecorder) RecordForecastPoint(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points[outcome]++
}

func (r *countingRecorder) RecordFitFailure(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[kind]++
}

func (r *countingRecorder) RecordFitDuration(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fits++
}

func newTestForecaster(t *testing.T, opts ...ForecasterOption) *RollingForecaster {
	t.Helper()
	rf, err := NewRollingForecaster(m.DefaultForecastSettings(), opts...)
	require.NoError(t, err)
	return rf
}

func gridOf(dates ...time.Time) m.ForecastGrid {
	return m.ForecastGrid{Period: m.PeriodWeekly, Dates: dates}
}

// volatilityPath turns a simulated return path into a positive weekly volatility level series.
func volatilityPath(t *testing.T, n int, seed uint64) []float64 {
	t.Helper()
	returns := generateGarchReturns(t, n, 0.2, 0.1, 0.8, seed)
	res := make([]float64, n)
	for i, r := range returns {
		res[i] = 0.02 + math.Abs(r)/100
	}
	return res
}

func TestNewRollingForecaster_ValidatesSettings(t *testing.T) {
	settings := m.DefaultForecastSettings()
	settings.ArchLags = 0

	rf, err := NewRollingForecaster(settings)
	assert.Nil(t, rf)
	assert.Error(t, err)
}

func TestNewForecastGrid(t *testing.T) {
	grid, err := NewForecastGrid(day(4), day(25), m.PeriodWeekly)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(10), day(17), day(24)}, grid.Dates)

	// end is exclusive
	grid, err = NewForecastGrid(day(4), day(24), m.PeriodWeekly)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(10), day(17)}, grid.Dates)

	grid, err = NewForecastGrid(day(4), day(4), m.PeriodWeekly)
	require.NoError(t, err)
	assert.Zero(t, grid.Len())

	_, err = NewForecastGrid(day(25), day(4), m.PeriodWeekly)
	assert.ErrorContains(t, err, "forecast end 2024-03-04T00:00:00Z is before forecast start 2024-03-25T00:00:00Z")
}

func TestForecast_TenWeekScenario(t *testing.T) {
	history := weeklySeries("SPY", 0.02, 0.021, 0.019, 0.022, 0.02, 0.023, 0.021, 0.02, 0.022, 0.021)

	res := newTestForecaster(t).Forecast(history, gridOf(week(11)))
	require.Len(t, res.Points, 1)

	p := res.Points[0]
	assert.Equal(t, week(11), p.Timestamp)
	assert.Equal(t, 10, p.Observations)
	require.True(t, p.Value.Valid, "expected a forecast, got failure %s", p.Failure)
	assert.GreaterOrEqual(t, p.Value.Float64, 0.0)
	assert.False(t, math.IsInf(p.Value.Float64, 0) || math.IsNaN(p.Value.Float64))
	assert.Equal(t, m.FitFailureNone, p.Failure)
}

func TestForecast_SingleObservationDoesNotPanic(t *testing.T) {
	history := weeklySeries("SPY", 0.02)

	var res m.ForecastResult
	require.NotPanics(t, func() {
		res = newTestForecaster(t).Forecast(history, gridOf(week(2)))
	})
	require.Len(t, res.Points, 1)

	p := res.Points[0]
	assert.Equal(t, 1, p.Observations)
	if p.Value.Valid {
		assert.False(t, math.IsInf(p.Value.Float64, 0) || math.IsNaN(p.Value.Float64))
		assert.GreaterOrEqual(t, p.Value.Float64, 0.0)
	} else {
		assert.NotEqual(t, m.FitFailureNone, p.Failure)
	}
}

func TestForecast_EmptyHistoryIsAllMissing(t *testing.T) {
	recorder := newCountingRecorder()
	history := m.VolatilitySeries{Symbol: "SPY", Period: m.PeriodWeekly}

	res := newTestForecaster(t, WithRecorder(recorder)).Forecast(history, gridOf(week(1), week(2), week(3)))
	require.Len(t, res.Points, 3)

	for i, p := range res.Points {
		assert.False(t, p.Value.Valid, "point %d", i)
		assert.Equal(t, m.FitFailureEmptyHistory, p.Failure)
		assert.Zero(t, p.Observations)
	}
	assert.Equal(t, 3, res.Missing())
	assert.Equal(t, 3, recorder.points["missing"])
	assert.Equal(t, 3, recorder.failures["empty_history"])
	assert.Zero(t, recorder.fits)
}

func TestForecast_GridBeforeHistoryIsMissing(t *testing.T) {
	history := weeklySeries("SPY", volatilityPath(t, 10, 1)...)
	for i := range history.Points {
		history.Points[i].Timestamp = week(i + 5)
	}

	res := newTestForecaster(t).Forecast(history, gridOf(week(3), week(4), week(14)))
	require.Len(t, res.Points, 3)

	assert.Equal(t, m.FitFailureEmptyHistory, res.Points[0].Failure)
	assert.Equal(t, m.FitFailureEmptyHistory, res.Points[1].Failure)
	assert.Equal(t, 10, res.Points[2].Observations)
}

func TestForecast_NoLookAhead(t *testing.T) {
	values := volatilityPath(t, 60, 2)
	history := weeklySeries("SPY", values...)
	grid := gridOf(week(30), week(35), week(40), week(45))
	rf := newTestForecaster(t)

	full := rf.Forecast(history, grid)

	for i, d := range grid.Dates {
		// only the history up to d
		truncated := weeklySeries("SPY", values[:30+5*i]...)
		partial := rf.Forecast(truncated, gridOf(d))

		assert.Equal(t, full.Points[i].Observations, partial.Points[0].Observations, "date %s", d.Format(time.DateOnly))
		assert.Equal(t, full.Points[i].Value, partial.Points[0].Value, "date %s", d.Format(time.DateOnly))
	}

	// changing what comes after the first date leaves its forecast alone
	mutated := weeklySeries("SPY", values...)
	for i := 30; i < mutated.Len(); i++ {
		mutated.Points[i].Value = null.FloatFrom(mutated.Points[i].Value.Float64 * 3)
	}
	mutated.Points = append(mutated.Points, m.VolatilityPoint{Timestamp: week(61), Value: null.FloatFrom(1)})

	changed := rf.Forecast(mutated, grid)
	assert.Equal(t, full.Points[0].Value, changed.Points[0].Value)
}

func TestForecast_HistoryGrowsMonotonically(t *testing.T) {
	history := weeklySeries("SPY", volatilityPath(t, 40, 3)...)
	grid, err := NewForecastGrid(week(20), week(41), m.PeriodWeekly)
	require.NoError(t, err)

	res := newTestForecaster(t).Forecast(history, grid)
	require.Len(t, res.Points, grid.Len())

	for i, p := range res.Points {
		assert.Equal(t, grid.Dates[i], p.Timestamp)
		assert.Equal(t, 20+i, p.Observations)
		if i > 0 {
			assert.GreaterOrEqual(t, p.Observations, res.Points[i-1].Observations)
		}
	}
}

func TestForecast_MissingValuesAreNotObservations(t *testing.T) {
	history := weeklySeries("SPY", 0.02, math.NaN(), 0.021, math.NaN(), 0.019, 0.022)

	res := newTestForecaster(t).Forecast(history, gridOf(week(3), week(7)))
	require.Len(t, res.Points, 2)
	assert.Equal(t, 2, res.Points[0].Observations)
	assert.Equal(t, 4, res.Points[1].Observations)
}

func TestForecast_ConstantHistoryIsGraceful(t *testing.T) {
	recorder := newCountingRecorder()
	values := append([]float64{0, 0, 0, 0, 0}, volatilityPath(t, 15, 4)...)
	history := weeklySeries("SPY", values...)
	grid := gridOf(week(3), week(5), week(10), week(15), week(20))

	var res m.ForecastResult
	require.NotPanics(t, func() {
		res = newTestForecaster(t, WithRecorder(recorder)).Forecast(history, grid)
	})
	require.Len(t, res.Points, grid.Len())

	// zero variance history cannot be fitted
	assert.False(t, res.Points[0].Value.Valid)
	assert.Equal(t, m.FitFailureDegenerate, res.Points[0].Failure)
	assert.Equal(t, m.FitFailureDegenerate, res.Points[1].Failure)

	// the walk carries on to the last date
	assert.Equal(t, week(20), res.Points[4].Timestamp)
	assert.Equal(t, 20, res.Points[4].Observations)
	assert.Equal(t, grid.Len(), recorder.points["missing"]+recorder.points["forecast"])
	assert.Equal(t, 2, recorder.failures["degenerate"])
}

func TestForecast_ConstantMeanOnConstantHistory(t *testing.T) {
	settings := m.DefaultForecastSettings()
	settings.Mean = m.MeanConstant
	rf, err := NewRollingForecaster(settings)
	require.NoError(t, err)

	res := rf.Forecast(weeklySeries("SPY", 0.02, 0.02, 0.02, 0.02), gridOf(week(5)))
	require.Len(t, res.Points, 1)
	assert.False(t, res.Points[0].Value.Valid)
	assert.Equal(t, m.FitFailureDegenerate, res.Points[0].Failure)
}

func TestForecast_RescalingRoundTrips(t *testing.T) {
	const v = 0.02
	values := make([]float64, 20)
	for i := range values {
		values[i] = v
	}

	res := newTestForecaster(t).Forecast(weeklySeries("SPY", values...), gridOf(week(21)))
	require.Len(t, res.Points, 1)
	require.True(t, res.Points[0].Value.Valid, "failure %s", res.Points[0].Failure)

	got := res.Points[0].Value.Float64
	assert.Greater(t, got, v/10)
	assert.Less(t, got, v*10)
}

func TestForecast_UnconvergedFitIsMissing(t *testing.T) {
	settings := m.DefaultForecastSettings()
	settings.MaxFunctionEvaluations = 5

	recorder := newCountingRecorder()
	rf, err := NewRollingForecaster(settings, WithRecorder(recorder))
	require.NoError(t, err)

	history := weeklySeries("SPY", volatilityPath(t, 200, 3)...)
	grid := gridOf(week(100), week(150), week(201))

	res := rf.Forecast(history, grid)
	require.Len(t, res.Points, 3)

	for i, p := range res.Points {
		assert.Equal(t, grid.Dates[i], p.Timestamp)
		assert.False(t, p.Value.Valid, "date %d should be missing", i)
		assert.Equal(t, m.FitFailureNonConvergence, p.Failure)
	}
	// later dates are still walked with their own history
	assert.Equal(t, 100, res.Points[0].Observations)
	assert.Equal(t, 150, res.Points[1].Observations)
	assert.Equal(t, 200, res.Points[2].Observations)

	assert.Equal(t, 3, res.Missing())
	assert.Equal(t, 3, recorder.failures[m.FitFailureNonConvergence.Name()])
	assert.Equal(t, 3, recorder.points["missing"])
}

func TestForecast_IsDeterministic(t *testing.T) {
	history := weeklySeries("SPY", volatilityPath(t, 30, 5)...)
	grid := gridOf(week(20), week(25), week(30))
	rf := newTestForecaster(t)

	first := rf.Forecast(history, grid)
	second := rf.Forecast(history, grid)
	assert.Equal(t, first, second)
}

func TestForecast_NormalizesTimeReferences(t *testing.T) {
	values := volatilityPath(t, 15, 6)
	utc := weeklySeries("SPY", values...)

	// same instants, different zones on both sides
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	zoned := weeklySeries("SPY", values...)
	for i := range zoned.Points {
		zoned.Points[i].Timestamp = zoned.Points[i].Timestamp.In(ny)
	}
	zonedGrid := gridOf(week(10).In(time.FixedZone("CET", 3600)), week(16).In(ny))

	rf := newTestForecaster(t)
	want := rf.Forecast(utc, gridOf(week(10), week(16)))
	got := rf.Forecast(zoned, zonedGrid)

	require.Len(t, got.Points, 2)
	for i := range want.Points {
		assert.Equal(t, want.Points[i].Observations, got.Points[i].Observations)
		assert.Equal(t, want.Points[i].Value, got.Points[i].Value)
		assert.Equal(t, time.UTC, got.Points[i].Timestamp.Location())
	}
}

func TestForecast_UnsortedHistoryIsSorted(t *testing.T) {
	values := volatilityPath(t, 12, 8)
	sorted := weeklySeries("SPY", values...)

	reversed := weeklySeries("SPY", values...)
	for i, j := 0, len(reversed.Points)-1; i < j; i, j = i+1, j-1 {
		reversed.Points[i], reversed.Points[j] = reversed.Points[j], reversed.Points[i]
	}

	rf := newTestForecaster(t)
	grid := gridOf(week(6), week(13))
	assert.Equal(t, rf.Forecast(sorted, grid), rf.Forecast(reversed, grid))
	// the caller's series is left as it was
	assert.Equal(t, week(12), reversed.Points[0].Timestamp)
}
