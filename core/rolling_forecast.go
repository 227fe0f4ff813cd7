package core

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"

	ex "volcast/extensions"
	m "volcast/models"
)

// ForecastRecorder receives per-date outcomes of a rolling forecast. metrics.Recorder implements it.
type ForecastRecorder interface {
	RecordForecastPoint(outcome string)
	RecordFitFailure(kind string)
	RecordFitDuration(seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordForecastPoint(string) {}
func (nopRecorder) RecordFitFailure(string)    {}
func (nopRecorder) RecordFitDuration(float64)  {}

// RollingForecaster walks a forecast grid and refits the variance model at every date on all history up to it.
// It keeps no state between calls, a single forecaster can be shared by concurrent instrument runs.
type RollingForecaster struct {
	settings m.ForecastSettings
	logger   zerolog.Logger
	recorder ForecastRecorder
}

type ForecasterOption func(*RollingForecaster)

func WithLogger(logger zerolog.Logger) ForecasterOption {
	return func(rf *RollingForecaster) {
		rf.logger = logger
	}
}

func WithRecorder(recorder ForecastRecorder) ForecasterOption {
	return func(rf *RollingForecaster) {
		if recorder != nil {
			rf.recorder = recorder
		}
	}
}

func NewRollingForecaster(settings m.ForecastSettings, opts ...ForecasterOption) (*RollingForecaster, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("error validating forecast settings: %w", err)
	}

	rf := &RollingForecaster{
		settings: settings,
		logger:   zerolog.Nop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf, nil
}

func (rf *RollingForecaster) Settings() m.ForecastSettings {
	return rf.settings
}

// NewForecastGrid returns the period labels in [start, end).
func NewForecastGrid(start, end time.Time, period m.Period) (m.ForecastGrid, error) {
	start = m.NormalizeTimestamp(start)
	end = m.NormalizeTimestamp(end)
	if end.Before(start) {
		return m.ForecastGrid{}, fmt.Errorf("forecast end %s is before forecast start %s", ex.FmtLong(end), ex.FmtLong(start))
	}

	grid := m.ForecastGrid{Period: period, Dates: []time.Time{}}
	for d := period.PeriodEnd(start); d.Before(end); d = period.Next(d) {
		grid.Dates = append(grid.Dates, d)
	}
	return grid, nil
}

// Forecast produces one point per grid date. A date with no history or a failed fit gets a missing value,
// the walk always covers the whole grid.
func (rf *RollingForecaster) Forecast(history m.VolatilitySeries, grid m.ForecastGrid) m.ForecastResult {
	res := m.ForecastResult{
		Symbol: history.Symbol,
		Points: make([]m.ForecastPoint, 0, grid.Len()),
	}

	points := history.Points
	byTimestamp := func(a, b m.VolatilityPoint) int {
		return m.NormalizeTimestamp(a.Timestamp).Compare(m.NormalizeTimestamp(b.Timestamp))
	}
	if !slices.IsSortedFunc(points, byTimestamp) {
		points = slices.Clone(points)
		slices.SortStableFunc(points, byTimestamp)
	}

	// observations are appended in timestamp order and the cursor never rewinds
	observed := make([]float64, 0, len(points))
	observedAt := make([]time.Time, 0, len(points))
	cursor := 0

	for _, date := range grid.Dates {
		date = m.NormalizeTimestamp(date)

		for cursor < len(points) && !m.NormalizeTimestamp(points[cursor].Timestamp).After(date) {
			if v := points[cursor].Value; v.Valid && !math.IsNaN(v.Float64) && !math.IsInf(v.Float64, 0) {
				observed = append(observed, v.Float64)
				observedAt = append(observedAt, m.NormalizeTimestamp(points[cursor].Timestamp))
			}
			cursor++
		}

		// only matters for a grid that is not strictly increasing, a date never sees history after it
		n, _ := slices.BinarySearchFunc(observedAt, date, func(ts, target time.Time) int {
			if ts.After(target) {
				return 1
			}
			return -1
		})

		res.Points = append(res.Points, rf.forecastAt(date, observed[:n]))
	}

	rf.logger.Debug().
		Str("symbol", history.Symbol).
		Int("grid", grid.Len()).
		Int("history", history.Len()).
		Int("missing", res.Missing()).
		Msg("rolling forecast finished")

	return res
}

// forecastAt fits a fresh model on observed and forecasts one step ahead. The model does not outlive this call.
func (rf *RollingForecaster) forecastAt(date time.Time, observed []float64) m.ForecastPoint {
	point := m.ForecastPoint{
		Timestamp:    date,
		Observations: len(observed),
	}

	if len(observed) < 1 {
		point.Failure = m.FitFailureEmptyHistory
		rf.recorder.RecordForecastPoint("missing")
		rf.recorder.RecordFitFailure(point.Failure.Name())
		return point
	}

	value, err := rf.forecastValue(observed)
	if err != nil {
		point.Failure = fitFailureKind(err)
		rf.recorder.RecordForecastPoint("missing")
		rf.recorder.RecordFitFailure(point.Failure.Name())
		return point
	}

	point.Value = null.FloatFrom(value)
	rf.recorder.RecordForecastPoint("forecast")
	return point
}

func (rf *RollingForecaster) forecastValue(observed []float64) (float64, error) {
	scale := rf.settings.RescaleFactor
	rescaled := make([]float64, len(observed))
	for i, v := range observed {
		rescaled[i] = v * scale
	}

	start := time.Now()
	fit, err := fitGarch(rescaled, rf.settings)
	rf.recorder.RecordFitDuration(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}

	variance, err := fit.forecastVariance()
	if err != nil {
		return 0, err
	}

	res := math.Sqrt(variance) / scale
	if math.IsNaN(res) || math.IsInf(res, 0) {
		return 0, newModelFitError(m.FitFailureNumerical, "forecast volatility is not finite")
	}
	return res, nil
}
