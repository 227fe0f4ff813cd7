package core

import (
	"math"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"

	m "volcast/models"
)

func TestEvaluateForecast_ComparesWithTheFollowingPeriod(t *testing.T) {
	forecast := m.ForecastResult{Symbol: "SPY", Points: []m.ForecastPoint{
		{Timestamp: week(1), Value: null.FloatFrom(0.02)},
		{Timestamp: week(2)},
		{Timestamp: week(3), Value: null.FloatFrom(0.03)},
		// nothing realized after the last date
		{Timestamp: week(4), Value: null.FloatFrom(0.04)},
	}}
	actual := weeklySeries("SPY", math.NaN(), 0.025, 0.02, 0.02)

	res := EvaluateForecast(forecast, &actual, m.PeriodWeekly)

	assert.Equal(t, 2, res.Compared)
	assert.InDelta(t, 0.0075, res.MAE.Float64, 1e-12)
	assert.InDelta(t, 0.0025, res.Bias.Float64, 1e-12)
	assert.InDelta(t, math.Sqrt((0.005*0.005+0.01*0.01)/2), res.RMSE.Float64, 1e-12)
}

func TestEvaluateForecast_NothingToCompare(t *testing.T) {
	forecast := m.ForecastResult{Points: []m.ForecastPoint{{Timestamp: week(1), Value: null.FloatFrom(0.02)}}}

	res := EvaluateForecast(forecast, nil, m.PeriodWeekly)
	assert.Zero(t, res.Compared)
	assert.False(t, res.MAE.Valid)

	// the realized value sits on the forecast date itself, not the period after it
	actual := weeklySeries("SPY", 0.02)
	res = EvaluateForecast(forecast, &actual, m.PeriodWeekly)
	assert.Zero(t, res.Compared)
	assert.False(t, res.RMSE.Valid)
	assert.False(t, res.Bias.Valid)
}
