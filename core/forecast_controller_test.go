package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "volcast/models"
)

var testHorizon = m.ForecastHorizon{
	HistoryStart:  historyStart,
	HistoryEnd:    forecastStart,
	ForecastStart: forecastStart,
	ForecastEnd:   forecastEnd,
}

func newControllerContext(t *testing.T, ctx context.Context) (*ServiceContext, *fakePriceSource, *fakeForecastStore) {
	t.Helper()
	sc, _ := newTestServiceContext(t, ctx)
	sc.Horizon = testHorizon

	prices := &fakePriceSource{
		prices: map[string]m.PriceSeries{
			"SPY": generateMockPrices(t, "SPY", historyStart, 240, 1),
			"QQQ": generateMockPrices(t, "QQQ", historyStart, 240, 2),
		},
		errs: map[string]error{"DOWN": errors.New("upstream unavailable")},
	}
	store := newFakeForecastStore()

	sc.Prices = prices
	sc.Store = store
	return sc, prices, store
}

func TestRunVolatilityForecast_RecordsTheRun(t *testing.T) {
	sc, prices, store := newControllerContext(t, context.Background())

	res, err := sc.RunVolatilityForecast([]string{" qqq", "DOWN", "spy", "QQQ"})
	require.NoError(t, err)

	// normalized, deduplicated and in request order
	require.Len(t, res, 3)
	assert.Equal(t, "QQQ", res[0].Symbol)
	assert.Equal(t, "DOWN", res[1].Symbol)
	assert.Equal(t, "SPY", res[2].Symbol)
	assert.Equal(t, []string{"QQQ", "DOWN", "SPY"}, prices.requests)

	assert.True(t, res[1].Failed())
	assert.Contains(t, res[1].Error, "upstream unavailable")
	assert.False(t, res[0].Failed())
	assert.False(t, res[2].Failed())

	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, []string{"QQQ", "DOWN", "SPY"}, run.Symbols)
	assert.Equal(t, "weekly", run.Period)
	assert.Equal(t, "zero", run.MeanModel)
	assert.Equal(t, forecastStart, run.ForecastStart)

	grid, err := NewForecastGrid(forecastStart, forecastEnd, m.PeriodWeekly)
	require.NoError(t, err)
	assert.Len(t, store.points, 2*grid.Len())
	for _, p := range store.points {
		assert.Equal(t, int32(1), p.RunId)
	}
	assert.Equal(t, []int32{1}, store.success)
	assert.Empty(t, store.failures)
}

func TestRunVolatilityForecast_WithoutStore(t *testing.T) {
	sc, _, _ := newControllerContext(t, context.Background())
	sc.Store = nil

	res, err := sc.RunVolatilityForecast([]string{"SPY"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.NotNil(t, res[0].Forecast)
}

func TestRunVolatilityForecast_ValidatesInputs(t *testing.T) {
	sc, _, _ := newControllerContext(t, context.Background())

	_, err := sc.RunVolatilityForecast([]string{" ", ""})
	assert.ErrorIs(t, err, ErrNoSymbols)

	noPrices := *sc
	noPrices.Prices = nil
	_, err = noPrices.RunVolatilityForecast([]string{"SPY"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	badHorizon := *sc
	badHorizon.Horizon.ForecastEnd = badHorizon.Horizon.ForecastStart
	_, err = badHorizon.RunVolatilityForecast([]string{"SPY"})
	assert.Error(t, err)
}

func TestRunVolatilityForecast_PointInsertFailureMarksRunAsFailed(t *testing.T) {
	sc, _, store := newControllerContext(t, context.Background())
	store.insertPointsErr = errors.New("copy failed")

	res, err := sc.RunVolatilityForecast([]string{"SPY"})
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "copy failed")

	assert.Equal(t, "copy failed", store.failures[1])
	assert.Empty(t, store.success)
}

func TestRunVolatilityForecast_CancelledRunIsStillRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sc, _, store := newControllerContext(t, ctx)
	cancel()

	_, err := sc.RunVolatilityForecast([]string{"SPY"})
	assert.ErrorIs(t, err, context.Canceled)

	require.Contains(t, store.failures, int32(1))
	assert.NoError(t, store.failureCtxErr)
}

func TestRunVolatilityForecast_RunInsertFailure(t *testing.T) {
	sc, prices, store := newControllerContext(t, context.Background())
	store.insertRunErr = errors.New("no connection")

	_, err := sc.RunVolatilityForecast([]string{"SPY"})
	assert.ErrorContains(t, err, "no connection")
	assert.Empty(t, prices.requests)
}

func TestForecastPrices_StoresNothing(t *testing.T) {
	sc, prices, store := newControllerContext(t, context.Background())

	res, err := sc.ForecastPrices([]InstrumentInput{instrumentInput(t, "SPY", 1)}, forecastStart, forecastEnd)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.NotNil(t, res[0].Forecast)

	assert.Empty(t, prices.requests)
	assert.Empty(t, store.runs)

	_, err = sc.ForecastPrices(nil, forecastEnd, forecastStart)
	assert.Error(t, err)
}
