package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ex "volcast/extensions"
	m "volcast/models"
)

var ErrNoSymbols = errors.New("at least one symbol is required")

// RunVolatilityForecast loads prices for the symbols over the configured horizon, runs the rolling forecast
// for each of them and records the run when a store is configured.
// A symbol whose prices cannot be loaded or turned into a series is reported on its own result, the run carries on.
func (sc *ServiceContext) RunVolatilityForecast(symbols []string) ([]*m.InstrumentForecast, error) {
	start := time.Now()
	defer sc.recordLatency("forecast_run", start)

	symbols = ex.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	if sc.Prices == nil {
		return nil, fmt.Errorf("%w: service context has no price source", ErrNotConfigured)
	}
	if sc.Forecaster == nil {
		return nil, fmt.Errorf("%w: service context has no forecaster", ErrNotConfigured)
	}
	if err := sc.Horizon.Validate(); err != nil {
		return nil, fmt.Errorf("error validating forecast horizon: %w", err)
	}

	settings := sc.Forecaster.Settings()
	grid, err := NewForecastGrid(sc.Horizon.ForecastStart, sc.Horizon.ForecastEnd, settings.Period)
	if err != nil {
		return nil, err
	}

	logger := sc.Logger.With().Strs("symbols", symbols).Logger()
	logger.Info().
		Str("history", fmt.Sprintf("%s..%s", ex.FmtShort(sc.Horizon.HistoryStart), ex.FmtShort(sc.Horizon.HistoryEnd))).
		Str("forecast", fmt.Sprintf("%s..%s", ex.FmtShort(sc.Horizon.ForecastStart), ex.FmtShort(sc.Horizon.ForecastEnd))).
		Msg("received request to run volatility forecast")

	var runId int32
	if sc.Store != nil {
		runId, err = sc.Store.InsertForecastRun(sc.Context, m.NewForecastRun(settings, sc.Horizon, symbols))
		if err != nil {
			logger.Error().Err(err).Msg("error inserting forecast run")
			return nil, err
		}
		logger = logger.With().Int32("run_id", runId).Logger()
	}

	logger.Info().Dur("elapsed", time.Since(start)).Msg("loading price history")
	inputs, failed := sc.loadInstrumentInputs(symbols)

	logger.Info().Dur("elapsed", time.Since(start)).Msg("running rolling forecasts")
	forecasts, err := sc.RunInstrumentForecasts(inputs, grid)
	if err != nil {
		logger.Error().Err(err).Msg("error running rolling forecasts")
		return nil, sc.markForecastRunAsFailure(runId, err)
	}

	res := mergeInstrumentForecasts(symbols, forecasts, failed)

	if sc.Store != nil {
		points := m.ForecastRunPoints(runId, settings.Period, res)
		if _, err := sc.Store.InsertForecastPoints(sc.Context, points); err != nil {
			logger.Error().Err(err).Msg("error inserting forecast points")
			return nil, sc.markForecastRunAsFailure(runId, err)
		}

		if err := sc.Store.UpdateForecastRunAsSuccess(sc.Context, runId); err != nil {
			// if we cant mark it as success we most likely cant mark it as failure either
			logger.Error().Err(err).Msg("error updating forecast run as success")
			return nil, err
		}
	}

	logger.Info().Int("failed", len(failed)).Dur("elapsed", time.Since(start)).Msg("volatility forecast completed")
	return res, nil
}

// ForecastPrices runs the rolling forecast on price series the caller already has. Nothing is stored.
func (sc *ServiceContext) ForecastPrices(inputs []InstrumentInput, forecastStart, forecastEnd time.Time) ([]*m.InstrumentForecast, error) {
	if sc.Forecaster == nil {
		return nil, fmt.Errorf("%w: service context has no forecaster", ErrNotConfigured)
	}

	grid, err := NewForecastGrid(forecastStart, forecastEnd, sc.Forecaster.Settings().Period)
	if err != nil {
		return nil, err
	}

	return sc.RunInstrumentForecasts(inputs, grid)
}

// loadInstrumentInputs fetches each symbol once over both windows and splits it. Symbols are fetched in
// order, the upstream is rate limited anyway.
func (sc *ServiceContext) loadInstrumentInputs(symbols []string) ([]InstrumentInput, map[string]*m.InstrumentForecast) {
	h := sc.Horizon
	from := h.HistoryStart
	if h.ForecastStart.Before(from) {
		from = h.ForecastStart
	}
	to := h.ForecastEnd
	if h.HistoryEnd.After(to) {
		to = h.HistoryEnd
	}

	inputs := make([]InstrumentInput, 0, len(symbols))
	failed := make(map[string]*m.InstrumentForecast)
	for _, symbol := range symbols {
		prices, err := sc.Prices.GetPriceHistory(sc.Context, symbol, from, to)
		if err != nil {
			sc.Logger.Warn().Err(err).Str("symbol", symbol).Msg("unable to load price history")
			failed[symbol] = &m.InstrumentForecast{Symbol: symbol, Err: err, Error: err.Error()}
			sc.recordInstrumentRun("failed")
			continue
		}
		prices.Symbol = symbol

		inputs = append(inputs, InstrumentInput{
			Symbol:     symbol,
			Historical: prices.Between(m.NormalizeTimestamp(h.HistoryStart), m.NormalizeTimestamp(h.HistoryEnd)),
			Actual:     prices.Between(m.NormalizeTimestamp(h.ForecastStart), m.NormalizeTimestamp(h.ForecastEnd)),
		})
	}

	return inputs, failed
}

// mergeInstrumentForecasts puts the results back in the order the symbols were requested in.
func mergeInstrumentForecasts(symbols []string, forecasts []*m.InstrumentForecast, failed map[string]*m.InstrumentForecast) []*m.InstrumentForecast {
	bySymbol := make(map[string]*m.InstrumentForecast, len(forecasts)+len(failed))
	for _, f := range forecasts {
		if f != nil {
			bySymbol[f.Symbol] = f
		}
	}
	for symbol, f := range failed {
		bySymbol[symbol] = f
	}

	res := make([]*m.InstrumentForecast, 0, len(symbols))
	for _, symbol := range symbols {
		if f, ok := bySymbol[symbol]; ok {
			res = append(res, f)
		}
	}
	return res
}

func (sc *ServiceContext) markForecastRunAsFailure(runId int32, cause error) error {
	if sc.Store == nil {
		return cause
	}
	// a cancelled run still gets recorded
	ctx := context.WithoutCancel(sc.Context)
	if err := sc.Store.UpdateForecastRunAsFailure(ctx, runId, strings.TrimSpace(cause.Error())); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
