package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	ex "volcast/extensions"
	m "volcast/models"
)

const (
	Workers   = 8
	BatchSize = 1
)

// InstrumentInput is the price history for one instrument. Actual covers the forecast window and may be empty.
type InstrumentInput struct {
	Symbol     string
	Historical m.PriceSeries
	Actual     m.PriceSeries
}

type job struct {
	start int
	end   int
}

func GetNumberOfJobsAndWorkers(instruments int, batchSize int, workers int) ([]job, int) {
	if instruments <= 0 || batchSize <= 0 || workers <= 0 {
		return []job{}, 0
	}

	nJobs := int(math.Ceil(float64(instruments) / float64(batchSize)))
	nWorkers := ex.Min(nJobs, workers)

	// end is exclusive, the last job is truncated to the number of instruments
	jobs := make([]job, nJobs)
	for i := range nJobs {
		jobs[i] = job{
			start: i * batchSize,
			end:   ex.Min((i+1)*batchSize, instruments),
		}
	}

	return jobs, nWorkers
}

// RunInstrumentForecasts runs the rolling forecast for every instrument on the shared grid.
// Instruments are independent, a failure in one is recorded on its result and the others still run.
// The only error returned is the cancellation of the service context.
func (sc *ServiceContext) RunInstrumentForecasts(inputs []InstrumentInput, grid m.ForecastGrid) ([]*m.InstrumentForecast, error) {
	if sc.Forecaster == nil {
		return nil, fmt.Errorf("%w: service context has no forecaster", ErrNotConfigured)
	}

	res := make([]*m.InstrumentForecast, len(inputs))

	workers := sc.Workers
	if workers <= 0 {
		workers = Workers
	}
	jobs, nWorkers := GetNumberOfJobsAndWorkers(len(inputs), BatchSize, workers)

	sc.Logger.Info().
		Int("instruments", len(inputs)).
		Int("grid", grid.Len()).
		Str("period", grid.Period.Name()).
		Int("workers", nWorkers).
		Msg("starting rolling volatility forecasts")

	jobsChannel := make(chan job, len(jobs))
	for _, v := range jobs {
		jobsChannel <- v
	}
	close(jobsChannel)

	// derived from the service context so a cancelled request stops the remaining instruments
	g, ctx := errgroup.WithContext(sc.Context)

	for range nWorkers {
		g.Go(func() error {
			for j := range jobsChannel {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				for i := j.start; i < j.end; i++ {
					res[i] = sc.forecastInstrument(inputs[i], grid)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return res, nil
}

func (sc *ServiceContext) forecastInstrument(input InstrumentInput, grid m.ForecastGrid) *m.InstrumentForecast {
	start := time.Now()
	defer sc.recordLatency("instrument_forecast", start)

	period := grid.Period
	res := &m.InstrumentForecast{Symbol: input.Symbol}

	historical, err := BuildVolatilitySeries(input.Historical, period)
	if err != nil {
		sc.Logger.Warn().Err(err).Str("symbol", input.Symbol).Msg("skipping instrument, unable to build historical volatility")
		res.Err = err
		res.Error = err.Error()
		sc.recordInstrumentRun("failed")
		return res
	}
	res.Historical = historical

	// the realized series over the forecast window is optional, without it there is nothing to evaluate against
	if len(input.Actual.Points) > 0 {
		actual, err := BuildVolatilitySeries(input.Actual, period)
		switch {
		case errors.Is(err, ErrInsufficientData):
			sc.Logger.Debug().Str("symbol", input.Symbol).Msg("not enough prices in the forecast window for an actual series")
		case err != nil:
			sc.Logger.Warn().Err(err).Str("symbol", input.Symbol).Msg("unable to build actual volatility")
		default:
			res.Actual = actual
		}
	}

	combined := CombineVolatilitySeries(res.Historical, res.Actual)
	forecast := sc.Forecaster.Forecast(*combined, grid)
	res.Forecast = &forecast

	evaluation := EvaluateForecast(forecast, res.Actual, period)
	res.Evaluation = &evaluation

	failures := zerolog.Dict()
	for kind, n := range forecast.FailureCounts() {
		failures.Int(kind.Name(), n)
	}

	sc.Logger.Info().
		Str("symbol", input.Symbol).
		Int("points", len(forecast.Points)).
		Int("missing", forecast.Missing()).
		Dict("failures", failures).
		Int("compared", evaluation.Compared).
		Dur("elapsed", time.Since(start)).
		Msg("instrument forecast complete")

	sc.recordInstrumentRun("success")
	return res
}
