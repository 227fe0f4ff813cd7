package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	m "volcast/models"
)

// PriceSource hands out a price series for [from, to). Implemented by the Alpha Vantage client and the postgres repos.
type PriceSource interface {
	GetPriceHistory(ctx context.Context, symbol string, from, to time.Time) (m.PriceSeries, error)
}

// PriceHistoryFetcher is the upstream used to sync stored prices.
type PriceHistoryFetcher interface {
	GetDailyAdjustedPriceHistory(ctx context.Context, symbol string) (*m.PriceHistoryResult, error)
}

// PriceHistoryStore keeps synced prices.
type PriceHistoryStore interface {
	GetMetaDataBySymbol(ctx context.Context, symbol string) (*m.PriceHistoryMetadata, error)
	SavePriceHistory(ctx context.Context, result *m.PriceHistoryResult) (int64, error)
}

// ForecastStore records forecast runs and their output. Fitted parameters are never stored.
type ForecastStore interface {
	InsertForecastRun(ctx context.Context, run m.ForecastRun) (int32, error)
	InsertForecastPoints(ctx context.Context, points []m.ForecastRunPoint) (int64, error)
	UpdateForecastRunAsSuccess(ctx context.Context, runId int32) error
	UpdateForecastRunAsFailure(ctx context.Context, runId int32, errorMessage string) error
	GetLatestForecastPoints(ctx context.Context, symbol string) ([]*m.ForecastRunPoint, error)
}

// RunRecorder receives per-run metrics. metrics.Recorder implements it.
type RunRecorder interface {
	RecordInstrumentRun(status string)
	RecordLatency(operation string, seconds float64)
}

type ServiceContext struct {
	Context    context.Context
	Forecaster *RollingForecaster
	Horizon    m.ForecastHorizon
	Workers    int

	Prices       PriceSource
	PriceFetcher PriceHistoryFetcher
	PriceStore   PriceHistoryStore
	Store        ForecastStore

	Logger  zerolog.Logger
	Metrics RunRecorder
}

func (sc *ServiceContext) recordInstrumentRun(status string) {
	if sc.Metrics != nil {
		sc.Metrics.RecordInstrumentRun(status)
	}
}

func (sc *ServiceContext) recordLatency(operation string, start time.Time) {
	if sc.Metrics != nil {
		sc.Metrics.RecordLatency(operation, time.Since(start).Seconds())
	}
}
