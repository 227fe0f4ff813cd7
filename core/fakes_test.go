package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	m "volcast/models"
)

type fakePriceSource struct {
	mu       sync.Mutex
	prices   map[string]m.PriceSeries
	errs     map[string]error
	requests []string
}

func (f *fakePriceSource) GetPriceHistory(ctx context.Context, symbol string, from, to time.Time) (m.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, symbol)

	if err, ok := f.errs[symbol]; ok {
		return m.PriceSeries{}, err
	}
	prices, ok := f.prices[symbol]
	if !ok {
		return m.PriceSeries{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return prices.Between(from, to), nil
}

type fakeForecastStore struct {
	mu sync.Mutex

	runs     []m.ForecastRun
	points   []m.ForecastRunPoint
	success  []int32
	failures map[int32]string
	latest   map[string][]*m.ForecastRunPoint

	insertRunErr    error
	insertPointsErr error
	failureCtxErr   error
}

func newFakeForecastStore() *fakeForecastStore {
	return &fakeForecastStore{failures: map[int32]string{}, latest: map[string][]*m.ForecastRunPoint{}}
}

func (f *fakeForecastStore) InsertForecastRun(ctx context.Context, run m.ForecastRun) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertRunErr != nil {
		return 0, f.insertRunErr
	}
	f.runs = append(f.runs, run)
	return int32(len(f.runs)), nil
}

func (f *fakeForecastStore) InsertForecastPoints(ctx context.Context, points []m.ForecastRunPoint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertPointsErr != nil {
		return 0, f.insertPointsErr
	}
	f.points = append(f.points, points...)
	return int64(len(points)), nil
}

func (f *fakeForecastStore) UpdateForecastRunAsSuccess(ctx context.Context, runId int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.success = append(f.success, runId)
	return nil
}

func (f *fakeForecastStore) UpdateForecastRunAsFailure(ctx context.Context, runId int32, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failureCtxErr = ctx.Err()
	f.failures[runId] = errorMessage
	return nil
}

func (f *fakeForecastStore) GetLatestForecastPoints(ctx context.Context, symbol string) ([]*m.ForecastRunPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[symbol], nil
}

type fakePriceFetcher struct {
	result *m.PriceHistoryResult
	err    error
	calls  int
}

func (f *fakePriceFetcher) GetDailyAdjustedPriceHistory(ctx context.Context, symbol string) (*m.PriceHistoryResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePriceStore struct {
	metadata *m.PriceHistoryMetadata
	saved    []*m.PriceHistoryResult
	saveErr  error
}

func (f *fakePriceStore) GetMetaDataBySymbol(ctx context.Context, symbol string) (*m.PriceHistoryMetadata, error) {
	return f.metadata, nil
}

func (f *fakePriceStore) SavePriceHistory(ctx context.Context, result *m.PriceHistoryResult) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = append(f.saved, result)
	return int64(len(result.TimeSeries)), nil
}
