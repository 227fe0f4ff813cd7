package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ex "volcast/extensions"
)

const RefreshInterval = 7 * 24 * time.Hour

var ErrRecentlyRefreshed = errors.New("price history was refreshed recently")

// SyncSymbolPriceHistory pulls the daily adjusted series for a symbol and stores what is new.
// It returns the last refreshed date now on record. A symbol refreshed within RefreshInterval is left
// alone unless force is set.
func (sc *ServiceContext) SyncSymbolPriceHistory(symbol string, force bool) (time.Time, error) {
	start := time.Now()
	defer sc.recordLatency("price_sync", start)

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return time.Time{}, ErrNoSymbols
	}
	if sc.PriceFetcher == nil || sc.PriceStore == nil {
		return time.Time{}, fmt.Errorf("%w: price sync needs a fetcher and a store", ErrNotConfigured)
	}

	md, err := sc.PriceStore.GetMetaDataBySymbol(sc.Context, symbol)
	if err != nil {
		return time.Time{}, fmt.Errorf("error determining if meta data exists in sync data: %w", err)
	}

	if md != nil && !force {
		cutoffDate := time.Now().Add(-RefreshInterval)
		if md.LastRefreshed.After(cutoffDate) {
			return md.LastRefreshed, fmt.Errorf("%w (%s), will not sync symbol %s", ErrRecentlyRefreshed, ex.FmtShort(md.LastRefreshed), symbol)
		}
	}

	if md == nil {
		sc.Logger.Info().Str("symbol", symbol).Msg("adding new symbol to db")
	}

	res, err := sc.PriceFetcher.GetDailyAdjustedPriceHistory(sc.Context, symbol)
	if err != nil {
		return time.Time{}, err
	}
	if res.Metadata == nil {
		return time.Time{}, fmt.Errorf("price history for %s came back without metadata", symbol)
	}
	res.Metadata.Symbol = symbol

	ra, err := sc.PriceStore.SavePriceHistory(sc.Context, res)
	if err != nil {
		return time.Time{}, fmt.Errorf("error saving price history for %s: %w", symbol, err)
	}

	sc.Logger.Info().
		Str("symbol", symbol).
		Int("received", len(res.TimeSeries)).
		Int64("inserted", ra).
		Dur("elapsed", time.Since(start)).
		Msg("synced price history")

	return res.Metadata.LastRefreshed, nil
}
