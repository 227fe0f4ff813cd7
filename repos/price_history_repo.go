package repos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	ex "volcast/extensions"
	m "volcast/models"
	q "volcast/queries"
)

var priceHistoryColumns = []string{
	"source_id", "timestamp", "close", "adjusted_close", "volume", "dividend_amount",
}

// GetPriceHistory returns the stored adjusted closes in [from, to), ascending.
func (pg *Postgres) GetPriceHistory(ctx context.Context, symbol string, from, to time.Time) (m.PriceSeries, error) {
	sql := q.Get(q.QueryHelper.Select.PriceHistoryBySymbol)
	args := pgx.NamedArgs{
		"symbol": strings.ToUpper(symbol),
		"from":   m.NormalizeTimestamp(from),
		"to":     m.NormalizeTimestamp(to),
	}

	rows, err := Query[m.PricePoint](ctx, pg, sql, args)
	if err != nil {
		return m.PriceSeries{}, fmt.Errorf("unable to query price history by symbol (%s): %w", symbol, err)
	}

	res := m.PriceSeries{Symbol: symbol, Points: make([]m.PricePoint, len(rows))}
	for i, r := range rows {
		res.Points[i] = m.PricePoint{Timestamp: m.NormalizeTimestamp(r.Timestamp), Price: r.Price}
	}
	return res, nil
}

// GetMostRecentTimestampForSymbol is nil when nothing is stored for the symbol.
func (pg *Postgres) GetMostRecentTimestampForSymbol(ctx context.Context, symbol string, tx pgx.Tx) (*time.Time, error) {
	sql := q.Get(q.QueryHelper.Select.MostRecentTimestampBySymbol)

	var res *time.Time
	if err := pg.conn(tx).QueryRow(ctx, sql, pgx.NamedArgs{"symbol": strings.ToUpper(symbol)}).Scan(&res); err != nil {
		return nil, fmt.Errorf("error getting most recent timestamp for %s: %w", symbol, err)
	}
	return res, nil
}

func (pg *Postgres) InsertPriceHistory(ctx context.Context, data []*m.PriceHistoryData, sourceId int32, tx pgx.Tx) (int64, error) {
	entries := make([][]any, len(data))
	for i, ent := range data {
		entries[i] = []any{
			sourceId, m.NormalizeTimestamp(ent.Timestamp), ent.Close.Ptr(), ent.AdjustedClose.Ptr(),
			ent.Volume.Ptr(), ent.DividendAmount.Ptr(),
		}
	}

	return pg.BulkInsert(ctx, "price_history", priceHistoryColumns, entries, tx)
}

// SavePriceHistory stores the rows newer than what is already stored and moves the last refreshed date,
// all in one transaction. A symbol seen for the first time gets its metadata row here.
func (pg *Postgres) SavePriceHistory(ctx context.Context, result *m.PriceHistoryResult) (int64, error) {
	if result == nil || result.Metadata == nil {
		return 0, fmt.Errorf("price history result has no metadata")
	}
	symbol := strings.ToUpper(result.Metadata.Symbol)

	tx, err := pg.GetTransaction(ctx)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	md, err := pg.GetMetaDataBySymbol(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if md == nil {
		md = &m.PriceHistoryMetadata{
			Symbol:        symbol,
			LastRefreshed: result.Metadata.LastRefreshed,
		}
		if err := pg.InsertNewMetaData(ctx, md, tx); err != nil {
			return 0, fmt.Errorf("error adding %s to db: %w", symbol, err)
		}
	}

	mrd, err := pg.GetMostRecentTimestampForSymbol(ctx, symbol, tx)
	if err != nil {
		return 0, err
	}

	f := func(d *m.PriceHistoryData) bool { return mrd == nil || d.Timestamp.After(*mrd) }
	toInsert := ex.FilterMultiplePtr(result.TimeSeries, f)

	var ra int64
	if len(toInsert) > 0 {
		ra, err = pg.InsertPriceHistory(ctx, toInsert, md.Id, tx)
		if err != nil {
			return 0, fmt.Errorf("error inserting price history for %s: %w", symbol, err)
		}
	}

	if err := pg.UpdateLastRefreshedDate(ctx, symbol, result.Metadata.LastRefreshed, tx); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("error committing price history for %s: %w", symbol, err)
	}

	return ra, nil
}
