package repos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	m "volcast/models"
	q "volcast/queries"
)

// GetMetaDataBySymbol returns nil without an error when the symbol has never been synced.
func (pg *Postgres) GetMetaDataBySymbol(ctx context.Context, symbol string) (*m.PriceHistoryMetadata, error) {
	sql := q.Get(q.QueryHelper.Select.MetaDataBySymbol)
	args := pgx.NamedArgs{
		"symbol": strings.ToUpper(symbol),
	}

	res, err := Query[m.PriceHistoryMetadata](ctx, pg, sql, args)
	if err != nil {
		return nil, fmt.Errorf("unable to query metadata by symbol (%s): %w", symbol, err)
	}

	if len(res) == 0 {
		return nil, nil
	}

	res[0].LastRefreshed = m.NormalizeTimestamp(res[0].LastRefreshed)
	return res[0], nil
}

func (pg *Postgres) InsertNewMetaData(ctx context.Context, metadata *m.PriceHistoryMetadata, tx pgx.Tx) error {
	sql := q.Get(q.QueryHelper.Insert.Metadata)
	args := pgx.NamedArgs{
		"symbol":         strings.ToUpper(metadata.Symbol),
		"last_refreshed": metadata.LastRefreshed,
	}

	if err := pg.conn(tx).QueryRow(ctx, sql, args).Scan(&metadata.Id); err != nil {
		return fmt.Errorf("error inserting new metadata: %w", err)
	}

	return nil
}

func (pg *Postgres) UpdateLastRefreshedDate(ctx context.Context, symbol string, lastRefreshed time.Time, tx pgx.Tx) error {
	sql := q.Get(q.QueryHelper.Update.LastRefreshedDate)
	args := pgx.NamedArgs{
		"last_refreshed": lastRefreshed,
		"symbol":         strings.ToUpper(symbol),
	}

	if _, err := pg.conn(tx).Exec(ctx, sql, args); err != nil {
		return fmt.Errorf("error updating last refreshed date for %s: %w", symbol, err)
	}
	return nil
}

// DeletePriceHistoryBySymbol drops the metadata row, the prices go with it.
func (pg *Postgres) DeletePriceHistoryBySymbol(ctx context.Context, symbol string) error {
	sql := q.Get(q.QueryHelper.Delete.PriceHistoryBySymbol)
	if _, err := pg.db.Exec(ctx, sql, pgx.NamedArgs{"symbol": strings.ToUpper(symbol)}); err != nil {
		return fmt.Errorf("error deleting price history for %s: %w", symbol, err)
	}
	return nil
}
