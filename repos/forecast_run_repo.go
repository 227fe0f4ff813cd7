package repos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	m "volcast/models"
	q "volcast/queries"
)

var forecastRunPointColumns = []string{
	"run_id", "symbol", "timestamp", "forecast", "actual", "observations", "failure",
}

func (pg *Postgres) InsertForecastRun(ctx context.Context, run m.ForecastRun) (int32, error) {
	sql := q.Get(q.QueryHelper.Insert.ForecastRun)
	args := pgx.NamedArgs{
		"period":         run.Period,
		"arch_lags":      run.ArchLags,
		"garch_lags":     run.GarchLags,
		"mean_model":     run.MeanModel,
		"rescale_factor": run.RescaleFactor,
		"history_start":  run.HistoryStart,
		"history_end":    run.HistoryEnd,
		"forecast_start": run.ForecastStart,
		"forecast_end":   run.ForecastEnd,
		"symbols":        run.Symbols,
	}

	var runId int32
	if err := pg.db.QueryRow(ctx, sql, args).Scan(&runId); err != nil {
		return 0, fmt.Errorf("error inserting forecast run: %w", err)
	}

	return runId, nil
}

func (pg *Postgres) InsertForecastPoints(ctx context.Context, points []m.ForecastRunPoint) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}

	entries := make([][]any, len(points))
	for i, p := range points {
		entries[i] = []any{
			p.RunId, p.Symbol, m.NormalizeTimestamp(p.Timestamp), p.Forecast.Ptr(), p.Actual.Ptr(), p.Observations, p.Failure,
		}
	}

	return pg.BulkInsert(ctx, "forecast_run_point", forecastRunPointColumns, entries, nil)
}

func (pg *Postgres) UpdateForecastRunAsFailure(ctx context.Context, runId int32, errorMessage string) error {
	cleanErrorMessage := strings.TrimSpace(errorMessage)
	if cleanErrorMessage == "" {
		return fmt.Errorf("error message is required if forecast run is failing, occurred in %d", runId)
	}

	return pg.updateForecastRun(ctx, pgx.NamedArgs{
		"id":            runId,
		"error_message": cleanErrorMessage,
	})
}

func (pg *Postgres) UpdateForecastRunAsSuccess(ctx context.Context, runId int32) error {
	return pg.updateForecastRun(ctx, pgx.NamedArgs{
		"id":            runId,
		"error_message": nil,
	})
}

func (pg *Postgres) updateForecastRun(ctx context.Context, args pgx.NamedArgs) error {
	sql := q.Get(q.QueryHelper.Update.ForecastRun)
	if _, err := pg.db.Exec(ctx, sql, args); err != nil {
		return fmt.Errorf("error updating forecast run: %w", err)
	}
	return nil
}

func (pg *Postgres) GetForecastRunById(ctx context.Context, runId int32) (*m.ForecastRun, error) {
	sql := q.Get(q.QueryHelper.Select.ForecastRunById)
	res, err := QuerySingle[m.ForecastRun](ctx, pg, sql, pgx.NamedArgs{"id": runId})
	if err != nil {
		return nil, fmt.Errorf("unable to get forecast run %d: %w", runId, err)
	}
	return res, nil
}

// GetLatestForecastPoints returns the points of the newest successful run that covered the symbol.
func (pg *Postgres) GetLatestForecastPoints(ctx context.Context, symbol string) ([]*m.ForecastRunPoint, error) {
	sql := q.Get(q.QueryHelper.Select.LatestForecastPointsBySymbol)
	res, err := Query[m.ForecastRunPoint](ctx, pg, sql, pgx.NamedArgs{"symbol": strings.ToUpper(symbol)})
	if err != nil {
		return nil, fmt.Errorf("unable to get latest forecast for %s: %w", symbol, err)
	}
	for _, p := range res {
		p.Timestamp = m.NormalizeTimestamp(p.Timestamp)
	}
	return res, nil
}

func (pg *Postgres) DeleteForecastRun(ctx context.Context, runId int32) error {
	sql := q.Get(q.QueryHelper.Delete.ForecastRun)
	if _, err := pg.db.Exec(ctx, sql, pgx.NamedArgs{"id": runId}); err != nil {
		return fmt.Errorf("error deleting forecast run %d: %w", runId, err)
	}
	return nil
}
