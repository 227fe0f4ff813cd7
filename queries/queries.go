package queries

import (
	"embed"
	"fmt"
)

// the sql files are compiled into the binary, paths below are relative to this folder
//
//go:embed delete/*.sql insert/*.sql select/*.sql update/*.sql
var Files embed.FS

type DeleteQueries struct {
	ForecastRun          string
	PriceHistoryBySymbol string
}

type InsertQueries struct {
	ForecastRun string
	Metadata    string
}

type SelectQueries struct {
	ForecastRunById              string
	LatestForecastPointsBySymbol string
	MetaDataBySymbol             string
	MostRecentTimestampBySymbol  string
	PriceHistoryBySymbol         string
}

type UpdateQueries struct {
	ForecastRun       string
	LastRefreshedDate string
}

type QueryHelperStruct struct {
	Delete DeleteQueries
	Insert InsertQueries
	Select SelectQueries
	Update UpdateQueries
}

var QueryHelper = QueryHelperStruct{
	Delete: DeleteQueries{
		ForecastRun:          "delete/forecast_run.sql",
		PriceHistoryBySymbol: "delete/price_history_by_symbol.sql",
	},
	Insert: InsertQueries{
		ForecastRun: "insert/forecast_run.sql",
		Metadata:    "insert/metadata.sql",
	},
	Select: SelectQueries{
		ForecastRunById:              "select/forecast_run_by_id.sql",
		LatestForecastPointsBySymbol: "select/latest_forecast_points_by_symbol.sql",
		MetaDataBySymbol:             "select/meta_data_by_symbol.sql",
		MostRecentTimestampBySymbol:  "select/most_recent_timestamp_by_symbol.sql",
		PriceHistoryBySymbol:         "select/price_history_by_symbol.sql",
	},
	Update: UpdateQueries{
		ForecastRun:       "update/forecast_run.sql",
		LastRefreshedDate: "update/last_refreshed_date.sql",
	},
}

// Get panics on a missing file, every path in QueryHelper is checked by the package tests.
func Get(path string) string {
	content, err := Files.ReadFile(path)
	if err != nil {
		panic(fmt.Errorf("error reading query file: %w", err))
	}

	return string(content)
}
