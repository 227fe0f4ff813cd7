package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// ForecastRun is one row of forecast_run. A run stays pending until it is marked as success or failure.
type ForecastRun struct {
	Id            int32       `db:"id"`
	Period        string      `db:"period"`
	ArchLags      int         `db:"arch_lags"`
	GarchLags     int         `db:"garch_lags"`
	MeanModel     string      `db:"mean_model"`
	RescaleFactor float64     `db:"rescale_factor"`
	HistoryStart  time.Time   `db:"history_start"`
	HistoryEnd    time.Time   `db:"history_end"`
	ForecastStart time.Time   `db:"forecast_start"`
	ForecastEnd   time.Time   `db:"forecast_end"`
	Symbols       []string    `db:"symbols"`
	ErrorMessage  null.String `db:"error_message"`
	CreatedAt     time.Time   `db:"created_at"`
	CompletedAt   null.Time   `db:"completed_at"`
}

// ForecastRunPoint is one row of forecast_run_point, the forecast for one symbol at one grid date.
type ForecastRunPoint struct {
	RunId        int32      `json:"runId" db:"run_id"`
	Symbol       string     `json:"symbol" db:"symbol"`
	Timestamp    time.Time  `json:"timestamp" db:"timestamp"`
	Forecast     null.Float `json:"forecast" db:"forecast"`
	Actual       null.Float `json:"actual" db:"actual"`
	Observations int        `json:"observations" db:"observations"`
	Failure      string     `json:"failure" db:"failure"`
}

func NewForecastRun(settings ForecastSettings, horizon ForecastHorizon, symbols []string) ForecastRun {
	return ForecastRun{
		Period:        settings.Period.Name(),
		ArchLags:      settings.ArchLags,
		GarchLags:     settings.GarchLags,
		MeanModel:     settings.Mean.Name(),
		RescaleFactor: settings.RescaleFactor,
		HistoryStart:  NormalizeTimestamp(horizon.HistoryStart),
		HistoryEnd:    NormalizeTimestamp(horizon.HistoryEnd),
		ForecastStart: NormalizeTimestamp(horizon.ForecastStart),
		ForecastEnd:   NormalizeTimestamp(horizon.ForecastEnd),
		Symbols:       symbols,
	}
}

// ForecastRunPoints flattens the forecasts of a run into rows, pairing each forecast with the
// realized value of the period it predicts.
func ForecastRunPoints(runId int32, period Period, forecasts []*InstrumentForecast) []ForecastRunPoint {
	res := []ForecastRunPoint{}
	for _, f := range forecasts {
		if f == nil || f.Forecast == nil {
			continue
		}
		for _, p := range f.Forecast.Points {
			row := ForecastRunPoint{
				RunId:        runId,
				Symbol:       f.Symbol,
				Timestamp:    p.Timestamp,
				Forecast:     p.Value,
				Observations: p.Observations,
				Failure:      p.Failure.Name(),
			}
			if f.Actual != nil {
				row.Actual = f.Actual.ValueAt(period.Next(p.Timestamp))
			}
			res = append(res, row)
		}
	}
	return res
}
