package export

import (
	"time"

	m "volcast/models"
)

const (
	SeriesHistorical = "historical"
	SeriesActual     = "actual"
	SeriesForecast   = "forecast"
)

// Row is one value of one series for one symbol, the flat shape the charting side reads.
// Missing values are kept as rows with a nil value.
type Row struct {
	Symbol       string   `json:"symbol" parquet:"symbol"`
	Series       string   `json:"series" parquet:"series"`
	Period       string   `json:"period" parquet:"period"`
	Date         string   `json:"date" parquet:"date"`
	TimestampMs  int64    `json:"timestampMs" parquet:"timestamp_ms"`
	Value        *float64 `json:"value" parquet:"value,optional"`
	Annualized   *float64 `json:"annualized" parquet:"annualized,optional"`
	Observations int32    `json:"observations,omitempty" parquet:"observations"`
	Failure      string   `json:"failure,omitempty" parquet:"failure"`
}

// Rows flattens the historical, actual and forecast series of every instrument. Instruments that failed
// before producing a series contribute nothing.
func Rows(forecasts []*m.InstrumentForecast, period m.Period) []Row {
	res := []Row{}
	for _, f := range forecasts {
		if f == nil {
			continue
		}
		if f.Historical != nil {
			res = append(res, volatilityRows(f.Symbol, SeriesHistorical, period, f.Historical)...)
		}
		if f.Actual != nil {
			res = append(res, volatilityRows(f.Symbol, SeriesActual, period, f.Actual)...)
		}
		if f.Forecast != nil {
			for _, p := range f.Forecast.Points {
				row := newRow(f.Symbol, SeriesForecast, period, p.Timestamp, p.Value.Ptr())
				row.Observations = int32(p.Observations)
				if p.Failure != m.FitFailureNone {
					row.Failure = p.Failure.Name()
				}
				res = append(res, row)
			}
		}
	}
	return res
}

func volatilityRows(symbol, series string, period m.Period, vs *m.VolatilitySeries) []Row {
	res := make([]Row, 0, vs.Len())
	for _, p := range vs.Points {
		res = append(res, newRow(symbol, series, period, p.Timestamp, p.Value.Ptr()))
	}
	return res
}

func newRow(symbol, series string, period m.Period, ts time.Time, value *float64) Row {
	ts = m.NormalizeTimestamp(ts)
	row := Row{
		Symbol:      symbol,
		Series:      series,
		Period:      period.Name(),
		Date:        ts.Format(time.DateOnly),
		TimestampMs: ts.UnixMilli(),
		Value:       value,
	}
	if value != nil {
		annualized := period.Annualize(*value)
		row.Annualized = &annualized
	}
	return row
}
