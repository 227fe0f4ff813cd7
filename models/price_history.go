package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// PriceHistoryResult is what the Alpha Vantage client returns for a daily time series request.
type PriceHistoryResult struct {
	Metadata   *PriceHistoryMetadata
	TimeSeries []*PriceHistoryData
}

type PriceHistoryMetadata struct {
	Id            int32       `db:"id"`
	Symbol        string      `db:"symbol"`
	LastRefreshed time.Time   `db:"last_refreshed"`
	Information   null.String `db:"-"`
	TimeZone      null.String `db:"-"`
}

type PriceHistoryData struct {
	SourceId       int32      `db:"source_id"`
	Timestamp      time.Time  `db:"timestamp"`
	Close          null.Float `db:"close"`
	AdjustedClose  null.Float `db:"adjusted_close"`
	Volume         null.Float `db:"volume"`
	DividendAmount null.Float `db:"dividend_amount"`
}

// ToPriceSeries sorts the rows ascending and keeps the adjusted close, falling back to the close.
func (r *PriceHistoryResult) ToPriceSeries(symbol string) PriceSeries {
	return PriceHistoryToSeries(symbol, r.TimeSeries)
}

func PriceHistoryToSeries(symbol string, data []*PriceHistoryData) PriceSeries {
	res := PriceSeries{Symbol: symbol, Points: make([]PricePoint, 0, len(data))}
	for _, d := range data {
		price := d.AdjustedClose
		if !price.Valid {
			price = d.Close
		}
		res.Points = append(res.Points, PricePoint{Timestamp: d.Timestamp, Price: price})
	}
	SortPricePoints(res.Points)
	return res
}
