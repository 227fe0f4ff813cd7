package core

import (
	"math"
	"slices"
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/stat"

	m "volcast/models"
)

// BuildVolatilitySeries turns a price series into a realized volatility series: period over period
// percentage returns, grouped into bins of the given period, sample standard deviation per bin.
func BuildVolatilitySeries(prices m.PriceSeries, period m.Period) (*m.VolatilitySeries, error) {
	points := dedupePricePoints(prices.Points)
	if len(points) < 2 {
		return nil, &InsufficientDataError{Symbol: prices.Symbol, Observations: len(points)}
	}

	returns := calculateReturns(points)

	// bin the returns, the first return is missing but still opens its bin
	first := period.PeriodEnd(points[0].Timestamp)
	last := period.PeriodEnd(points[len(points)-1].Timestamp)

	bins := make(map[time.Time][]float64)
	for i, r := range returns {
		label := period.PeriodEnd(points[i].Timestamp)
		if r.Valid {
			bins[label] = append(bins[label], r.Float64)
		}
	}

	res := &m.VolatilitySeries{
		Symbol: prices.Symbol,
		Period: period,
	}

	for label := first; !label.After(last); label = period.Next(label) {
		res.Points = append(res.Points, m.VolatilityPoint{
			Timestamp: label,
			Value:     sampleStdDev(bins[label]),
		})
	}

	return res, nil
}

// CombineVolatilitySeries concatenates a historical series with the series observed over the forecast window.
// On a shared timestamp the actual value wins. Periods between the end of the history and the start of the
// actual series are added as missing values.
func CombineVolatilitySeries(historical, actual *m.VolatilitySeries) *m.VolatilitySeries {
	if historical == nil && actual == nil {
		return nil
	}
	if actual == nil {
		return historical
	}
	if historical == nil {
		return actual
	}

	lookup := make(map[time.Time]null.Float, historical.Len()+actual.Len())
	for _, p := range historical.Points {
		lookup[m.NormalizeTimestamp(p.Timestamp)] = p.Value
	}
	for _, p := range actual.Points {
		lookup[m.NormalizeTimestamp(p.Timestamp)] = p.Value
	}

	if historical.Len() > 0 && actual.Len() > 0 {
		period := historical.Period
		lastHistorical := latestTimestamp(historical.Points)
		firstActual := earliestTimestamp(actual.Points)
		for label := period.Next(lastHistorical); label.Before(firstActual); label = period.Next(label) {
			if _, ok := lookup[label]; !ok {
				lookup[label] = null.Float{}
			}
		}
	}

	res := &m.VolatilitySeries{
		Symbol: historical.Symbol,
		Period: historical.Period,
		Points: make([]m.VolatilityPoint, 0, len(lookup)),
	}
	for ts, v := range lookup {
		res.Points = append(res.Points, m.VolatilityPoint{Timestamp: ts, Value: v})
	}

	slices.SortFunc(res.Points, func(a, b m.VolatilityPoint) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return res
}

func latestTimestamp(points []m.VolatilityPoint) time.Time {
	res := m.NormalizeTimestamp(points[0].Timestamp)
	for _, p := range points[1:] {
		if ts := m.NormalizeTimestamp(p.Timestamp); ts.After(res) {
			res = ts
		}
	}
	return res
}

func earliestTimestamp(points []m.VolatilityPoint) time.Time {
	res := m.NormalizeTimestamp(points[0].Timestamp)
	for _, p := range points[1:] {
		if ts := m.NormalizeTimestamp(p.Timestamp); ts.Before(res) {
			res = ts
		}
	}
	return res
}

// dedupePricePoints normalizes to UTC and sorts, the last point for a repeated timestamp wins.
func dedupePricePoints(points []m.PricePoint) []m.PricePoint {
	res := make([]m.PricePoint, len(points))
	for i, p := range points {
		res[i] = m.PricePoint{Timestamp: m.NormalizeTimestamp(p.Timestamp), Price: p.Price}
	}
	m.SortPricePoints(res)

	deduped := res[:0]
	for _, p := range res {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(p.Timestamp) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}

// calculateReturns returns one entry per point, the first is always missing.
func calculateReturns(points []m.PricePoint) []null.Float {
	res := make([]null.Float, len(points))
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1].Price, points[i].Price
		if !prev.Valid || !cur.Valid || prev.Float64 == 0 {
			continue
		}
		r := cur.Float64/prev.Float64 - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		res[i] = null.FloatFrom(r)
	}
	return res
}

// sampleStdDev is undefined on fewer than two points.
func sampleStdDev(values []float64) null.Float {
	if len(values) < 2 {
		return null.Float{}
	}
	return null.FloatFrom(stat.StdDev(values, nil))
}
