package models

import (
	"slices"
	"time"

	"github.com/guregu/null/v6"
)

// PricePoint is a single observation handed over by a price source. Price is invalid when the source had no value.
type PricePoint struct {
	Timestamp time.Time  `json:"timestamp" db:"timestamp"`
	Price     null.Float `json:"price" db:"adjusted_close"`
}

type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// Between returns the points with from <= timestamp < to, in their original order.
func (ps PriceSeries) Between(from, to time.Time) PriceSeries {
	res := PriceSeries{Symbol: ps.Symbol, Points: make([]PricePoint, 0, len(ps.Points))}
	for _, p := range ps.Points {
		if !p.Timestamp.Before(from) && p.Timestamp.Before(to) {
			res.Points = append(res.Points, p)
		}
	}
	return res
}

// SortPricePoints orders points by timestamp, keeping the input order of equal timestamps.
func SortPricePoints(points []PricePoint) {
	slices.SortStableFunc(points, func(a, b PricePoint) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

type VolatilityPoint struct {
	Timestamp time.Time  `json:"timestamp"`
	Value     null.Float `json:"value"`
}

// VolatilitySeries is a realized volatility series at a fixed granularity.
// Timestamps are strictly increasing UTC bin labels, missing values are explicit rows.
type VolatilitySeries struct {
	Symbol string            `json:"symbol"`
	Period Period            `json:"-"`
	Points []VolatilityPoint `json:"points"`
}

func (vs VolatilitySeries) Len() int {
	return len(vs.Points)
}

// ValueAt returns the value labelled exactly t, invalid if there is none.
func (vs VolatilitySeries) ValueAt(t time.Time) null.Float {
	t = NormalizeTimestamp(t)
	for _, p := range vs.Points {
		if p.Timestamp.Equal(t) {
			return p.Value
		}
	}
	return null.Float{}
}
