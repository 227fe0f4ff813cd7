package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Period specifies the resampling granularity of a volatility series.
type Period uint8

const (
	PeriodWeekly Period = iota
	PeriodDaily
	PeriodMonthly
)

const (
	Daily   = 252
	Weekly  = 52
	Monthly = 12
)

func (p Period) Name() string {
	switch p {
	case PeriodDaily:
		return "daily"
	case PeriodWeekly:
		return "weekly"
	case PeriodMonthly:
		return "monthly"
	default:
		return ""
	}
}

func (p Period) String() string {
	return p.Name()
}

// PeriodsPerYear is the annualization factor for the period.
func (p Period) PeriodsPerYear() int {
	switch p {
	case PeriodDaily:
		return Daily
	case PeriodWeekly:
		return Weekly
	case PeriodMonthly:
		return Monthly
	default:
		return 0
	}
}

// Annualize scales a per period volatility to a yearly one with the square root of time rule.
func (p Period) Annualize(volatility float64) float64 {
	return volatility * math.Sqrt(float64(p.PeriodsPerYear()))
}

// ParsePeriod maps a config value (daily, weekly, monthly, or the short D/W/M forms) to a Period.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "d", "day":
		return PeriodDaily, nil
	case "weekly", "w", "week", "":
		return PeriodWeekly, nil
	case "monthly", "m", "month":
		return PeriodMonthly, nil
	default:
		return PeriodWeekly, fmt.Errorf("%q is not a recognized period", s)
	}
}

// PeriodEnd returns the label of the bin a timestamp falls in, going by its UTC calendar day.
// Weekly bins run Monday through Sunday and monthly bins cover the calendar month, both labelled by
// their last day. Daily bins are labelled by their midnight.
func (p Period) PeriodEnd(t time.Time) time.Time {
	t = NormalizeTimestamp(t)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case PeriodDaily:
		return midnight
	case PeriodMonthly:
		return lastDayOfMonth(midnight)
	default:
		daysUntilSunday := (7 - int(midnight.Weekday())) % 7
		return midnight.AddDate(0, 0, daysUntilSunday)
	}
}

// Next returns the label following the given bin label.
func (p Period) Next(anchor time.Time) time.Time {
	anchor = NormalizeTimestamp(anchor)
	switch p {
	case PeriodDaily:
		return anchor.AddDate(0, 0, 1)
	case PeriodMonthly:
		return lastDayOfMonth(lastDayOfMonth(anchor).AddDate(0, 0, 1))
	default:
		return anchor.AddDate(0, 0, 7)
	}
}

// NormalizeTimestamp converts a timestamp to the canonical UTC reference.
// Every comparison between series and grid timestamps goes through here.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC()
}

func lastDayOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1)
}
