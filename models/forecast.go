package models

import (
	"fmt"
	"time"

	"github.com/guregu/null/v6"
)

// FitFailureKind says why a grid date ended up without a forecast. Diagnostic only,
// consumers only need to know whether the value is valid.
type FitFailureKind uint8

const (
	FitFailureNone FitFailureKind = iota
	FitFailureEmptyHistory
	FitFailureDegenerate
	FitFailureNonConvergence
	FitFailureNumerical
)

func (k FitFailureKind) Name() string {
	switch k {
	case FitFailureNone:
		return "none"
	case FitFailureEmptyHistory:
		return "empty_history"
	case FitFailureDegenerate:
		return "degenerate"
	case FitFailureNonConvergence:
		return "non_convergence"
	case FitFailureNumerical:
		return "numerical"
	default:
		return ""
	}
}

func (k FitFailureKind) String() string {
	return k.Name()
}

func (k FitFailureKind) MarshalText() ([]byte, error) {
	return []byte(k.Name()), nil
}

func (k *FitFailureKind) UnmarshalText(b []byte) error {
	for kind := FitFailureNone; kind <= FitFailureNumerical; kind++ {
		if kind.Name() == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%q is not a recognized fit failure", string(b))
}

// ForecastGrid is the ordered set of dates a rolling forecast is produced for.
type ForecastGrid struct {
	Period Period
	Dates  []time.Time
}

func (g ForecastGrid) Len() int {
	return len(g.Dates)
}

type ForecastPoint struct {
	Timestamp    time.Time      `json:"timestamp"`
	Value        null.Float     `json:"value"`
	Observations int            `json:"observations"`
	Failure      FitFailureKind `json:"failure,omitempty"`
}

// ForecastResult has exactly one point per grid date, in grid order.
type ForecastResult struct {
	Symbol string          `json:"symbol"`
	Points []ForecastPoint `json:"points"`
}

// Missing counts the points without a forecast value.
func (fr ForecastResult) Missing() int {
	res := 0
	for _, p := range fr.Points {
		if !p.Value.Valid {
			res++
		}
	}
	return res
}

// FailureCounts groups the missing points by failure kind.
func (fr ForecastResult) FailureCounts() map[FitFailureKind]int {
	res := make(map[FitFailureKind]int)
	for _, p := range fr.Points {
		if p.Failure != FitFailureNone {
			res[p.Failure]++
		}
	}
	return res
}

// ForecastEvaluation compares the forecast made at d with the realized volatility of the period it predicts.
type ForecastEvaluation struct {
	Compared int        `json:"compared"`
	MAE      null.Float `json:"mae"`
	RMSE     null.Float `json:"rmse"`
	Bias     null.Float `json:"bias"`
}

// InstrumentForecast is everything produced for one instrument in a run.
type InstrumentForecast struct {
	Symbol     string              `json:"symbol"`
	Historical *VolatilitySeries   `json:"historical,omitempty"`
	Actual     *VolatilitySeries   `json:"actual,omitempty"`
	Forecast   *ForecastResult     `json:"forecast,omitempty"`
	Evaluation *ForecastEvaluation `json:"evaluation,omitempty"`
	Error      string              `json:"error,omitempty"`
	Err        error               `json:"-"`
}

// Failed reports whether the instrument was dropped before a forecast could be produced.
func (f *InstrumentForecast) Failed() bool {
	return f.Err != nil || f.Error != ""
}
