package core

import (
	"math"
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	m "volcast/models"
)

// EvaluateForecast compares each forecast made at d with the realized volatility of the period after d,
// the period the forecast is for. Dates missing on either side are skipped.
func EvaluateForecast(forecast m.ForecastResult, actual *m.VolatilitySeries, period m.Period) m.ForecastEvaluation {
	var res m.ForecastEvaluation
	if actual == nil {
		return res
	}

	realized := make(map[time.Time]float64, actual.Len())
	for _, p := range actual.Points {
		if p.Value.Valid {
			realized[m.NormalizeTimestamp(p.Timestamp)] = p.Value.Float64
		}
	}

	errs := make([]float64, 0, len(forecast.Points))
	for _, p := range forecast.Points {
		if !p.Value.Valid {
			continue
		}
		target := period.Next(p.Timestamp)
		if v, ok := realized[target]; ok {
			errs = append(errs, p.Value.Float64-v)
		}
	}

	res.Compared = len(errs)
	if len(errs) == 0 {
		return res
	}

	absErrs := make([]float64, len(errs))
	for i, e := range errs {
		absErrs[i] = math.Abs(e)
	}

	res.Bias = null.FloatFrom(stat.Mean(errs, nil))
	res.MAE = null.FloatFrom(stat.Mean(absErrs, nil))
	res.RMSE = null.FloatFrom(math.Sqrt(floats.Dot(errs, errs) / float64(len(errs))))
	return res
}
