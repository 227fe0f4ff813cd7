package models

import (
	"fmt"
	"strings"
	"time"
)

// MeanModel is the conditional mean assumed when fitting the variance model.
type MeanModel uint8

const (
	MeanZero MeanModel = iota
	MeanConstant
)

func (m MeanModel) Name() string {
	switch m {
	case MeanZero:
		return "zero"
	case MeanConstant:
		return "constant"
	default:
		return ""
	}
}

func ParseMeanModel(s string) (MeanModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zero", "":
		return MeanZero, nil
	case "constant":
		return MeanConstant, nil
	default:
		return MeanZero, fmt.Errorf("%q is not a recognized mean model", s)
	}
}

const (
	DefaultArchLags               = 1
	DefaultGarchLags              = 1
	DefaultRescaleFactor          = 100.0
	DefaultMaxFunctionEvaluations = 20_000
)

// ForecastSettings configures the series builder and the rolling forecaster.
type ForecastSettings struct {
	Period                 Period    `json:"period"`
	ArchLags               int       `json:"archLags"`  // p, lags of squared residuals
	GarchLags              int       `json:"garchLags"` // q, lags of conditional variance
	Mean                   MeanModel `json:"mean"`
	RescaleFactor          float64   `json:"rescaleFactor"`
	MaxFunctionEvaluations int       `json:"maxFunctionEvaluations"`
}

// DefaultForecastSettings is weekly GARCH(1,1) with a zero mean in percent units.
func DefaultForecastSettings() ForecastSettings {
	return ForecastSettings{
		Period:                 PeriodWeekly,
		ArchLags:               DefaultArchLags,
		GarchLags:              DefaultGarchLags,
		Mean:                   MeanZero,
		RescaleFactor:          DefaultRescaleFactor,
		MaxFunctionEvaluations: DefaultMaxFunctionEvaluations,
	}
}

func (s ForecastSettings) Validate() error {
	if s.ArchLags < 1 {
		return fmt.Errorf("arch lags must be at least 1, got %d", s.ArchLags)
	}
	if s.GarchLags < 0 {
		return fmt.Errorf("garch lags cannot be negative, got %d", s.GarchLags)
	}
	if s.RescaleFactor <= 0 {
		return fmt.Errorf("rescale factor must be positive, got %f", s.RescaleFactor)
	}
	if s.MaxFunctionEvaluations < 0 {
		return fmt.Errorf("max function evaluations cannot be negative, got %d", s.MaxFunctionEvaluations)
	}
	return nil
}

// ForecastHorizon holds the two windows of a run: the history the models start from
// and the forecast window, whose realized volatility is kept for comparison.
type ForecastHorizon struct {
	HistoryStart  time.Time `json:"historyStart"`
	HistoryEnd    time.Time `json:"historyEnd"`
	ForecastStart time.Time `json:"forecastStart"`
	ForecastEnd   time.Time `json:"forecastEnd"`
}

func (h ForecastHorizon) Validate() error {
	if !h.HistoryEnd.After(h.HistoryStart) {
		return fmt.Errorf("history end %s must be after history start %s", h.HistoryEnd.Format(time.DateOnly), h.HistoryStart.Format(time.DateOnly))
	}
	if !h.ForecastEnd.After(h.ForecastStart) {
		return fmt.Errorf("forecast end %s must be after forecast start %s", h.ForecastEnd.Format(time.DateOnly), h.ForecastStart.Format(time.DateOnly))
	}
	return nil
}
