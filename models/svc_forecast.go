package models

import (
	"time"
)

// ForecastRequest is the body of POST /api/forecast. The caller brings the prices, nothing is fetched or stored.
type ForecastRequest struct {
	Instruments   []ForecastRequestInstrument `json:"instruments" validate:"required,min=1,dive"`
	ForecastStart time.Time                   `json:"forecastStart" validate:"required"`
	ForecastEnd   time.Time                   `json:"forecastEnd" validate:"required,gtfield=ForecastStart"`
}

type ForecastRequestInstrument struct {
	Symbol     string       `json:"symbol" validate:"required"`
	Historical []PricePoint `json:"historical" validate:"required,min=1"`
	Actual     []PricePoint `json:"actual"`
}

type ForecastResponse struct {
	Period    string                `json:"period"`
	Forecasts []*InstrumentForecast `json:"forecasts"`
}

type SyncResponse struct {
	Symbol        string    `json:"symbol"`
	LastRefreshed time.Time `json:"lastRefreshed"`
}

type StoredForecastResponse struct {
	Symbol string              `json:"symbol"`
	Points []*ForecastRunPoint `json:"points"`
}
