package alpha_vantage

// TimeSeries describes a daily price endpoint. Volatility is built from daily returns whatever the
// forecast period, so only the daily series are requested.
type TimeSeries struct {
	name     string
	function string
	adjusted bool
}

var (
	TimeSeriesDailyAdjusted = TimeSeries{name: "daily_adjusted", function: "TIME_SERIES_DAILY_ADJUSTED", adjusted: true}

	// TimeSeriesDaily is the fallback when the adjusted series is not available on the api key's plan.
	TimeSeriesDaily = TimeSeries{name: "daily", function: "TIME_SERIES_DAILY"}
)

const (
	dailyTimeSeriesKey = "Time Series (Daily)"
	fullOutputSize     = "full"
)

func (t TimeSeries) Name() string {
	return t.name
}

func (t TimeSeries) Function() string {
	return t.function
}

// TimeSeriesKey is the response element holding the rows, shared by both daily series.
func (t TimeSeries) TimeSeriesKey() string {
	return dailyTimeSeriesKey
}

func (t TimeSeries) IsAdjusted() bool {
	return t.adjusted
}

// OutputSize always asks for the full history, the compact size only covers the last 100 days.
func (t TimeSeries) OutputSize() string {
	return fullOutputSize
}
