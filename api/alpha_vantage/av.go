package alpha_vantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"

	c "volcast/api"
	ex "volcast/extensions"
	m "volcast/models"
)

// public
const (
	HostDefault              = "www.alphavantage.co"
	RequestsPerMinuteDefault = 5
)

// private
const (
	defaultDataType = "json"
	defaultTimeout  = time.Second * 30

	// api request elements
	query      = "query"
	symbol     = "symbol"
	function   = "function"
	outputSize = "outputsize"

	// keys alpha vantage uses instead of an http status
	errorMessageKey = "Error Message"
	noteKey         = "Note"
	informationKey  = "Information"
	metaDataKey     = "Meta Data"
)

var (
	timeSeriesDateFormats = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
	}

	// struct field -> suffix of the json key, alpha vantage prefixes every key with a running number
	priceHistoryResultKeys = map[string]string{
		"Close":          ". close",
		"AdjustedClose":  ". adjusted close",
		"Volume":         ". volume",
		"DividendAmount": ". dividend amount",
	}
)

// ErrPremiumEndpoint is returned when the api key's plan does not include the requested series.
var ErrPremiumEndpoint = errors.New("endpoint is not available on this api key")

type AlphaVantageClient struct {
	*c.Client
	logger zerolog.Logger
}

func GetClient(apiKey string, requestsPerMinute int, logger zerolog.Logger) *AlphaVantageClient {
	return NewAlphaVantageClient(c.ClientFactory(HostDefault, apiKey, defaultTimeout, requestsPerMinute), logger)
}

func NewAlphaVantageClient(client *c.Client, logger zerolog.Logger) *AlphaVantageClient {
	return &AlphaVantageClient{
		Client: client,
		logger: logger.With().Str("component", "alpha_vantage").Logger(),
	}
}

// GetDailyAdjustedPriceHistory falls back to the unadjusted daily series when the adjusted one is a premium endpoint.
// The unadjusted rows have no adjusted close, prices then come from the close.
// https://www.alphavantage.co/documentation/#dailyadj
func (avc *AlphaVantageClient) GetDailyAdjustedPriceHistory(ctx context.Context, ticker string) (*m.PriceHistoryResult, error) {
	res, err := avc.GetTimeSeries(ctx, ticker, TimeSeriesDailyAdjusted)
	if !errors.Is(err, ErrPremiumEndpoint) {
		return res, err
	}

	avc.logger.Warn().
		Str("symbol", ticker).
		Str("series", TimeSeriesDaily.Name()).
		Msg("adjusted series is not available, falling back to unadjusted closes")

	return avc.GetTimeSeries(ctx, ticker, TimeSeriesDaily)
}

// GetPriceHistory fetches the daily adjusted series and keeps [from, to).
func (avc *AlphaVantageClient) GetPriceHistory(ctx context.Context, ticker string, from, to time.Time) (m.PriceSeries, error) {
	res, err := avc.GetDailyAdjustedPriceHistory(ctx, ticker)
	if err != nil {
		return m.PriceSeries{}, err
	}
	return res.ToPriceSeries(ticker).Between(m.NormalizeTimestamp(from), m.NormalizeTimestamp(to)), nil
}

func (avc *AlphaVantageClient) GetTimeSeries(ctx context.Context, ticker string, ts TimeSeries) (*m.PriceHistoryResult, error) {
	if avc == nil || avc.Client == nil {
		return nil, fmt.Errorf("alpha vantage client has not been set")
	}

	endpoint := avc.buildRequestPath(map[string]string{
		function:   ts.Function(),
		symbol:     ticker,
		outputSize: ts.OutputSize(),
	})

	start := time.Now()
	response, err := avc.Client.Connection.Request(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s for %s: %w", ts.Function(), ticker, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alpha vantage returned status %d for %s", response.StatusCode, ticker)
	}

	raw, err := parseRawJson(response.Body)
	if err != nil {
		return nil, err
	}

	if err := checkApiError(raw); err != nil {
		return nil, fmt.Errorf("alpha vantage rejected %s request for %s: %w", ts.Function(), ticker, err)
	}

	metaData, timeZone, err := parseMetaData(raw)
	if err != nil {
		return nil, err
	}

	timeSeriesData, err := parsePriceHistoryResult(raw, ts.TimeSeriesKey(), timeZone)
	if err != nil {
		return nil, err
	}

	avc.logger.Debug().
		Str("symbol", ticker).
		Str("series", ts.Name()).
		Bool("adjusted", ts.IsAdjusted()).
		Int("rows", len(timeSeriesData)).
		Dur("elapsed", time.Since(start)).
		Msg("fetched time series")

	return &m.PriceHistoryResult{
		Metadata:   metaData,
		TimeSeries: timeSeriesData,
	}, nil
}

func (avc *AlphaVantageClient) buildRequestPath(params map[string]string) *url.URL {
	endpoint := &url.URL{}
	endpoint.Path = query

	// base parameters
	query := endpoint.Query()
	query.Set("apikey", avc.Client.ApiKey)
	query.Set("datatype", defaultDataType)

	for key, value := range params {
		query.Set(key, value)
	}

	endpoint.RawQuery = query.Encode()

	return endpoint
}

func parseRawJson(reader io.Reader) (raw map[string]json.RawMessage, err error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	// converting to a <string, raw message> map
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	return
}

// checkApiError surfaces the error and rate limit messages, which come back with a 200.
func checkApiError(raw map[string]json.RawMessage) error {
	for _, key := range []string{errorMessageKey, noteKey, informationKey} {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		if _, hasMetaData := raw[metaDataKey]; hasMetaData && key == informationKey {
			continue
		}

		var text string
		if err := json.Unmarshal(msg, &text); err != nil {
			text = string(msg)
		}
		if key == informationKey && strings.Contains(strings.ToLower(text), "premium") {
			return fmt.Errorf("%w: %s", ErrPremiumEndpoint, text)
		}
		return fmt.Errorf("%s: %s", strings.ToLower(key), text)
	}
	return nil
}

func parseMetaData(raw map[string]json.RawMessage) (*m.PriceHistoryMetadata, *time.Location, error) {
	var metadataElements map[string]string
	if err := json.Unmarshal(raw[metaDataKey], &metadataElements); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling meta data: %w", err)
	}

	metaDataKeys := slices.Collect(maps.Keys(metadataElements))
	findKey := func(suffix string) (string, bool) {
		f := func(s string) bool { return strings.HasSuffix(s, suffix) }
		matches := ex.FilterMultiple(metaDataKeys, f)
		if len(matches) != 1 {
			return "", false
		}
		return matches[0], true
	}

	symbolKey, ok := findKey(". Symbol")
	if !ok {
		return nil, nil, fmt.Errorf("error extracting symbol for meta data")
	}

	timeZoneKey, ok := findKey(". Time Zone")
	if !ok {
		return nil, nil, fmt.Errorf("error extracting time zone for meta data")
	}

	timeZone, err := getTimeZone(metadataElements[timeZoneKey])
	if err != nil {
		return nil, nil, fmt.Errorf("error converting time zone key %s, to time.Location: %w", metadataElements[timeZoneKey], err)
	}

	lastRefreshedKey, ok := findKey(". Last Refreshed")
	if !ok {
		return nil, nil, fmt.Errorf("error extracting last refreshed date")
	}

	lastRefreshed, err := parseDate(metadataElements[lastRefreshedKey], timeZone)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing last refreshed date: %w", err)
	}

	res := m.PriceHistoryMetadata{
		Symbol:        metadataElements[symbolKey],
		LastRefreshed: lastRefreshed,
		TimeZone:      null.StringFrom(metadataElements[timeZoneKey]),
	}
	if infoKey, ok := findKey(". Information"); ok {
		res.Information = null.StringFrom(metadataElements[infoKey])
	}

	return &res, timeZone, nil
}

func parsePriceHistoryResult(raw map[string]json.RawMessage, key string, location *time.Location) ([]*m.PriceHistoryData, error) {
	body, ok := raw[key]
	if !ok {
		return nil, fmt.Errorf("response has no %q element", key)
	}

	var timeSeriesElements map[string]map[string]string
	if err := json.Unmarshal(body, &timeSeriesElements); err != nil {
		return nil, fmt.Errorf("error unmarshaling time series: %w", err)
	}

	res := make([]*m.PriceHistoryData, 0, len(timeSeriesElements))
	if len(timeSeriesElements) == 0 {
		return res, nil
	}

	// every element carries the same headers, build the lookup from the first one
	var firstValue map[string]string
	for _, v := range timeSeriesElements {
		firstValue = v
		break
	}

	lookup, err := getLookupKey(priceHistoryResultKeys, firstValue)
	if err != nil {
		return nil, err
	}

	for timeSeriesKey, timeSeriesValue := range timeSeriesElements {
		timestamp, err := parseDate(timeSeriesKey, location)
		if err != nil {
			return nil, fmt.Errorf("error converting TIMESTAMP from string to time.Time: %w", err)
		}

		data := &m.PriceHistoryData{Timestamp: timestamp}
		if err := setPriceFields(data, timeSeriesValue, lookup); err != nil {
			return nil, fmt.Errorf("error parsing prices for %s: %w", timeSeriesKey, err)
		}
		res = append(res, data)
	}

	slices.SortFunc(res, func(a, b *m.PriceHistoryData) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return res, nil
}

func setPriceFields(data *m.PriceHistoryData, value, lookup map[string]string) error {
	v := reflect.ValueOf(data).Elem()
	for jsonKey, structAttribute := range lookup {
		field := v.FieldByName(structAttribute)
		if !field.IsValid() {
			return fmt.Errorf("field %s does not exist", structAttribute)
		}
		if !field.CanSet() {
			return fmt.Errorf("field %s cannot be set", structAttribute)
		}

		field.Set(reflect.ValueOf(parseFloat(value[jsonKey])))
	}
	return nil
}

// getLookupKey maps json keys of a response element to struct fields. Keys missing from the response
// are skipped, the unadjusted series has no adjusted close or dividend.
func getLookupKey(expectedKeys, values map[string]string) (map[string]string, error) {
	res := make(map[string]string)
	responseValueHeaders := slices.Collect(maps.Keys(values))

	for key, value := range expectedKeys {
		f := func(s string) bool {
			return strings.HasSuffix(strings.ToLower(s), strings.ToLower(value))
		}
		if matches := ex.FilterMultiple(responseValueHeaders, f); len(matches) == 1 {
			res[matches[0]] = key
		}
	}

	if len(res) == 0 {
		return nil, fmt.Errorf("error generating key value map from av response object. Available headers: %v", responseValueHeaders)
	}

	return res, nil
}

func getTimeZone(location string) (*time.Location, error) {
	if !ex.AreEqual(location, "US/Eastern") {
		return time.UTC, nil
	}

	res, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("error parsing time zone %s in time.LoadLocation", location)
	}

	return res, nil
}

// parseDate reads date only values as UTC midnight of that calendar day, values with a time of day
// are read in the exchange time zone. Either way the result is UTC.
func parseDate(dateString string, location *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(timeSeriesDateFormats[0], dateString, time.UTC); err == nil {
		return t, nil
	}
	for _, format := range timeSeriesDateFormats[1:] {
		t, err := time.ParseInLocation(format, dateString, location)
		if err != nil {
			continue
		}
		return m.NormalizeTimestamp(t), nil
	}
	return time.Time{}, fmt.Errorf("error converting date %s to time.Time", dateString)
}

func parseFloat(val string) null.Float {
	if val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return null.FloatFrom(f)
		}
	}
	return null.Float{}
}
