package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	m "volcast/models"
)

const (
	DefaultAddr        = ":8080"
	DefaultMetricsPath = "/metrics"

	maxRequestBytes = 32 << 20
)

var validate = validator.New()

type ServerSettings struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Metrics is served on MetricsPath when set, Middleware wraps every route.
	Metrics     http.Handler
	MetricsPath string
	Middleware  func(http.Handler) http.Handler
}

func GetHttpServer(sc *ServiceContext, settings ServerSettings) *http.Server {
	addr := settings.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	return &http.Server{
		Addr:           addr,
		Handler:        NewRouter(sc, settings),
		ReadTimeout:    settings.ReadTimeout,
		WriteTimeout:   settings.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func NewRouter(sc *ServiceContext, settings ServerSettings) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(sc.Logger))
	r.Use(middleware.Recoverer)
	if settings.Middleware != nil {
		r.Use(settings.Middleware)
	}

	r.Get("/api/ping", ping)
	r.Post("/api/forecast", sc.postForecast)
	r.Get("/api/forecast/{symbol}", sc.getForecast)
	r.Get("/api/forecast/{symbol}/latest", sc.getLatestForecast)
	r.Post("/api/sync/{symbol}", sc.postSync)

	if settings.Metrics != nil {
		path := settings.MetricsPath
		if path == "" {
			path = DefaultMetricsPath
		}
		r.Method(http.MethodGet, path, settings.Metrics)
	}

	return r
}

// withContext scopes a copy of the service context to one request, a dropped connection cancels its work.
func (sc *ServiceContext) withContext(ctx context.Context) *ServiceContext {
	res := *sc
	res.Context = ctx
	return &res
}

func ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func (sc *ServiceContext) postForecast(w http.ResponseWriter, r *http.Request) {
	var req m.ForecastRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	inputs := make([]InstrumentInput, len(req.Instruments))
	for i, inst := range req.Instruments {
		symbol := strings.ToUpper(strings.TrimSpace(inst.Symbol))
		inputs[i] = InstrumentInput{
			Symbol:     symbol,
			Historical: m.PriceSeries{Symbol: symbol, Points: inst.Historical},
			Actual:     m.PriceSeries{Symbol: symbol, Points: inst.Actual},
		}
	}

	rsc := sc.withContext(r.Context())
	forecasts, err := rsc.ForecastPrices(inputs, req.ForecastStart, req.ForecastEnd)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	res := m.ForecastResponse{Period: sc.Forecaster.Settings().Period.Name(), Forecasts: forecasts}
	writeJSON(w, http.StatusOK, m.GetServiceResponseOk(&res))
}

// getForecast runs a forecast for one symbol on the configured price source and horizon.
func (sc *ServiceContext) getForecast(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	rsc := sc.withContext(r.Context())
	forecasts, err := rsc.RunVolatilityForecast([]string{symbol})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	res := m.ForecastResponse{Period: sc.Forecaster.Settings().Period.Name(), Forecasts: forecasts}
	if len(forecasts) == 1 && forecasts[0].Failed() {
		writeJSON(w, http.StatusUnprocessableEntity, m.GetServiceResponsePartial(&res, m.ErrorCodeInstrumentFailed, forecasts[0].Error))
		return
	}
	writeJSON(w, http.StatusOK, m.GetServiceResponseOk(&res))
}

func (sc *ServiceContext) getLatestForecast(w http.ResponseWriter, r *http.Request) {
	if sc.Store == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("%w: no forecast store", ErrNotConfigured))
		return
	}

	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	points, err := sc.Store.GetLatestForecastPoints(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(points) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("no completed forecast found for %s", symbol))
		return
	}

	writeJSON(w, http.StatusOK, m.GetServiceResponseOk(&m.StoredForecastResponse{Symbol: symbol, Points: points}))
}

func (sc *ServiceContext) postSync(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("force must be a boolean: %w", err))
			return
		}
		force = parsed
	}

	rsc := sc.withContext(r.Context())
	lastRefreshed, err := rsc.SyncSymbolPriceHistory(symbol, force)
	res := m.SyncResponse{Symbol: symbol, LastRefreshed: lastRefreshed}
	if errors.Is(err, ErrRecentlyRefreshed) {
		writeJSON(w, http.StatusConflict, m.GetServiceResponsePartial(&res, m.ErrorCodeRecentlyRefreshed, err.Error()))
		return
	}
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, m.GetServiceResponseOk(&res))
}

func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("error decoding request body: %w", err)
	}

	if err := validate.StructCtx(r.Context(), dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			msgs := make([]string, 0, len(validationErrors))
			for _, e := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid request: %s", strings.Join(msgs, ", "))
		}
		return err
	}
	return nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrNoSymbols), errors.Is(err, ErrInsufficientData):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, m.GetServiceResponseError(codeForStatus(status), err.Error()))
}

func codeForStatus(status int) m.ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return m.ErrorCodeInvalidRequest
	case http.StatusNotFound:
		return m.ErrorCodeNotFound
	case http.StatusServiceUnavailable:
		return m.ErrorCodeNotConfigured
	case http.StatusRequestTimeout:
		return m.ErrorCodeTimeout
	default:
		return m.ErrorCodeInternal
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			event := logger.Info()
			if ww.Status() >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}
