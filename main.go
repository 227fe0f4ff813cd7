package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	av "volcast/api/alpha_vantage"
	"volcast/config"
	c "volcast/core"
	"volcast/export"
	"volcast/logger"
	"volcast/metrics"
	r "volcast/repos"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serve := flag.Bool("serve", false, "serve the HTTP api instead of running a single batch forecast")
	flag.Parse()

	// listen for interrupt and term signals, a batch run is cancelled the same way the server is
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		// no logger yet
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log, closer, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to build logger")
	}
	defer closer.Close()

	if err := run(ctx, cfg, log, *serve); err != nil {
		log.Error().Err(err).Msg("volcast exited with an error")
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, serve bool) error {
	recorder := metrics.New()

	settings, err := cfg.ForecastSettings()
	if err != nil {
		return err
	}

	forecaster, err := c.NewRollingForecaster(settings, c.WithLogger(log), c.WithRecorder(recorder))
	if err != nil {
		return err
	}

	sc := &c.ServiceContext{
		Context:    ctx,
		Forecaster: forecaster,
		Horizon:    cfg.ForecastHorizon(),
		Workers:    cfg.Forecast.Workers,
		Logger:     log,
		Metrics:    recorder,
	}

	if cfg.AlphaVantage.APIKey != "" {
		avClient := av.GetClient(cfg.AlphaVantage.APIKey, cfg.AlphaVantage.RequestsPerMinute, log)
		sc.PriceFetcher = avClient
		sc.Prices = avClient
	}

	// postgres is optional unless it is the price source, without it runs are not recorded
	if cfg.Database.URL != "" {
		postgresConnection, err := r.GetPostgresConnection(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer postgresConnection.Close()

		sc.PriceStore = postgresConnection
		sc.Store = postgresConnection
		if cfg.Source == config.SourcePostgres {
			sc.Prices = postgresConnection
		}
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("source", cfg.Source).
		Str("period", settings.Period.Name()).
		Bool("store", sc.Store != nil).
		Msg("volcast configured")

	if serve {
		return runServer(ctx, sc, cfg, recorder)
	}
	return runBatch(sc, cfg)
}

func runBatch(sc *c.ServiceContext, cfg *config.Config) error {
	forecasts, err := sc.RunVolatilityForecast(cfg.Symbols)
	if err != nil {
		return err
	}

	for _, f := range forecasts {
		if f.Failed() {
			sc.Logger.Warn().Str("symbol", f.Symbol).Str("error", f.Error).Msg("instrument failed")
			continue
		}
		event := sc.Logger.Info().
			Str("symbol", f.Symbol).
			Int("forecasts", len(f.Forecast.Points)).
			Int("missing", f.Forecast.Missing())
		if f.Evaluation != nil && f.Evaluation.Compared > 0 {
			event = event.
				Int("compared", f.Evaluation.Compared).
				Float64("mae", f.Evaluation.MAE.Float64).
				Float64("rmse", f.Evaluation.RMSE.Float64)
		}
		event.Msg("instrument forecast")
	}

	path, err := export.WriteForecasts(cfg.Export.Dir, cfg.Export.Format, forecasts, sc.Forecaster.Settings().Period, time.Now())
	if err != nil {
		return err
	}
	sc.Logger.Info().Str("path", path).Msg("exported forecasts")
	return nil
}

func runServer(ctx context.Context, sc *c.ServiceContext, cfg *config.Config, recorder *metrics.Recorder) error {
	serverSettings := c.ServerSettings{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Metrics.Enabled {
		serverSettings.Metrics = recorder.Handler()
		serverSettings.MetricsPath = cfg.Metrics.Path
		serverSettings.Middleware = recorder.Middleware
	}

	s := c.GetHttpServer(sc, serverSettings)

	serverErr := make(chan error, 1)
	go func() {
		sc.Logger.Info().Str("addr", s.Addr).Msg("starting volcast server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// wait here until the context is closed (ie, ctrl+C) or the listener fails
	select {
	case err, ok := <-serverErr:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	sc.Logger.Info().Msg("received shutdown signal, shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}

	sc.Logger.Info().Msg("server stopped successfully")
	return nil
}
