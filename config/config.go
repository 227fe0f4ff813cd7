package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	m "volcast/models"
)

const (
	SourceAlphaVantage = "alphavantage"
	SourcePostgres     = "postgres"
)

type Config struct {
	Environment string   `yaml:"environment" default:"development" validate:"required"`
	Symbols     []string `yaml:"symbols" validate:"dive,required"`
	Source      string   `yaml:"source" default:"alphavantage" validate:"oneof=alphavantage postgres"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`

	Forecast struct {
		Period                 string  `yaml:"period" default:"weekly" validate:"oneof=daily weekly monthly"`
		ArchLags               int     `yaml:"arch_lags" default:"1" validate:"min=1"`
		GarchLags              int     `yaml:"garch_lags" default:"1" validate:"min=0"`
		Mean                   string  `yaml:"mean" default:"zero" validate:"oneof=zero constant"`
		RescaleFactor          float64 `yaml:"rescale_factor" default:"100" validate:"gt=0"`
		MaxFunctionEvaluations int     `yaml:"max_function_evaluations" default:"20000" validate:"min=0"`
		Workers                int     `yaml:"workers" default:"8" validate:"min=1"`
	} `yaml:"forecast"`

	Horizon struct {
		HistoryStart  time.Time `yaml:"history_start" validate:"required"`
		HistoryEnd    time.Time `yaml:"history_end" validate:"required"`
		ForecastStart time.Time `yaml:"forecast_start" validate:"required"`
		ForecastEnd   time.Time `yaml:"forecast_end" validate:"required"`
	} `yaml:"horizon"`

	AlphaVantage struct {
		APIKey            string `yaml:"api_key"`
		RequestsPerMinute int    `yaml:"requests_per_minute" default:"5" validate:"min=0"`
	} `yaml:"alpha_vantage"`

	Database struct {
		URL      string `yaml:"url"`
		MaxConns int32  `yaml:"max_conns" default:"10" validate:"min=1"`
		MinConns int32  `yaml:"min_conns" default:"2" validate:"min=0"`
	} `yaml:"database"`

	Server struct {
		Addr            string        `yaml:"addr" default:":8080" validate:"required"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"5m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Export struct {
		Dir    string `yaml:"dir" default:"output"`
		Format string `yaml:"format" default:"csv" validate:"oneof=json csv parquet"`
	} `yaml:"export"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
}

var validate = validator.New()

// Load reads a YAML configuration file, fills the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(b, false)
}

// LoadWithEnv loads .env (when present) and the YAML file, then applies environment overrides before validating.
func LoadWithEnv(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(b, true)
}

// Parse is Load without the file.
func Parse(b []byte) (*Config, error) {
	return parse(b, false)
}

func parse(b []byte, withEnv bool) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set config defaults: %w", err)
	}

	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if withEnv {
		if err := c.applyEnv(); err != nil {
			return nil, err
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("PRICE_SOURCE"); v != "" {
		c.Source = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FORECAST_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FORECAST_WORKERS must be an integer: %w", err)
		}
		c.Forecast.Workers = n
	}
	return nil
}

// Validate checks the struct tags and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Source == SourcePostgres && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when the price source is postgres")
	}
	if c.Source == SourceAlphaVantage && c.AlphaVantage.APIKey == "" {
		return fmt.Errorf("alpha_vantage.api_key is required when the price source is alphavantage")
	}

	if _, err := c.ForecastSettings(); err != nil {
		return err
	}

	return c.ForecastHorizon().Validate()
}

func (c *Config) ForecastSettings() (m.ForecastSettings, error) {
	period, err := m.ParsePeriod(c.Forecast.Period)
	if err != nil {
		return m.ForecastSettings{}, err
	}

	mean, err := m.ParseMeanModel(c.Forecast.Mean)
	if err != nil {
		return m.ForecastSettings{}, err
	}

	res := m.ForecastSettings{
		Period:                 period,
		ArchLags:               c.Forecast.ArchLags,
		GarchLags:              c.Forecast.GarchLags,
		Mean:                   mean,
		RescaleFactor:          c.Forecast.RescaleFactor,
		MaxFunctionEvaluations: c.Forecast.MaxFunctionEvaluations,
	}
	return res, res.Validate()
}

func (c *Config) ForecastHorizon() m.ForecastHorizon {
	return m.ForecastHorizon{
		HistoryStart:  m.NormalizeTimestamp(c.Horizon.HistoryStart),
		HistoryEnd:    m.NormalizeTimestamp(c.Horizon.HistoryEnd),
		ForecastStart: m.NormalizeTimestamp(c.Horizon.ForecastStart),
		ForecastEnd:   m.NormalizeTimestamp(c.Horizon.ForecastEnd),
	}
}
