package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	m "volcast/models"
)

// Saver writes rows to a single file.
type Saver interface {
	Save(rows []Row, path string) error
	Extension() string
}

// NewSaver returns nil for an unsupported format.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

// WriteForecasts saves the rows of a run into dir and returns the file written.
func WriteForecasts(dir, format string, forecasts []*m.InstrumentForecast, period m.Period, now time.Time) (string, error) {
	saver := NewSaver(format)
	if saver == nil {
		return "", fmt.Errorf("export format %q is not supported (use csv, parquet or json)", format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export dir %s: %w", dir, err)
	}

	name := fmt.Sprintf("volatility_%s_%s.%s", period.Name(), now.UTC().Format("20060102T150405Z"), saver.Extension())
	path := filepath.Join(dir, name)
	if err := saver.Save(Rows(forecasts, period), path); err != nil {
		return "", fmt.Errorf("error saving %s: %w", path, err)
	}
	return path, nil
}

type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(rows []Row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(rows []Row, path string) error {
	return parquet.WriteFile(path, rows)
}

var csvHeader = []string{"symbol", "series", "period", "date", "timestamp_ms", "value", "observations", "failure", "annualized"}

// CSVSaver leaves the value cell empty for a missing value.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(rows []Row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.Symbol, r.Series, r.Period, r.Date, strconv.FormatInt(r.TimestampMs, 10),
			formatOptional(r.Value), strconv.Itoa(int(r.Observations)), r.Failure, formatOptional(r.Annualized),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
