// Package marketdata loads daily price history for the simulator
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	apperrors "blackswan/pkg/errors"

	"github.com/shopspring/decimal"
)

// DefaultDateLayout matches the ISO dates in the stocks export
const DefaultDateLayout = "2006-01-02"

// Column names of the stocks export
const (
	ColDate     = "Date"
	ColOpen     = "Open"
	ColHigh     = "High"
	ColLow      = "Low"
	ColClose    = "Close"
	ColAdjClose = "Adj Close"
	ColVolume   = "Volume"
	ColSymbol   = "Stock Name"
)

// Bar is one trading day for one symbol
type Bar struct {
	Date     time.Time
	Symbol   string
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	AdjClose decimal.Decimal
	Volume   decimal.Decimal
}

// Series is a date-ordered run of bars
type Series struct {
	Symbol string
	Bars   []Bar
}

// Closes returns the closing prices in date order
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// Last returns the most recent bar
func (s *Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Len returns the number of bars
func (s *Series) Len() int { return len(s.Bars) }

// LoadOptions controls how a CSV is read
type LoadOptions struct {
	// Symbol keeps only rows whose Stock Name matches (case-insensitive).
	// Empty keeps every row and is only accepted for single-stock files.
	Symbol     string
	DateLayout string
}

// LoadFile reads a stocks CSV from disk
func LoadFile(path string, opts LoadOptions) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prices csv: %w", err)
	}
	defer f.Close()
	return Load(f, opts)
}

// Load parses a stocks CSV. Columns are matched by header name; only Date
// and Close are required. Rows are returned sorted by date. Without a symbol
// filter a file holding several stocks fails with ErrInvalidInput.
func Load(r io.Reader, opts LoadOptions) (*Series, error) {
	layout := opts.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv", apperrors.ErrMalformedData)
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedData, err)
	}
	cols := indexColumns(header)
	for _, required := range []string{ColDate, ColClose} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", apperrors.ErrMalformedData, required)
		}
	}
	if _, ok := cols[ColSymbol]; !ok && opts.Symbol != "" {
		return nil, fmt.Errorf("%w: symbol filter needs column %q", apperrors.ErrMalformedData, ColSymbol)
	}

	series := &Series{Symbol: strings.ToUpper(opts.Symbol)}
	seen := make(map[string]struct{})
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", apperrors.ErrMalformedData, line, err)
		}

		symbol := field(record, cols, ColSymbol)
		if opts.Symbol != "" && !strings.EqualFold(symbol, opts.Symbol) {
			continue
		}

		bar, err := parseBar(record, cols, layout)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", apperrors.ErrMalformedData, line, err)
		}
		bar.Symbol = symbol
		series.Bars = append(series.Bars, bar)
		if symbol != "" {
			seen[strings.ToUpper(symbol)] = struct{}{}
		}
	}

	// Rows of different stocks must never be merged into one series
	if opts.Symbol == "" && len(seen) > 1 {
		return nil, fmt.Errorf("%w: csv holds %d symbols, select one", apperrors.ErrInvalidInput, len(seen))
	}

	if len(series.Bars) == 0 {
		if opts.Symbol != "" {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, opts.Symbol)
		}
		return nil, fmt.Errorf("%w: no rows", apperrors.ErrMalformedData)
	}

	sort.SliceStable(series.Bars, func(i, j int) bool {
		return series.Bars[i].Date.Before(series.Bars[j].Date)
	})
	if series.Symbol == "" {
		series.Symbol = strings.ToUpper(series.Bars[0].Symbol)
	}
	return series, nil
}

// Symbols lists the distinct Stock Name values of a CSV in first-seen order
func Symbols(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedData, err)
	}
	idx, ok := indexColumns(header)[ColSymbol]
	if !ok {
		return nil, fmt.Errorf("%w: missing column %q", apperrors.ErrMalformedData, ColSymbol)
	}

	seen := make(map[string]struct{})
	var out []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedData, err)
		}
		if idx >= len(record) {
			continue
		}
		name := strings.TrimSpace(record[idx])
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	return cols
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseBar(record []string, cols map[string]int, layout string) (Bar, error) {
	date, err := time.Parse(layout, field(record, cols, ColDate))
	if err != nil {
		return Bar{}, fmt.Errorf("date: %w", err)
	}
	bar := Bar{Date: date}

	closePrice, err := decimal.NewFromString(field(record, cols, ColClose))
	if err != nil {
		return Bar{}, fmt.Errorf("close: %w", err)
	}
	bar.Close = closePrice

	optional := []struct {
		col string
		dst *decimal.Decimal
	}{
		{ColOpen, &bar.Open},
		{ColHigh, &bar.High},
		{ColLow, &bar.Low},
		{ColAdjClose, &bar.AdjClose},
		{ColVolume, &bar.Volume},
	}
	for _, o := range optional {
		raw := field(record, cols, o.col)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return Bar{}, fmt.Errorf("%s: %w", strings.ToLower(o.col), err)
		}
		*o.dst = v
	}
	return bar, nil
}
