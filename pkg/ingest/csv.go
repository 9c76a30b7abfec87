package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/minos-eval/minos/pkg/domain"
)

// Schema names the CSV columns of the three input files.
type Schema struct {
	Timestamp  string
	Actual     string
	Median     string
	Lower      string
	Upper      string
	Feature    string
	Importance string
	// Baselines restricts and orders the baseline columns. Empty means every
	// non-timestamp column of the baselines file, in header order.
	Baselines []string
}

// DefaultSchema matches the column names written by the forecasting pipeline.
func DefaultSchema() Schema {
	return Schema{
		Timestamp:  "Date",
		Actual:     "y_true",
		Median:     "q50",
		Lower:      "q10",
		Upper:      "q90",
		Feature:    "Feature",
		Importance: "Importance",
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the naive date-time layouts, the latter read as UTC.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

// PredictionRow is one parsed line of the predictions file.
type PredictionRow struct {
	Timestamp time.Time
	Actual    float64
	Median    float64
	Lower     float64
	Upper     float64
}

// BaselineTable holds baseline forecasts keyed by timestamp. A later row with the same
// timestamp replaces an earlier one.
type BaselineTable struct {
	Names []string
	rows  map[int64]map[string]float64 // keyed by UnixNano
}

// Lookup returns the baseline values at ts.
func (b *BaselineTable) Lookup(ts time.Time) (map[string]float64, bool) {
	if b == nil {
		return nil, false
	}
	row, ok := b.rows[ts.UnixNano()]
	return row, ok
}

func (b *BaselineTable) Len() int {
	if b == nil {
		return 0
	}
	return len(b.rows)
}

type table struct {
	header map[string]int
	names  []string
	reader *csv.Reader
	line   int
}

func newTable(r io.Reader, what string) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s file has no header: %w", what, domain.ErrEmptyInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s header: %w", what, err)
	}

	t := &table{header: make(map[string]int, len(header)), reader: cr, line: 1}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		t.header[name] = i
		t.names = append(t.names, name)
	}
	return t, nil
}

func (t *table) column(name, what string) (int, error) {
	i, ok := t.header[name]
	if !ok {
		return 0, fmt.Errorf("%s file has no %q column: %w", what, name, domain.ErrSchemaMismatch)
	}
	return i, nil
}

// next returns the next record, or io.EOF.
func (t *table) next() ([]string, error) {
	rec, err := t.reader.Read()
	if err != nil {
		return nil, err
	}
	t.line++
	return rec, nil
}

func parseRequired(rec []string, idx int, field string, line int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("line %d: %s %q is not a finite number: %w", line, field, rec[idx], domain.ErrSchemaMismatch)
	}
	return v, nil
}

func parseOptional(cell string, field string, line int) (float64, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "", "nan", "na", "null", "none":
		return domain.Missing(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s %q is not a number: %w", line, field, cell, domain.ErrSchemaMismatch)
	}
	if math.IsInf(v, 0) {
		return domain.Missing(), nil
	}
	return v, nil
}

// ReadPredictions parses the predictions file.
func ReadPredictions(r io.Reader, s Schema) ([]PredictionRow, error) {
	t, err := newTable(r, "predictions")
	if err != nil {
		return nil, err
	}

	fields := []string{s.Timestamp, s.Actual, s.Median, s.Lower, s.Upper}
	idx := make([]int, len(fields))
	for i, name := range fields {
		if idx[i], err = t.column(name, "predictions"); err != nil {
			return nil, err
		}
	}

	var rows []PredictionRow
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read predictions: %w", err)
		}

		ts, err := ParseTimestamp(rec[idx[0]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", t.line, err, domain.ErrSchemaMismatch)
		}
		var values [4]float64
		for i := range values {
			if values[i], err = parseRequired(rec, idx[i+1], fields[i+1], t.line); err != nil {
				return nil, err
			}
		}
		rows = append(rows, PredictionRow{
			Timestamp: ts,
			Actual:    values[0],
			Median:    values[1],
			Lower:     values[2],
			Upper:     values[3],
		})
	}
	return rows, nil
}

// ReadBaselines parses the baselines file.
func ReadBaselines(r io.Reader, s Schema) (*BaselineTable, error) {
	t, err := newTable(r, "baselines")
	if err != nil {
		return nil, err
	}
	tsIdx, err := t.column(s.Timestamp, "baselines")
	if err != nil {
		return nil, err
	}

	names := s.Baselines
	if len(names) == 0 {
		for _, name := range t.names {
			if name != s.Timestamp && name != "" {
				names = append(names, name)
			}
		}
	}
	cols := make([]int, len(names))
	for i, name := range names {
		if cols[i], err = t.column(name, "baselines"); err != nil {
			return nil, err
		}
	}

	table := &BaselineTable{
		Names: append([]string(nil), names...),
		rows:  make(map[int64]map[string]float64),
	}
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read baselines: %w", err)
		}

		ts, err := ParseTimestamp(rec[tsIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", t.line, err, domain.ErrSchemaMismatch)
		}
		row := make(map[string]float64, len(names))
		for i, name := range names {
			if row[name], err = parseOptional(rec[cols[i]], name, t.line); err != nil {
				return nil, err
			}
		}
		table.rows[ts.UnixNano()] = row
	}
	return table, nil
}

// ReadImportance parses the feature importance file.
func ReadImportance(r io.Reader, s Schema) ([]domain.ImportanceEntry, error) {
	t, err := newTable(r, "features")
	if err != nil {
		return nil, err
	}
	featIdx, err := t.column(s.Feature, "features")
	if err != nil {
		return nil, err
	}
	impIdx, err := t.column(s.Importance, "features")
	if err != nil {
		return nil, err
	}

	entries := []domain.ImportanceEntry{}
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read features: %w", err)
		}

		name := strings.TrimSpace(rec[featIdx])
		if name == "" {
			return nil, fmt.Errorf("line %d: empty feature name: %w", t.line, domain.ErrSchemaMismatch)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[impIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: importance %q is not a number: %w", t.line, rec[impIdx], domain.ErrSchemaMismatch)
		}
		entries = append(entries, domain.ImportanceEntry{Feature: name, Importance: v})
	}
	return entries, nil
}

// Join left-joins baselines onto predictions by timestamp and orders the result
// chronologically. Predictions without a baseline row get the missing marker.
func Join(predictions []PredictionRow, baselines *BaselineTable) (*domain.RecordSet, error) {
	var names []string
	if baselines != nil {
		names = baselines.Names
	}

	records := make([]domain.Observation, len(predictions))
	for i, p := range predictions {
		obs := domain.Observation{
			Timestamp:      p.Timestamp,
			Actual:         p.Actual,
			MedianForecast: p.Median,
			LowerBound:     p.Lower,
			UpperBound:     p.Upper,
			Baselines:      make(map[string]float64, len(names)),
		}
		row, ok := baselines.Lookup(p.Timestamp)
		for _, name := range names {
			if ok {
				obs.Baselines[name] = row[name]
			} else {
				obs.Baselines[name] = domain.Missing()
			}
		}
		records[i] = obs
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return domain.NewRecordSet(records, names)
}
