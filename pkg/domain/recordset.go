package domain

import (
	"fmt"
	"math"
	"time"
)

// RecordSet is an immutable, chronologically ordered sequence of observations.
// Every record carries every declared baseline column, possibly as the missing marker.
type RecordSet struct {
	records   []Observation
	baselines []string
}

// NewRecordSet validates and deep-copies records. The order of records and of
// baselines is preserved; baselines fixes the declaration order used for tie-breaks.
func NewRecordSet(records []Observation, baselines []string) (*RecordSet, error) {
	seen := make(map[string]bool, len(baselines))
	for _, name := range baselines {
		if name == "" {
			return nil, fmt.Errorf("empty baseline name: %w", ErrSchemaMismatch)
		}
		if ColumnID(name) == MedianColumn {
			return nil, fmt.Errorf("baseline %q shadows the primary column: %w", name, ErrSchemaMismatch)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate baseline %q: %w", name, ErrSchemaMismatch)
		}
		seen[name] = true
	}

	rs := &RecordSet{
		records:   make([]Observation, len(records)),
		baselines: append([]string(nil), baselines...),
	}

	for i, r := range records {
		required := []struct {
			field string
			v     float64
		}{
			{"actual", r.Actual},
			{"median_forecast", r.MedianForecast},
			{"lower_bound", r.LowerBound},
			{"upper_bound", r.UpperBound},
		}
		for _, f := range required {
			if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
				return nil, fmt.Errorf("record %d: %s is not a finite number: %w", i, f.field, ErrSchemaMismatch)
			}
		}
		if len(r.Baselines) != len(baselines) {
			return nil, fmt.Errorf("record %d: has %d baseline values, schema declares %d: %w",
				i, len(r.Baselines), len(baselines), ErrSchemaMismatch)
		}

		cp := r
		cp.Baselines = make(map[string]float64, len(baselines))
		for _, name := range baselines {
			v, ok := r.Baselines[name]
			if !ok {
				return nil, fmt.Errorf("record %d: baseline %q absent: %w", i, name, ErrSchemaMismatch)
			}
			cp.Baselines[name] = v
		}
		rs.records[i] = cp
	}

	return rs, nil
}

func (rs *RecordSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.records)
}

// Baselines returns the baseline column names in declaration order.
func (rs *RecordSet) Baselines() []string {
	if rs == nil {
		return nil
	}
	return append([]string(nil), rs.baselines...)
}

// Columns returns the primary column followed by every baseline.
func (rs *RecordSet) Columns() []ColumnID {
	cols := []ColumnID{MedianColumn}
	for _, name := range rs.Baselines() {
		cols = append(cols, ColumnID(name))
	}
	return cols
}

func (rs *RecordSet) HasColumn(col ColumnID) bool {
	if col == MedianColumn {
		return true
	}
	for _, name := range rs.Baselines() {
		if ColumnID(name) == col {
			return true
		}
	}
	return false
}

// At returns a copy of the i-th observation.
func (rs *RecordSet) At(i int) Observation {
	r := rs.records[i]
	baselines := make(map[string]float64, len(r.Baselines))
	for k, v := range r.Baselines {
		baselines[k] = v
	}
	r.Baselines = baselines
	return r
}

func (rs *RecordSet) Timestamps() []time.Time {
	out := make([]time.Time, rs.Len())
	for i := range out {
		out[i] = rs.records[i].Timestamp
	}
	return out
}

func (rs *RecordSet) Actuals() []float64 {
	return rs.extract(func(o *Observation) float64 { return o.Actual })
}

func (rs *RecordSet) LowerBounds() []float64 {
	return rs.extract(func(o *Observation) float64 { return o.LowerBound })
}

func (rs *RecordSet) UpperBounds() []float64 {
	return rs.extract(func(o *Observation) float64 { return o.UpperBound })
}

// Column returns the forecast values of col, with the missing marker where a
// baseline value was not supplied.
func (rs *RecordSet) Column(col ColumnID) ([]float64, error) {
	if col == MedianColumn {
		return rs.extract(func(o *Observation) float64 { return o.MedianForecast }), nil
	}
	if !rs.HasColumn(col) {
		return nil, fmt.Errorf("column %q: %w", col, ErrSchemaMismatch)
	}
	name := string(col)
	return rs.extract(func(o *Observation) float64 { return o.Baselines[name] }), nil
}

// Span returns the first and last timestamps.
func (rs *RecordSet) Span() (time.Time, time.Time) {
	if rs.Len() == 0 {
		return time.Time{}, time.Time{}
	}
	return rs.records[0].Timestamp, rs.records[len(rs.records)-1].Timestamp
}

func (rs *RecordSet) extract(field func(*Observation) float64) []float64 {
	out := make([]float64, rs.Len())
	for i := range out {
		out[i] = field(&rs.records[i])
	}
	return out
}
