package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Columns

type ColumnID string

// MedianColumn is the primary model's point forecast (q50).
const MedianColumn ColumnID = "median_forecast"

// Missing returns the marker stored for a baseline value that was not supplied.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing-value marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Observation is one time-indexed actual value and the quantile forecast made for it.

type Observation struct {
	Timestamp      time.Time
	Actual         float64
	MedianForecast float64
	LowerBound     float64 // q10 by default
	UpperBound     float64 // q90 by default
	Baselines      map[string]float64
}

type observationJSON struct {
	Timestamp      time.Time           `json:"timestamp"`
	Actual         float64             `json:"actual"`
	MedianForecast float64             `json:"median_forecast"`
	LowerBound     float64             `json:"lower_bound"`
	UpperBound     float64             `json:"upper_bound"`
	Baselines      map[string]*float64 `json:"baselines,omitempty"`
}

func (o Observation) MarshalJSON() ([]byte, error) {
	out := observationJSON{
		Timestamp:      o.Timestamp,
		Actual:         o.Actual,
		MedianForecast: o.MedianForecast,
		LowerBound:     o.LowerBound,
		UpperBound:     o.UpperBound,
	}
	if len(o.Baselines) > 0 {
		out.Baselines = make(map[string]*float64, len(o.Baselines))
		for name, v := range o.Baselines {
			if IsMissing(v) {
				out.Baselines[name] = nil
				continue
			}
			out.Baselines[name] = &v
		}
	}
	return json.Marshal(out)
}

func (o *Observation) UnmarshalJSON(data []byte) error {
	var in observationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*o = Observation{
		Timestamp:      in.Timestamp,
		Actual:         in.Actual,
		MedianForecast: in.MedianForecast,
		LowerBound:     in.LowerBound,
		UpperBound:     in.UpperBound,
	}
	if len(in.Baselines) > 0 {
		o.Baselines = make(map[string]float64, len(in.Baselines))
		for name, v := range in.Baselines {
			if v == nil {
				o.Baselines[name] = Missing()
				continue
			}
			o.Baselines[name] = *v
		}
	}
	return nil
}

// Feature importance

type ImportanceEntry struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Results

// MetricResult is a named scalar paired with the number of samples behind it.
// Defined is false when the value is mathematically undefined; Value is then zero
// and Reason says why.
type MetricResult struct {
	Name    string
	Value   float64
	Defined bool
	Samples int
	Reason  string
}

func DefinedMetric(name string, value float64, samples int) MetricResult {
	return MetricResult{Name: name, Value: value, Defined: true, Samples: samples}
}

func UndefinedMetric(name string, samples int, reason string) MetricResult {
	return MetricResult{Name: name, Samples: samples, Reason: reason}
}

// Err returns an error wrapping ErrDegenerateMetric for an undefined result.
func (m MetricResult) Err() error {
	if m.Defined {
		return nil
	}
	return fmt.Errorf("%s: %s: %w", m.Name, m.Reason, ErrDegenerateMetric)
}

func (m MetricResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Name    string   `json:"name"`
		Value   *float64 `json:"value"`
		Samples int      `json:"samples"`
		Reason  string   `json:"reason,omitempty"`
	}{Name: m.Name, Samples: m.Samples, Reason: m.Reason}
	if m.Defined {
		v := m.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// Series is a named ordered sequence aligned with a RecordSet. Valid[i] is false where
// no value exists (insufficient history or a missing input).
type Series struct {
	Name    string
	Values  []float64
	Valid   []bool
	Samples int
}

func (s Series) Len() int { return len(s.Values) }

func (s Series) At(i int) (float64, bool) {
	return s.Values[i], s.Valid[i]
}

func (s Series) MarshalJSON() ([]byte, error) {
	values := make([]*float64, len(s.Values))
	for i := range s.Values {
		if s.Valid[i] {
			v := s.Values[i]
			values[i] = &v
		}
	}
	return json.Marshal(struct {
		Name    string     `json:"name"`
		Values  []*float64 `json:"values"`
		Samples int        `json:"samples"`
	}{Name: s.Name, Values: values, Samples: s.Samples})
}
