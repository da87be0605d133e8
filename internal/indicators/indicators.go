// Package indicators implements the technical-indicator library.
//
// Every indicator produces an output aligned with its input series: entry i
// describes candle i, and the first RequiredWarmup-1 entries are null. Nulls
// are represented as NaN for scalar lines and as nil records for multi-line
// outputs, so downstream condition evaluation can treat "not enough data yet"
// and "missing" uniformly.
package indicators

import (
	"fmt"
	"math"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// PriceSource selects which per-candle value an indicator consumes.
type PriceSource string

const (
	SourceOpen   PriceSource = "open"
	SourceHigh   PriceSource = "high"
	SourceLow    PriceSource = "low"
	SourceClose  PriceSource = "close"
	SourceVolume PriceSource = "volume"
	SourceHL2    PriceSource = "hl2"
	SourceHLC3   PriceSource = "hlc3"
	SourceOHLC4  PriceSource = "ohlc4"
)

// Null is the null indicator value.
func Null() float64 { return math.NaN() }

// IsNull reports whether an indicator value is null (NaN or infinite).
func IsNull(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// SourceValues extracts the chosen price series from candles. An empty source
// defaults to close.
func SourceValues(series []ohlcv.Candle, source PriceSource) []float64 {
	out := make([]float64, len(series))
	for i, c := range series {
		switch source {
		case SourceOpen:
			out[i] = c.Open
		case SourceHigh:
			out[i] = c.High
		case SourceLow:
			out[i] = c.Low
		case SourceVolume:
			out[i] = c.Volume
		case SourceHL2:
			out[i] = (c.High + c.Low) / 2
		case SourceHLC3:
			out[i] = (c.High + c.Low + c.Close) / 3
		case SourceOHLC4:
			out[i] = (c.Open + c.High + c.Low + c.Close) / 4
		default:
			out[i] = c.Close
		}
	}
	return out
}

// ValidSource reports whether the price-source tag is recognised.
func ValidSource(source PriceSource) bool {
	switch source {
	case "", SourceOpen, SourceHigh, SourceLow, SourceClose, SourceVolume,
		SourceHL2, SourceHLC3, SourceOHLC4:
		return true
	}
	return false
}

// Param describes one indicator parameter.
type Param struct {
	Name    string
	Type    string // "int", "float" or "string"
	Default any
	Min     float64
	Max     float64
	Step    float64
	Options []string // allowed values for string params
}

// Params is the untyped parameter map passed to indicators.
type Params map[string]any

// Int reads an integer parameter, falling back to def when absent.
func (p Params) Int(name string, def int) int {
	v, ok := p[name]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Float reads a float parameter, falling back to def when absent.
func (p Params) Float(name string, def float64) float64 {
	v, ok := p[name]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// String reads a string parameter, falling back to def when absent.
func (p Params) String(name string, def string) string {
	if v, ok := p[name].(string); ok && v != "" {
		return v
	}
	return def
}

// Source reads the price-source parameter.
func (p Params) Source() PriceSource {
	return PriceSource(p.String("source", string(SourceClose)))
}

// Output is the aligned result of one indicator calculation.
//
// Single-line indicators fill Values; multi-line indicators fill Records and
// Lines (line names in defined order, first is the canonical primary line).
// Both slices have the same length as the input series.
type Output struct {
	Values  []float64
	Records []map[string]float64
	Lines   []string
}

// Len returns the number of aligned entries.
func (o *Output) Len() int {
	if o == nil {
		return 0
	}
	if o.Records != nil {
		return len(o.Records)
	}
	return len(o.Values)
}

// MultiLine reports whether the output carries named lines.
func (o *Output) MultiLine() bool {
	return o != nil && len(o.Lines) > 0
}

// Primary returns the scalar value at index i: the value itself for
// single-line outputs, the first defined line otherwise. Null when out of
// range or during warmup.
func (o *Output) Primary(i int) float64 {
	if o == nil || i < 0 || i >= o.Len() {
		return Null()
	}
	if o.MultiLine() {
		return o.Line(i, o.Lines[0])
	}
	return o.Values[i]
}

// Line returns the named line value at index i. Null when absent.
func (o *Output) Line(i int, name string) float64 {
	if o == nil || i < 0 || i >= len(o.Records) || o.Records[i] == nil {
		return Null()
	}
	v, ok := o.Records[i][name]
	if !ok {
		return Null()
	}
	return v
}

// Record returns the line-keyed record at index i, nil during warmup.
func (o *Output) Record(i int) map[string]float64 {
	if o == nil || i < 0 || i >= len(o.Records) {
		return nil
	}
	return o.Records[i]
}

// Indicator is the capability set every indicator exposes.
type Indicator interface {
	// Name is the stable registry name, e.g. "RSI".
	Name() string
	// Params describes the accepted parameters with defaults and bounds.
	Params() []Param
	// Validate checks a parameter map against the parameter definitions.
	Validate(params Params) error
	// RequiredWarmup reports the minimum candles before a non-null output.
	RequiredWarmup(params Params) int
	// Calculate produces the aligned output for the series.
	Calculate(series []ohlcv.Candle, params Params) (*Output, error)
}

// validateParams applies the generic range and option checks from parameter
// definitions. Unknown keys are rejected so typos surface at load time.
func validateParams(defs []Param, params Params) error {
	byName := make(map[string]Param, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	for key, raw := range params {
		def, ok := byName[key]
		if !ok {
			return fmt.Errorf("unknown parameter %q", key)
		}
		switch def.Type {
		case "int", "float":
			v := Params{key: raw}.Float(key, math.NaN())
			if math.IsNaN(v) {
				return fmt.Errorf("parameter %q must be numeric", key)
			}
			if def.Min != 0 || def.Max != 0 {
				if v < def.Min || v > def.Max {
					return fmt.Errorf("parameter %q out of range [%v, %v]", key, def.Min, def.Max)
				}
			}
		case "string":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("parameter %q must be a string", key)
			}
			if len(def.Options) > 0 {
				found := false
				for _, opt := range def.Options {
					if opt == s {
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("parameter %q: unsupported value %q", key, s)
				}
			}
		}
	}
	return nil
}

// nullValues returns a series-length slice of nulls.
func nullValues(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = Null()
	}
	return out
}

var sourceParam = Param{
	Name: "source", Type: "string", Default: string(SourceClose),
	Options: []string{"open", "high", "low", "close", "volume", "hl2", "hlc3", "ohlc4"},
}
