package strategy

import (
	"strconv"
	"strings"

	"github.com/tidewave/tidewave/internal/indicators"
)

// Value is one per-candle indicator result inside a context: a scalar, or a
// line-keyed record with a canonical primary line.
type Value struct {
	scalar  float64
	record  map[string]float64
	primary string
}

// ScalarValue wraps a single-line indicator value.
func ScalarValue(v float64) Value {
	return Value{scalar: v}
}

// RecordValue wraps a multi-line indicator record. primary names the line a
// bare reference resolves to.
func RecordValue(record map[string]float64, primary string) Value {
	return Value{scalar: indicators.Null(), record: record, primary: primary}
}

// Scalar returns the bare value: the scalar itself, or the primary line of a
// record.
func (v Value) Scalar() float64 {
	if v.record != nil {
		return v.Line(v.primary)
	}
	return v.scalar
}

// Line returns a named line, null when absent.
func (v Value) Line(name string) float64 {
	if v.record == nil {
		return indicators.Null()
	}
	out, ok := v.record[name]
	if !ok {
		return indicators.Null()
	}
	return out
}

// PriceFields carries the current candle's raw fields.
type PriceFields struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Context is the symbol space one candle's conditions evaluate against.
// Prev, when set, is the context of the previous primary candle and powers
// the crossing and direction predicates.
type Context struct {
	Price      PriceFields
	Indicators map[string]Value
	Variables  map[string]float64
	Prev       *Context
}

// Resolve maps a reference to a numeric value. Resolution order: numeric
// literal, price field, dotted indicator line, indicator id, variable id.
// ok is false when the reference resolves to null or nothing at all.
func (c *Context) Resolve(ref string) (float64, bool) {
	if c == nil || ref == "" {
		return 0, false
	}

	if v, err := strconv.ParseFloat(ref, 64); err == nil {
		return v, true
	}

	switch ref {
	case "open":
		return c.Price.Open, true
	case "high":
		return c.Price.High, true
	case "low":
		return c.Price.Low, true
	case "close":
		return c.Price.Close, true
	case "volume":
		return c.Price.Volume, true
	}

	if dot := strings.IndexByte(ref, '.'); dot > 0 {
		id, line := ref[:dot], ref[dot+1:]
		if val, ok := c.Indicators[id]; ok {
			return finite(val.Line(line))
		}
		return 0, false
	}

	if val, ok := c.Indicators[ref]; ok {
		return finite(val.Scalar())
	}

	if v, ok := c.Variables[ref]; ok {
		return finite(v)
	}

	return 0, false
}

func finite(v float64) (float64, bool) {
	if indicators.IsNull(v) {
		return 0, false
	}
	return v, true
}
