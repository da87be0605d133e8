package strategy

import (
	"errors"
	"fmt"

	"github.com/tidewave/tidewave/internal/indicators"
)

// reservedNames cannot be used as indicator or variable ids because bare
// references resolve price fields first.
var reservedNames = map[string]bool{
	"open": true, "high": true, "low": true, "close": true, "volume": true,
}

// Validate checks a schema against the indicator registry. All problems are
// reported at once so strategy editors get a complete picture.
func Validate(s *Schema, registry *indicators.Registry) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Name == "" {
		fail("strategy name is required")
	}
	if !s.Data.PrimaryTimeframe.IsValid() {
		fail("primary timeframe %q is not supported", s.Data.PrimaryTimeframe)
	}
	if s.Data.Lookback < 0 {
		fail("lookback must not be negative")
	}

	allowedTimeframes := map[string]bool{string(s.Data.PrimaryTimeframe): true}
	for _, tf := range s.Data.AdditionalTimeframes {
		if !tf.IsValid() {
			fail("additional timeframe %q is not supported", tf)
			continue
		}
		allowedTimeframes[string(tf)] = true
	}

	seen := make(map[string]bool)
	maxWarmup := 0
	for _, def := range s.Indicators {
		if def.ID == "" {
			fail("indicator of type %q is missing an id", def.Type)
			continue
		}
		if reservedNames[def.ID] {
			fail("indicator id %q collides with a price field", def.ID)
		}
		if seen[def.ID] {
			fail("duplicate indicator id %q", def.ID)
		}
		seen[def.ID] = true

		ind, ok := registry.Get(def.Type)
		if !ok {
			fail("indicator %q: unknown type %q", def.ID, def.Type)
			continue
		}
		if err := ind.Validate(def.Params); err != nil {
			fail("indicator %q: %v", def.ID, err)
		}
		if def.Timeframe != "" && !allowedTimeframes[string(def.Timeframe)] {
			fail("indicator %q: timeframe %q is outside the declared set", def.ID, def.Timeframe)
		}
		if w := ind.RequiredWarmup(def.Params); w > maxWarmup {
			maxWarmup = w
		}
	}

	for _, v := range s.Variables {
		if v.ID == "" {
			fail("computed variable is missing an id")
			continue
		}
		if reservedNames[v.ID] {
			fail("variable id %q collides with a price field", v.ID)
		}
		if seen[v.ID] {
			fail("duplicate id %q", v.ID)
		}
		seen[v.ID] = true

		if _, err := ParseExpr(v.Expression); err != nil {
			fail("variable %q: %v", v.ID, err)
		}
	}

	if s.Entry.Long == nil && s.Entry.Short == nil {
		fail("strategy defines no entry signals")
	}

	if s.Data.Lookback > 0 && s.Data.Lookback < maxWarmup {
		fail("lookback %d is below the largest indicator warmup %d", s.Data.Lookback, maxWarmup)
	}

	if sl := s.Exits.StopLoss; sl != nil {
		switch sl.Type {
		case ExitFixedPercent, ExitFixedPrice, ExitATRMultiple:
		default:
			fail("stop loss: unknown type %q", sl.Type)
		}
		if sl.Value <= 0 {
			fail("stop loss value must be positive")
		}
	}
	if tp := s.Exits.TakeProfit; tp != nil {
		switch tp.Type {
		case ExitFixedPercent, ExitFixedPrice, ExitATRMultiple, ExitRiskReward:
		default:
			fail("take profit: unknown type %q", tp.Type)
		}
		if tp.Value <= 0 {
			fail("take profit value must be positive")
		}
	}
	if ts := s.Exits.TrailingStop; ts != nil {
		if ts.TrailPercent <= 0 {
			fail("trailing stop trail percent must be positive")
		}
		if ts.ActivationPercent < 0 {
			fail("trailing stop activation percent must not be negative")
		}
	}

	if s.Risk.RiskPerTradePercent < 0 || s.Risk.RiskPerTradePercent > 100 {
		fail("risk per trade must be between 0 and 100 percent")
	}
	if s.Risk.MaxOpenPositions < 0 {
		fail("max open positions must not be negative")
	}

	return errors.Join(errs...)
}
