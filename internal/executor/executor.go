// Package executor walks a primary candle series, computes every declared
// indicator on its own timeframe, evaluates computed variables and condition
// trees per candle, and emits entry/exit signals. It never mutates position
// state itself; the engine tells it about positions via SetPosition.
package executor

import (
	"fmt"
	"sync"

	"github.com/tidewave/tidewave/internal/indicators"
	"github.com/tidewave/tidewave/internal/logger"
	"github.com/tidewave/tidewave/internal/ohlcv"
	"github.com/tidewave/tidewave/internal/strategy"
)

// SignalType tags what the strategy wants to do on a candle.
type SignalType string

const (
	SignalNone       SignalType = "none"
	SignalEntryLong  SignalType = "entry_long"
	SignalEntryShort SignalType = "entry_short"
	SignalExitLong   SignalType = "exit_long"
	SignalExitShort  SignalType = "exit_short"
)

// Side of an open position, as the executor needs to know it.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Signal is one per-candle decision. Price is the candle close.
type Signal struct {
	Type      SignalType
	Symbol    string
	Price     float64
	Timestamp ohlcv.TimeMs
}

// CandleResult is the evaluated context of one primary candle. The signal
// decision is taken separately by SignalFor, because it depends on the live
// position state the engine feeds back during its loop.
type CandleResult struct {
	Candle  ohlcv.Candle
	Context *strategy.Context
}

// compiledVariable pairs a variable id with its parsed expression.
type compiledVariable struct {
	id   string
	expr strategy.Expr
}

// Executor evaluates one strategy over candle series.
type Executor struct {
	schema    *strategy.Schema
	registry  *indicators.Registry
	log       *logger.Logger
	variables []compiledVariable

	mu        sync.Mutex
	positions map[string]Side
}

// New compiles the strategy's computed variables and prepares the executor.
// Unparseable variable expressions fail construction; unknown indicator
// types are tolerated until Execute, where they are skipped with a warning.
func New(schema *strategy.Schema, registry *indicators.Registry, log *logger.Logger) (*Executor, error) {
	if log == nil {
		log = logger.Default()
	}

	vars := make([]compiledVariable, 0, len(schema.Variables))
	for _, def := range schema.Variables {
		expr, err := strategy.ParseExpr(def.Expression)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", def.ID, err)
		}
		vars = append(vars, compiledVariable{id: def.ID, expr: expr})
	}

	return &Executor{
		schema:    schema,
		registry:  registry,
		log:       log.Component("executor"),
		variables: vars,
		positions: make(map[string]Side),
	}, nil
}

// SetPosition tells the executor about the open position for a symbol.
// An empty side clears it.
func (e *Executor) SetPosition(symbol string, side Side) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if side == "" {
		delete(e.positions, symbol)
		return
	}
	e.positions[symbol] = side
}

// positionSide returns the open side for a symbol, if any.
func (e *Executor) positionSide(symbol string) (Side, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	side, ok := e.positions[symbol]
	return side, ok
}

// indicatorSeries is one computed indicator aligned to the primary series.
type indicatorSeries struct {
	output *indicators.Output
	// htfIndex maps a primary candle index to the index of the most recently
	// closed higher-timeframe candle, or -1. Nil for primary-timeframe
	// indicators.
	htfIndex []int
}

// valueAt builds the context Value for primary candle i.
func (is *indicatorSeries) valueAt(i int) strategy.Value {
	idx := i
	if is.htfIndex != nil {
		idx = is.htfIndex[i]
		if idx < 0 {
			if is.output.MultiLine() {
				return strategy.RecordValue(nil, "")
			}
			return strategy.ScalarValue(indicators.Null())
		}
	}
	if is.output.MultiLine() {
		return strategy.RecordValue(is.output.Record(idx), is.output.Lines[0])
	}
	return strategy.ScalarValue(is.output.Primary(idx))
}

// Execute evaluates the strategy over the primary series. mtf maps each
// additional timeframe to its candle series; it may be nil when the strategy
// only uses the primary timeframe.
func (e *Executor) Execute(series []ohlcv.Candle, symbol string, mtf map[ohlcv.Timeframe][]ohlcv.Candle) ([]CandleResult, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("empty candle series")
	}

	computed := make(map[string]*indicatorSeries, len(e.schema.Indicators))
	for _, def := range e.schema.Indicators {
		ind, ok := e.registry.Get(def.Type)
		if !ok {
			e.log.Warn("Skipping indicator with unregistered type",
				"indicator", def.ID, "type", def.Type)
			continue
		}

		target := series
		var htfIndex []int
		if def.Timeframe != "" && def.Timeframe != e.schema.Data.PrimaryTimeframe {
			htf, ok := mtf[def.Timeframe]
			if !ok {
				e.log.Warn("Missing candle series for indicator timeframe",
					"indicator", def.ID, "timeframe", def.Timeframe)
				continue
			}
			target = htf
			htfIndex = alignToClosed(series, htf, e.schema.Data.PrimaryTimeframe, def.Timeframe)
		}

		output, err := ind.Calculate(target, def.Params)
		if err != nil {
			return nil, fmt.Errorf("indicator %q: %w", def.ID, err)
		}
		computed[def.ID] = &indicatorSeries{output: output, htfIndex: htfIndex}
	}

	results := make([]CandleResult, len(series))
	var prev *strategy.Context

	for i, candle := range series {
		ctx := &strategy.Context{
			Price: strategy.PriceFields{
				Open:   candle.Open,
				High:   candle.High,
				Low:    candle.Low,
				Close:  candle.Close,
				Volume: candle.Volume,
			},
			Indicators: make(map[string]strategy.Value, len(computed)),
			Variables:  make(map[string]float64, len(e.variables)),
			Prev:       prev,
		}
		for id, is := range computed {
			ctx.Indicators[id] = is.valueAt(i)
		}
		for _, v := range e.variables {
			val, ok := v.expr.Eval(ctx)
			if !ok {
				val = indicators.Null()
			}
			ctx.Variables[v.id] = val
		}

		results[i] = CandleResult{Candle: candle, Context: ctx}
		prev = ctx
	}

	return results, nil
}

// SignalFor applies the exit-then-entry decision order for one evaluated
// candle, against the position state last reported via SetPosition.
func (e *Executor) SignalFor(result CandleResult, symbol string) Signal {
	ctx := result.Context
	candle := result.Candle
	signal := Signal{
		Type:      SignalNone,
		Symbol:    symbol,
		Price:     candle.Close,
		Timestamp: candle.Timestamp,
	}

	if side, open := e.positionSide(symbol); open {
		if e.schema.Exits.SignalExit != nil && strategy.EvalNode(e.schema.Exits.SignalExit, ctx) {
			if side == SideLong {
				signal.Type = SignalExitLong
			} else {
				signal.Type = SignalExitShort
			}
		}
		return signal
	}

	if strategy.EvalSignal(e.schema.Entry.Long, ctx) {
		signal.Type = SignalEntryLong
		return signal
	}
	if strategy.EvalSignal(e.schema.Entry.Short, ctx) {
		signal.Type = SignalEntryShort
		return signal
	}
	return signal
}

// alignToClosed maps every primary candle to the most recently closed
// higher-timeframe candle: the one whose start is at or before the primary
// candle's aligned start minus one higher-timeframe period. Both series are
// walked once.
func alignToClosed(primary, htf []ohlcv.Candle, primaryTF, htfTF ohlcv.Timeframe) []int {
	index := make([]int, len(primary))
	htfMs := htfTF.DurationMs()
	j := 0
	for i, candle := range primary {
		cutoff := int64(primaryTF.Align(candle.Timestamp)) - htfMs
		for j < len(htf) && int64(htf[j].Timestamp) <= cutoff {
			j++
		}
		index[i] = j - 1
	}
	return index
}
