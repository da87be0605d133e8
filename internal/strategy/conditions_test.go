package strategy

import (
	"testing"

	"github.com/tidewave/tidewave/internal/indicators"
)

func ctxWithIndicators(values map[string]float64, prev map[string]float64) *Context {
	toCtx := func(vals map[string]float64) *Context {
		c := &Context{
			Price:      PriceFields{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000},
			Indicators: map[string]Value{},
			Variables:  map[string]float64{},
		}
		for id, v := range vals {
			c.Indicators[id] = ScalarValue(v)
		}
		return c
	}

	ctx := toCtx(values)
	if prev != nil {
		ctx.Prev = toCtx(prev)
	}
	return ctx
}

func TestRelationalPredicates(t *testing.T) {
	ctx := ctxWithIndicators(map[string]float64{"rsi": 35}, nil)

	cases := []struct {
		relation string
		left     string
		right    string
		want     bool
	}{
		{RelGreaterThan, "rsi", "30", true},
		{RelGreaterThan, "rsi", "40", false},
		{RelLessThan, "rsi", "40", true},
		{RelEquals, "rsi", "35", true},
		{RelNotEquals, "rsi", "35", false},
		{RelGreaterThan, "close", "low", true},
	}

	for _, tc := range cases {
		node := &ConditionNode{Relation: tc.relation, Left: tc.left, Right: tc.right}
		if got := EvalNode(node, ctx); got != tc.want {
			t.Errorf("%s(%s, %s): expected %v, got %v", tc.relation, tc.left, tc.right, tc.want, got)
		}
	}
}

func TestNullOperandIsFalse(t *testing.T) {
	ctx := ctxWithIndicators(map[string]float64{"rsi": indicators.Null()}, nil)

	node := &ConditionNode{Relation: RelGreaterThan, Left: "rsi", Right: "30"}
	if EvalNode(node, ctx) {
		t.Error("null left operand should evaluate to false")
	}

	node = &ConditionNode{Relation: RelLessThan, Left: "missing", Right: "30"}
	if EvalNode(node, ctx) {
		t.Error("unknown reference should evaluate to false")
	}
}

func TestBetweenPlainAndRatioMode(t *testing.T) {
	ctx := ctxWithIndicators(map[string]float64{"adx": 25, "fast": 98, "slow": 100}, nil)

	plain := &ConditionNode{
		Relation: RelBetween, Left: "adx",
		Params: &ConditionParams{Min: 20, Max: 40},
	}
	if !EvalNode(plain, ctx) {
		t.Error("25 should be inside [20, 40]")
	}

	// Ratio mode: fast/slow = 0.98 inside [0.95, 1.05].
	ratio := &ConditionNode{
		Relation: RelBetween, Left: "fast", Right: "slow",
		Params: &ConditionParams{Min: 0.95, Max: 1.05},
	}
	if !EvalNode(ratio, ctx) {
		t.Error("ratio 0.98 should be inside [0.95, 1.05]")
	}

	outside := &ConditionNode{
		Relation: RelBetween, Left: "fast", Right: "slow",
		Params: &ConditionParams{Min: 1.0, Max: 1.05},
	}
	if EvalNode(outside, ctx) {
		t.Error("ratio 0.98 should be outside [1.0, 1.05]")
	}

	if EvalNode(&ConditionNode{Relation: RelBetween, Left: "adx"}, ctx) {
		t.Error("between without params should be false")
	}
}

func TestCrossingPredicates(t *testing.T) {
	// smma33 moves 100 -> 110 across a flat smma144 at 105.
	ctx := ctxWithIndicators(
		map[string]float64{"smma33": 110, "smma144": 105},
		map[string]float64{"smma33": 100, "smma144": 105},
	)

	above := &ConditionNode{Relation: RelCrossesAbove, Left: "smma33", Right: "smma144"}
	if !EvalNode(above, ctx) {
		t.Error("smma33 should cross above smma144")
	}

	// With the current value below the reference no cross happened.
	ctx2 := ctxWithIndicators(
		map[string]float64{"smma33": 104, "smma144": 105},
		map[string]float64{"smma33": 100, "smma144": 105},
	)
	if EvalNode(above, ctx2) {
		t.Error("smma33 at 104 has not crossed above 105")
	}

	below := &ConditionNode{Relation: RelCrossesBelow, Left: "smma33", Right: "smma144"}
	ctx3 := ctxWithIndicators(
		map[string]float64{"smma33": 100, "smma144": 105},
		map[string]float64{"smma33": 110, "smma144": 105},
	)
	if !EvalNode(below, ctx3) {
		t.Error("smma33 should cross below smma144")
	}

	// Crossing needs a previous context.
	if EvalNode(above, ctxWithIndicators(map[string]float64{"smma33": 110, "smma144": 105}, nil)) {
		t.Error("crossing without previous context should be false")
	}
}

func TestDirectionPredicates(t *testing.T) {
	ctx := ctxWithIndicators(
		map[string]float64{"obv": 120},
		map[string]float64{"obv": 100},
	)

	if !EvalNode(&ConditionNode{Relation: RelIsRising, Left: "obv"}, ctx) {
		t.Error("obv should be rising")
	}
	if EvalNode(&ConditionNode{Relation: RelIsFalling, Left: "obv"}, ctx) {
		t.Error("obv should not be falling")
	}
}

func TestGroupsShortCircuitAndEmptyGroupIsTrue(t *testing.T) {
	ctx := ctxWithIndicators(map[string]float64{"rsi": 35}, nil)

	trueLeaf := ConditionNode{Relation: RelGreaterThan, Left: "rsi", Right: "30"}
	falseLeaf := ConditionNode{Relation: RelGreaterThan, Left: "rsi", Right: "90"}

	and := &ConditionNode{Operator: OpAnd, Conditions: []ConditionNode{trueLeaf, falseLeaf}}
	if EvalNode(and, ctx) {
		t.Error("AND with a false child should be false")
	}

	or := &ConditionNode{Operator: OpOr, Conditions: []ConditionNode{falseLeaf, trueLeaf}}
	if !EvalNode(or, ctx) {
		t.Error("OR with a true child should be true")
	}

	nested := &ConditionNode{Operator: OpAnd, Conditions: []ConditionNode{trueLeaf, *or}}
	if !EvalNode(nested, ctx) {
		t.Error("nested group should evaluate")
	}

	if !EvalNode(&ConditionNode{Operator: OpAnd}, ctx) {
		t.Error("empty group should be true")
	}
	if !EvalNode(nil, ctx) {
		t.Error("nil node should be true")
	}
}

func TestEvalSignalFiltersOnlyAfterConditions(t *testing.T) {
	ctx := ctxWithIndicators(map[string]float64{"rsi": 35}, nil)

	sig := &SignalDef{
		Conditions: &ConditionNode{Relation: RelLessThan, Left: "rsi", Right: "40"},
		Filters:    &ConditionNode{Relation: RelGreaterThan, Left: "volume", Right: "500"},
	}
	if !EvalSignal(sig, ctx) {
		t.Error("conditions and filters both hold, signal should fire")
	}

	sig.Filters = &ConditionNode{Relation: RelGreaterThan, Left: "volume", Right: "5000"}
	if EvalSignal(sig, ctx) {
		t.Error("failing filter should suppress the signal")
	}

	if EvalSignal(nil, ctx) {
		t.Error("nil signal should never fire")
	}
	if EvalSignal(&SignalDef{}, ctx) {
		t.Error("signal without conditions should never fire")
	}
}

func TestMultiLineDottedAccess(t *testing.T) {
	ctx := &Context{
		Price: PriceFields{Close: 100},
		Indicators: map[string]Value{
			"bb": RecordValue(map[string]float64{"upper": 110, "middle": 100, "lower": 90}, "middle"),
		},
	}

	node := &ConditionNode{Relation: RelLessThan, Left: "close", Right: "bb.upper"}
	if !EvalNode(node, ctx) {
		t.Error("close should be below bb.upper")
	}

	// Bare reference resolves the primary line.
	node = &ConditionNode{Relation: RelEquals, Left: "close", Right: "bb"}
	if !EvalNode(node, ctx) {
		t.Error("bare bb should resolve to the middle line")
	}

	node = &ConditionNode{Relation: RelLessThan, Left: "close", Right: "bb.nope"}
	if EvalNode(node, ctx) {
		t.Error("unknown line should resolve to null and be false")
	}
}
