package strategy

// Relation tags supported by condition leaves.
const (
	RelGreaterThan  = "greater_than"
	RelLessThan     = "less_than"
	RelEquals       = "equals"
	RelNotEquals    = "not_equals"
	RelBetween      = "between"
	RelCrossesAbove = "crosses_above"
	RelCrossesBelow = "crosses_below"
	RelIsRising     = "is_rising"
	RelIsFalling    = "is_falling"
)

// Group operators.
const (
	OpAnd = "and"
	OpOr  = "or"
)

// EvalNode evaluates a condition tree against the context. A nil node and an
// empty group are both true; any null operand makes its leaf false.
func EvalNode(node *ConditionNode, ctx *Context) bool {
	if node == nil {
		return true
	}
	if node.IsGroup() {
		return evalGroup(node, ctx)
	}
	return evalLeaf(node, ctx)
}

func evalGroup(node *ConditionNode, ctx *Context) bool {
	if len(node.Conditions) == 0 {
		return true
	}
	if node.Operator == OpOr {
		for i := range node.Conditions {
			if EvalNode(&node.Conditions[i], ctx) {
				return true
			}
		}
		return false
	}
	// Default operator is AND.
	for i := range node.Conditions {
		if !EvalNode(&node.Conditions[i], ctx) {
			return false
		}
	}
	return true
}

func evalLeaf(node *ConditionNode, ctx *Context) bool {
	left, ok := ctx.Resolve(node.Left)
	if !ok {
		return false
	}

	switch node.Relation {
	case RelGreaterThan, RelLessThan, RelEquals, RelNotEquals:
		right, ok := ctx.Resolve(node.Right)
		if !ok {
			return false
		}
		switch node.Relation {
		case RelGreaterThan:
			return left > right
		case RelLessThan:
			return left < right
		case RelEquals:
			return left == right
		default:
			return left != right
		}

	case RelBetween:
		if node.Params == nil {
			return false
		}
		lo, hi := node.Params.Min, node.Params.Max
		// Ratio mode: with a non-zero right operand the tested value is
		// left/right instead of left.
		if node.Right != "" {
			right, ok := ctx.Resolve(node.Right)
			if !ok {
				return false
			}
			if right != 0 {
				ratio := left / right
				return ratio >= lo && ratio <= hi
			}
		}
		return left >= lo && left <= hi

	case RelCrossesAbove, RelCrossesBelow:
		if ctx.Prev == nil {
			return false
		}
		right, ok := ctx.Resolve(node.Right)
		if !ok {
			return false
		}
		prevLeft, ok := ctx.Prev.Resolve(node.Left)
		if !ok {
			return false
		}
		prevRight, ok := ctx.Prev.Resolve(node.Right)
		if !ok {
			return false
		}
		if node.Relation == RelCrossesAbove {
			return prevLeft <= prevRight && left > right
		}
		return prevLeft >= prevRight && left < right

	case RelIsRising, RelIsFalling:
		if ctx.Prev == nil {
			return false
		}
		prevLeft, ok := ctx.Prev.Resolve(node.Left)
		if !ok {
			return false
		}
		if node.Relation == RelIsRising {
			return left > prevLeft
		}
		return left < prevLeft
	}

	return false
}

// EvalSignal evaluates a signal definition: conditions first, then filters
// only when the conditions hold. A nil signal never fires.
func EvalSignal(sig *SignalDef, ctx *Context) bool {
	if sig == nil || sig.Conditions == nil {
		return false
	}
	if !EvalNode(sig.Conditions, ctx) {
		return false
	}
	return EvalNode(sig.Filters, ctx)
}
