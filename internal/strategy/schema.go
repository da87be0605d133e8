// Package strategy defines the declarative strategy model: indicator and
// variable definitions, condition trees, signal and exit rules, and the
// versioned in-memory registry. Evaluation lives alongside the model so the
// executor can stay a thin per-candle loop.
package strategy

import (
	"time"

	"github.com/tidewave/tidewave/internal/indicators"
	"github.com/tidewave/tidewave/internal/ohlcv"
)

// Status is the lifecycle state of a strategy.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// DataRequirements declares what market data a strategy needs.
type DataRequirements struct {
	PrimaryTimeframe     ohlcv.Timeframe   `json:"primaryTimeframe"`
	AdditionalTimeframes []ohlcv.Timeframe `json:"additionalTimeframes,omitempty"`
	Lookback             int               `json:"lookback"`
	Symbols              []string          `json:"symbols,omitempty"`
}

// IndicatorDef declares one indicator instance used by a strategy.
type IndicatorDef struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Params    indicators.Params `json:"params,omitempty"`
	Timeframe ohlcv.Timeframe   `json:"timeframe,omitempty"` // empty = primary
}

// VariableDef declares a computed variable: an arithmetic expression over
// indicator ids and price fields, evaluated once per candle.
type VariableDef struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
}

// ConditionParams carries the extra operands some relations take.
type ConditionParams struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ConditionNode is one node of a condition tree. A node with an Operator (or
// child Conditions) is a group; otherwise it is a leaf relating Left to
// Right. An empty group evaluates to true.
type ConditionNode struct {
	Operator   string           `json:"operator,omitempty"` // "and" | "or"
	Conditions []ConditionNode  `json:"conditions,omitempty"`
	Relation   string           `json:"relation,omitempty"`
	Left       string           `json:"left,omitempty"`
	Right      string           `json:"right,omitempty"`
	Params     *ConditionParams `json:"params,omitempty"`
}

// IsGroup reports whether the node combines child conditions.
func (n *ConditionNode) IsGroup() bool {
	return n.Operator != "" || len(n.Conditions) > 0
}

// SignalDef pairs mandatory conditions with optional filters. Filters are
// only evaluated once the conditions hold.
type SignalDef struct {
	Conditions *ConditionNode `json:"conditions"`
	Filters    *ConditionNode `json:"filters,omitempty"`
}

// EntrySignals holds the long and short entry definitions.
type EntrySignals struct {
	Long  *SignalDef `json:"long,omitempty"`
	Short *SignalDef `json:"short,omitempty"`
}

// Stop and take-profit sizing modes.
const (
	ExitFixedPercent = "fixed_percent"
	ExitFixedPrice   = "fixed_price"
	ExitATRMultiple  = "atr_multiple"
	ExitRiskReward   = "risk_reward"
)

// StopLossConfig describes the protective stop distance.
type StopLossConfig struct {
	Type  string  `json:"type"` // fixed_percent | fixed_price | atr_multiple
	Value float64 `json:"value"`
}

// TakeProfitConfig describes the profit target distance.
type TakeProfitConfig struct {
	Type  string  `json:"type"` // fixed_percent | fixed_price | atr_multiple | risk_reward
	Value float64 `json:"value"`
}

// TrailingStopConfig describes the trailing stop state machine inputs.
type TrailingStopConfig struct {
	ActivationPercent float64 `json:"activationPercent"`
	TrailPercent      float64 `json:"trailPercent"`
}

// TimeoutConfig closes a position after it has been held too long.
type TimeoutConfig struct {
	MaxDurationMinutes int `json:"maxDurationMinutes"`
}

// ExitRules collects every exit mechanism a strategy can use.
type ExitRules struct {
	StopLoss     *StopLossConfig     `json:"stopLoss,omitempty"`
	TakeProfit   *TakeProfitConfig   `json:"takeProfit,omitempty"`
	TrailingStop *TrailingStopConfig `json:"trailingStop,omitempty"`
	SignalExit   *ConditionNode      `json:"signalExit,omitempty"`
	Timeout      *TimeoutConfig      `json:"timeout,omitempty"`
}

// RiskManagement describes sizing policy. Leverage is informational: sizing
// always works off available cash.
type RiskManagement struct {
	RiskPerTradePercent float64 `json:"riskPerTradePercent"`
	MaxOpenPositions    int     `json:"maxOpenPositions"`
	Leverage            float64 `json:"leverage,omitempty"`
}

// Schema is the full declarative strategy specification.
type Schema struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Version     string           `json:"version"`
	Status      Status           `json:"status"`
	Data        DataRequirements `json:"data"`
	Indicators  []IndicatorDef   `json:"indicators,omitempty"`
	Variables   []VariableDef    `json:"variables,omitempty"`
	Entry       EntrySignals     `json:"entry"`
	Exits       ExitRules        `json:"exits"`
	Risk        RiskManagement   `json:"risk"`
}

// VersionRecord is one entry of a strategy's version history.
type VersionRecord struct {
	Version   string    `json:"version"`
	Schema    Schema    `json:"schema"`
	CreatedAt time.Time `json:"createdAt"`
}

// RequiredWarmup returns the number of leading candles the strategy cannot
// trade on: the declared lookback or the largest indicator warmup, whichever
// is bigger. Unknown indicator types contribute nothing; the executor warns
// and skips them.
func (s *Schema) RequiredWarmup(registry *indicators.Registry) int {
	warmup := s.Data.Lookback
	for _, def := range s.Indicators {
		ind, ok := registry.Get(def.Type)
		if !ok {
			continue
		}
		if w := ind.RequiredWarmup(def.Params); w > warmup {
			warmup = w
		}
	}
	return warmup
}
