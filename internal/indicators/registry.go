package indicators

import (
	"fmt"
	"strings"
)

// Registry resolves indicators by name, case-insensitively. It ships with the
// builtin set and accepts runtime registration. The registry is read-mostly:
// register everything at startup, callers needing later registration must
// synchronise externally.
type Registry struct {
	byName map[string]Indicator
}

// NewRegistry returns a registry pre-populated with the builtin indicators.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Indicator)}
	for _, ind := range []Indicator{
		&SMA{}, &EMA{}, &SMMA{}, &RSI{}, &ATR{}, &MACD{},
		&Bollinger{}, &PivotPoints{}, &ADX{}, &Stochastic{},
		&OBV{}, &VolumeSMA{},
	} {
		r.Register(ind)
	}
	return r
}

// Register adds or replaces an indicator under its name.
func (r *Registry) Register(ind Indicator) {
	r.byName[strings.ToUpper(ind.Name())] = ind
}

// Get resolves an indicator by name.
func (r *Registry) Get(name string) (Indicator, bool) {
	ind, ok := r.byName[strings.ToUpper(name)]
	return ind, ok
}

// MustGet resolves an indicator or returns an error naming the type.
func (r *Registry) MustGet(name string) (Indicator, error) {
	ind, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown indicator type %q", name)
	}
	return ind, nil
}

// Names lists the registered indicator names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
