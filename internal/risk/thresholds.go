package risk

import (
	"fmt"
	"math"
)

// daysPerMonth is the month length used for every months/days conversion.
const daysPerMonth = 30

// ThresholdConfig holds the configurable clinical cut points. Values are only
// obtainable through NewThresholdConfig or DefaultThresholds, so a
// ThresholdConfig in hand has already been validated.
type ThresholdConfig struct {
	good               float64
	acceptable         float64
	action             float64
	overdueLabMonths   int
	overdueVisitMonths int
	urgentDays         int
	overdueDefaultDays int
}

// positiveFinite is false for NaN, which fails every comparison.
func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// NewThresholdConfig validates and builds a ThresholdConfig.
// HbA1c cut points are finite, in mmol/mol, and must satisfy
// 0 < good < acceptable < action.
func NewThresholdConfig(good, acceptable, action float64, overdueLabMonths, overdueVisitMonths, urgentDays, overdueDefaultDays int) (ThresholdConfig, error) {
	switch {
	case !positiveFinite(good):
		return ThresholdConfig{}, &ConfigError{Field: "good", Reason: fmt.Sprintf("must be a positive finite number, got %v", good)}
	case !positiveFinite(acceptable):
		return ThresholdConfig{}, &ConfigError{Field: "acceptable", Reason: fmt.Sprintf("must be a positive finite number, got %v", acceptable)}
	case !positiveFinite(action):
		return ThresholdConfig{}, &ConfigError{Field: "action", Reason: fmt.Sprintf("must be a positive finite number, got %v", action)}
	case !(good < acceptable):
		return ThresholdConfig{}, &ConfigError{Field: "good", Reason: fmt.Sprintf("must be below acceptable (%v >= %v)", good, acceptable)}
	case !(acceptable < action):
		return ThresholdConfig{}, &ConfigError{Field: "acceptable", Reason: fmt.Sprintf("must be below action (%v >= %v)", acceptable, action)}
	case overdueLabMonths <= 0:
		return ThresholdConfig{}, &ConfigError{Field: "overdueLabMonths", Reason: fmt.Sprintf("must be positive, got %d", overdueLabMonths)}
	case overdueVisitMonths <= 0:
		return ThresholdConfig{}, &ConfigError{Field: "overdueVisitMonths", Reason: fmt.Sprintf("must be positive, got %d", overdueVisitMonths)}
	case urgentDays <= 0:
		return ThresholdConfig{}, &ConfigError{Field: "urgentDays", Reason: fmt.Sprintf("must be positive, got %d", urgentDays)}
	case overdueDefaultDays <= 0:
		return ThresholdConfig{}, &ConfigError{Field: "overdueDefaultDays", Reason: fmt.Sprintf("must be positive, got %d", overdueDefaultDays)}
	}

	return ThresholdConfig{
		good:               good,
		acceptable:         acceptable,
		action:             action,
		overdueLabMonths:   overdueLabMonths,
		overdueVisitMonths: overdueVisitMonths,
		urgentDays:         urgentDays,
		overdueDefaultDays: overdueDefaultDays,
	}, nil
}

// DefaultThresholds returns the guideline baseline: 53/63/64 mmol/mol, labs
// overdue after 3 months, visits after 4, urgent window 30 days and 365 days
// assumed for a patient never seen.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		good:               53,
		acceptable:         63,
		action:             64,
		overdueLabMonths:   3,
		overdueVisitMonths: 4,
		urgentDays:         30,
		overdueDefaultDays: 365,
	}
}

func (c ThresholdConfig) Good() float64           { return c.good }
func (c ThresholdConfig) Acceptable() float64     { return c.acceptable }
func (c ThresholdConfig) Action() float64         { return c.action }
func (c ThresholdConfig) OverdueLabMonths() int   { return c.overdueLabMonths }
func (c ThresholdConfig) OverdueVisitMonths() int { return c.overdueVisitMonths }
func (c ThresholdConfig) UrgentDays() int         { return c.urgentDays }
func (c ThresholdConfig) OverdueDefaultDays() int { return c.overdueDefaultDays }

// IsZero reports whether c is the zero value, i.e. was never validated.
func (c ThresholdConfig) IsZero() bool {
	return c == ThresholdConfig{}
}

// ThresholdView is the JSON shape of a ThresholdConfig.
type ThresholdView struct {
	Good               float64 `json:"good"`
	Acceptable         float64 `json:"acceptable"`
	Action             float64 `json:"action"`
	OverdueLabMonths   int     `json:"overdueLabMonths"`
	OverdueVisitMonths int     `json:"overdueVisitMonths"`
	UrgentDays         int     `json:"urgentDays"`
	OverdueDefaultDays int     `json:"overdueDefaultDays"`
}

// View exposes the configuration for display.
func (c ThresholdConfig) View() ThresholdView {
	return ThresholdView{
		Good:               c.good,
		Acceptable:         c.acceptable,
		Action:             c.action,
		OverdueLabMonths:   c.overdueLabMonths,
		OverdueVisitMonths: c.overdueVisitMonths,
		UrgentDays:         c.urgentDays,
		OverdueDefaultDays: c.overdueDefaultDays,
	}
}
