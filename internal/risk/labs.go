package risk

import (
	"math"
	"time"
)

// HbA1cBand is the guideline tier of an HbA1c value.
type HbA1cBand string

const (
	BandGood         HbA1cBand = "good"
	BandAcceptable   HbA1cBand = "acceptable"
	BandActionNeeded HbA1cBand = "action_needed"
	// BandUnbanded covers values above acceptable but not above action
	// (63 < x <= 64 with the default triad). The gap comes from the
	// guideline itself and is kept as is.
	BandUnbanded HbA1cBand = "unbanded"
	BandNoData   HbA1cBand = "no_data"
)

// LabSignals is what the lab evaluator derives from the latest panel.
type LabSignals struct {
	HasData        bool       `json:"hasData"`
	PanelID        string     `json:"panelId,omitempty"`
	MeasuredAt     *time.Time `json:"measuredAt,omitempty"`
	HbA1c          *float64   `json:"hba1c,omitempty"`
	DaysSincePanel *int       `json:"daysSincePanel,omitempty"`
	Band           HbA1cBand  `json:"band"`
	Overdue        bool       `json:"overdue"`
}

// ClassifyHbA1c maps a value onto the configured band triad.
func ClassifyHbA1c(hba1c float64, cfg ThresholdConfig) HbA1cBand {
	switch {
	case hba1c < cfg.good:
		return BandGood
	case hba1c <= cfg.acceptable:
		return BandAcceptable
	case hba1c > cfg.action:
		return BandActionNeeded
	default:
		return BandUnbanded
	}
}

// EvaluateLabs derives lab signals from the head of panels, which must be
// ordered most recent first. An empty sequence is the no-data branch, not an
// error.
func EvaluateLabs(panels []LabPanel, cfg ThresholdConfig, now time.Time) (LabSignals, error) {
	if len(panels) == 0 {
		return LabSignals{Band: BandNoData}, nil
	}
	latest := panels[0]

	if math.IsNaN(latest.HbA1c) || latest.HbA1c <= 0 {
		return LabSignals{}, &InputValidationError{Field: "labPanels[0].hba1c", Reason: "must be a positive number"}
	}
	days, err := elapsedDays(latest.MeasuredAt, now, "labPanels[0].measuredAt")
	if err != nil {
		return LabSignals{}, err
	}

	hba1c := latest.HbA1c
	measuredAt := latest.MeasuredAt
	return LabSignals{
		HasData:        true,
		PanelID:        latest.ID,
		MeasuredAt:     &measuredAt,
		HbA1c:          &hba1c,
		DaysSincePanel: &days,
		Band:           ClassifyHbA1c(hba1c, cfg),
		Overdue:        days > cfg.overdueLabMonths*daysPerMonth,
	}, nil
}

// elapsedDays returns whole days from ts to now, rejecting timestamps that
// are unset or after now.
func elapsedDays(ts, now time.Time, field string) (int, error) {
	if ts.IsZero() {
		return 0, &InputValidationError{Field: field, Reason: "timestamp is missing"}
	}
	if ts.After(now) {
		return 0, &InputValidationError{Field: field, Reason: "timestamp " + ts.Format(time.RFC3339) + " is in the future"}
	}
	return int(now.Sub(ts).Hours() / 24), nil
}
