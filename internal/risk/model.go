package risk

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel is the categorical urgency assigned to a patient. Higher values
// are more urgent.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return fmt.Sprintf("RiskLevel(%d)", int(l))
	}
}

// ParseRiskLevel parses the lower-case form produced by String.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	}
	return RiskLow, fmt.Errorf("unknown risk level %q", s)
}

func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *RiskLevel) UnmarshalText(b []byte) error {
	parsed, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// FlagKind identifies which condition a flag reports.
type FlagKind string

const (
	FlagOverdueHbA1c  FlagKind = "overdue_hba1c"
	FlagHighHbA1c     FlagKind = "high_hba1c"
	FlagOverdueVisit  FlagKind = "overdue_visit"
	FlagMultipleRisks FlagKind = "multiple_risks"
	FlagUrgentReview  FlagKind = "urgent_review"
)

// Flag is a single breached condition for one patient. Flags are rebuilt on
// every evaluation; Resolved is always false when produced by this package.
type Flag struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	Kind      FlagKind  `json:"kind"`
	Severity  RiskLevel `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Resolved  bool      `json:"resolved"`
}

// BloodPressure in mmHg.
type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// LabPanel is one set of lab results taken at the same time. HbA1c is in
// mmol/mol.
type LabPanel struct {
	ID                     string        `json:"id"`
	MeasuredAt             time.Time     `json:"measuredAt"`
	HbA1c                  float64       `json:"hba1c"`
	Glucose                float64       `json:"glucose"`
	Cholesterol            float64       `json:"cholesterol"`
	LDL                    *float64      `json:"ldl,omitempty"`
	BloodPressure          BloodPressure `json:"bloodPressure"`
	BMI                    float64       `json:"bmi"`
	EGFR                   *float64      `json:"egfr,omitempty"`
	AlbuminCreatinineRatio *float64      `json:"albuminCreatinineRatio,omitempty"`
}

// VisitRecord is one clinical contact.
type VisitRecord struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Type     string    `json:"type"`
	Provider string    `json:"provider"`
}

// Patient is the input record for evaluation. LabPanels are ordered most
// recent first; Visits carry no ordering guarantee.
type Patient struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	LabPanels []LabPanel    `json:"labPanels"`
	Visits    []VisitRecord `json:"visits"`
}

// LatestPanel returns the head of the panel sequence.
func (p Patient) LatestPanel() (LabPanel, bool) {
	if len(p.LabPanels) == 0 {
		return LabPanel{}, false
	}
	return p.LabPanels[0], true
}

// Assessment is the per-patient engine output.
type Assessment struct {
	PatientID     string       `json:"patientId"`
	PatientName   string       `json:"patientName,omitempty"`
	RiskLevel     RiskLevel    `json:"riskLevel"`
	Flags         []Flag       `json:"flags"`
	Labs          LabSignals   `json:"labs"`
	Visits        VisitSignals `json:"visits"`
	LatestPanelAt *time.Time   `json:"latestPanelAt,omitempty"`
}

// MarshalJSON keeps an empty flag set as [] rather than null.
func (a Assessment) MarshalJSON() ([]byte, error) {
	type alias Assessment
	out := alias(a)
	if out.Flags == nil {
		out.Flags = []Flag{}
	}
	return json.Marshal(out)
}
