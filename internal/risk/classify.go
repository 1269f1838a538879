package risk

// Classifier cut points. Fixed, and independent of ThresholdConfig.
const (
	highHbA1cOver        = 70.0
	highVisitDaysOver    = 180
	mediumHbA1cFrom      = 64.0
	mediumHbA1cTo        = 70.0
	mediumVisitDaysFrom  = 90
	mediumVisitDaysUntil = 180
)

// Classify assigns a risk level. Rules are checked top-down and the first
// match wins. A nil hba1c means the patient has no lab panel and is held at
// medium until data arrives. daysSincePanel is accepted for symmetry with
// GenerateFlags and does not affect the result.
func Classify(hba1c *float64, daysSincePanel, daysSinceVisit int) RiskLevel {
	if hba1c == nil {
		return RiskMedium
	}
	v := *hba1c

	if v > highHbA1cOver && daysSinceVisit > highVisitDaysOver {
		return RiskHigh
	}
	if (v >= mediumHbA1cFrom && v <= mediumHbA1cTo) ||
		(daysSinceVisit >= mediumVisitDaysFrom && daysSinceVisit <= mediumVisitDaysUntil) {
		return RiskMedium
	}
	return RiskLow
}
