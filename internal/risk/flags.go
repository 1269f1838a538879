package risk

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Flag cut points, fixed like the classifier's.
const (
	hba1cTarget          = 64.0
	hba1cHighSeverity    = 75.0
	panelOverdueDays     = 90
	panelOverdueHighDays = 180
	visitOverdueDays     = 120
	visitOverdueHighDays = 240
)

// flagNamespace scopes the name-based flag IDs.
var flagNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:glycorisk:flag"))

// FlagID is stable for a (patient, kind) pair so callers can reconcile
// freshly generated flags against anything they stored earlier.
func FlagID(patientID string, kind FlagKind) string {
	return uuid.NewSHA1(flagNamespace, []byte(patientID+"/"+string(kind))).String()
}

// GenerateFlags emits warnings in a fixed order: high_hba1c, overdue_hba1c,
// overdue_visit. hba1c and daysSincePanel are nil when the patient has no
// panel; no lab flags are produced then. The result is empty, never nil, when
// nothing is breached.
func GenerateFlags(hba1c *float64, daysSincePanel *int, daysSinceVisit int, patientID string, now time.Time) []Flag {
	flags := []Flag{}

	if hba1c != nil && *hba1c > hba1cTarget {
		severity := RiskMedium
		if *hba1c > hba1cHighSeverity {
			severity = RiskHigh
		}
		flags = append(flags, newFlag(patientID, FlagHighHbA1c, severity, now,
			fmt.Sprintf("HbA1c %s mmol/mol is above target %s mmol/mol",
				formatMeasure(*hba1c), formatMeasure(hba1cTarget))))
	}

	if daysSincePanel != nil && *daysSincePanel > panelOverdueDays {
		severity := RiskMedium
		if *daysSincePanel > panelOverdueHighDays {
			severity = RiskHigh
		}
		flags = append(flags, newFlag(patientID, FlagOverdueHbA1c, severity, now,
			fmt.Sprintf("HbA1c not measured for %d months", *daysSincePanel/daysPerMonth)))
	}

	if daysSinceVisit > visitOverdueDays {
		severity := RiskMedium
		if daysSinceVisit > visitOverdueHighDays {
			severity = RiskHigh
		}
		flags = append(flags, newFlag(patientID, FlagOverdueVisit, severity, now,
			fmt.Sprintf("No visit for %d months", daysSinceVisit/daysPerMonth)))
	}

	return flags
}

func newFlag(patientID string, kind FlagKind, severity RiskLevel, now time.Time, msg string) Flag {
	return Flag{
		ID:        FlagID(patientID, kind),
		PatientID: patientID,
		Kind:      kind,
		Severity:  severity,
		Message:   msg,
		CreatedAt: now,
	}
}

// formatMeasure prints 80 as "80" and 80.5 as "80.5".
func formatMeasure(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
