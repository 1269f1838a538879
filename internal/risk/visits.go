package risk

import (
	"fmt"
	"time"
)

// VisitSignals is what the recency evaluator derives from visit history.
type VisitSignals struct {
	LastVisitID    string     `json:"lastVisitId,omitempty"`
	LastVisitAt    *time.Time `json:"lastVisitAt,omitempty"`
	DaysSinceVisit int        `json:"daysSinceVisit"`
	NeverSeen      bool       `json:"neverSeen"`
	Overdue        bool       `json:"overdue"`
	// UrgentReview is set when the latest HbA1c needs action and nobody has
	// seen the patient within the urgent window.
	UrgentReview bool `json:"urgentReview"`
}

// MostRecentVisit returns the visit with the latest timestamp. Visits need
// not be sorted.
func MostRecentVisit(visits []VisitRecord) (VisitRecord, bool) {
	if len(visits) == 0 {
		return VisitRecord{}, false
	}
	latest := visits[0]
	for _, v := range visits[1:] {
		if v.At.After(latest.At) {
			latest = v
		}
	}
	return latest, true
}

// EvaluateVisits derives recency signals. A patient never seen gets
// cfg.OverdueDefaultDays. Every visit is checked for future dates, not only
// the latest.
func EvaluateVisits(visits []VisitRecord, labs LabSignals, cfg ThresholdConfig, now time.Time) (VisitSignals, error) {
	for i, v := range visits {
		if _, err := elapsedDays(v.At, now, fmt.Sprintf("visits[%d].at", i)); err != nil {
			return VisitSignals{}, err
		}
	}

	var out VisitSignals
	if latest, ok := MostRecentVisit(visits); ok {
		at := latest.At
		out.LastVisitID = latest.ID
		out.LastVisitAt = &at
		out.DaysSinceVisit = int(now.Sub(at).Hours() / 24)
	} else {
		out.NeverSeen = true
		out.DaysSinceVisit = cfg.overdueDefaultDays
	}

	out.Overdue = out.DaysSinceVisit > cfg.overdueVisitMonths*daysPerMonth
	out.UrgentReview = labs.Band == BandActionNeeded && out.DaysSinceVisit > cfg.urgentDays
	return out, nil
}
