package risk

import (
	"cmp"
	"slices"
	"time"
)

// Rank orders assessments by urgency: risk level descending, then latest
// panel timestamp ascending so the most overdue come first. A patient without
// panels sorts as the Unix epoch. The sort is stable and the input is left
// untouched.
func Rank(assessments []Assessment) []Assessment {
	out := slices.Clone(assessments)
	slices.SortStableFunc(out, compareUrgency)
	return out
}

func compareUrgency(a, b Assessment) int {
	if c := cmp.Compare(b.RiskLevel, a.RiskLevel); c != 0 {
		return c
	}
	return panelSortKey(a).Compare(panelSortKey(b))
}

func panelSortKey(a Assessment) time.Time {
	if a.LatestPanelAt == nil {
		return time.Unix(0, 0)
	}
	return *a.LatestPanelAt
}
