package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * 24 * time.Hour)
}

func TestClassifyHbA1cBands(t *testing.T) {
	cfg := DefaultThresholds()
	tests := []struct {
		value float64
		want  HbA1cBand
	}{
		{40, BandGood},
		{52.9, BandGood},
		{53, BandAcceptable},
		{60, BandAcceptable},
		{63, BandAcceptable},
		{63.5, BandUnbanded},
		{64, BandUnbanded},
		{64.1, BandActionNeeded},
		{90, BandActionNeeded},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyHbA1c(tt.value, cfg), "hba1c=%v", tt.value)
	}
}

func TestEvaluateLabs(t *testing.T) {
	cfg := DefaultThresholds()

	t.Run("no panels is the no-data branch", func(t *testing.T) {
		got, err := EvaluateLabs(nil, cfg, testNow)
		require.NoError(t, err)
		assert.False(t, got.HasData)
		assert.Nil(t, got.HbA1c)
		assert.Nil(t, got.DaysSincePanel)
		assert.Equal(t, BandNoData, got.Band)
	})

	t.Run("uses only the head of the sequence", func(t *testing.T) {
		panels := []LabPanel{
			{ID: "new", MeasuredAt: daysAgo(100), HbA1c: 66},
			{ID: "old", MeasuredAt: daysAgo(400), HbA1c: 90},
		}
		got, err := EvaluateLabs(panels, cfg, testNow)
		require.NoError(t, err)
		assert.True(t, got.HasData)
		assert.Equal(t, "new", got.PanelID)
		assert.Equal(t, 66.0, *got.HbA1c)
		assert.Equal(t, 100, *got.DaysSincePanel)
		assert.Equal(t, BandActionNeeded, got.Band)
		assert.True(t, got.Overdue)
	})

	t.Run("partial days round down", func(t *testing.T) {
		panels := []LabPanel{{ID: "p", MeasuredAt: testNow.Add(-47 * time.Hour), HbA1c: 50}}
		got, err := EvaluateLabs(panels, cfg, testNow)
		require.NoError(t, err)
		assert.Equal(t, 1, *got.DaysSincePanel)
		assert.False(t, got.Overdue)
	})

	t.Run("future panel is rejected", func(t *testing.T) {
		panels := []LabPanel{{ID: "p", MeasuredAt: testNow.Add(time.Hour), HbA1c: 50}}
		_, err := EvaluateLabs(panels, cfg, testNow)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("missing timestamp is rejected", func(t *testing.T) {
		_, err := EvaluateLabs([]LabPanel{{ID: "p", HbA1c: 50}}, cfg, testNow)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("non-positive hba1c is rejected", func(t *testing.T) {
		_, err := EvaluateLabs([]LabPanel{{ID: "p", MeasuredAt: daysAgo(1), HbA1c: 0}}, cfg, testNow)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestEvaluateVisits(t *testing.T) {
	cfg := DefaultThresholds()

	t.Run("never seen uses configured default", func(t *testing.T) {
		got, err := EvaluateVisits(nil, LabSignals{}, cfg, testNow)
		require.NoError(t, err)
		assert.True(t, got.NeverSeen)
		assert.Equal(t, 365, got.DaysSinceVisit)
		assert.True(t, got.Overdue)
		assert.Nil(t, got.LastVisitAt)
	})

	t.Run("configured default is honoured", func(t *testing.T) {
		custom, err := NewThresholdConfig(53, 63, 64, 3, 4, 30, 900)
		require.NoError(t, err)
		got, err := EvaluateVisits(nil, LabSignals{}, custom, testNow)
		require.NoError(t, err)
		assert.Equal(t, 900, got.DaysSinceVisit)
	})

	t.Run("picks the maximum timestamp regardless of order", func(t *testing.T) {
		visits := []VisitRecord{
			{ID: "a", At: daysAgo(300)},
			{ID: "b", At: daysAgo(12)},
			{ID: "c", At: daysAgo(50)},
		}
		got, err := EvaluateVisits(visits, LabSignals{}, cfg, testNow)
		require.NoError(t, err)
		assert.Equal(t, "b", got.LastVisitID)
		assert.Equal(t, 12, got.DaysSinceVisit)
		assert.False(t, got.Overdue)
		assert.False(t, got.NeverSeen)
	})

	t.Run("urgent review when action needed and not seen recently", func(t *testing.T) {
		labs := LabSignals{HasData: true, Band: BandActionNeeded}
		got, err := EvaluateVisits([]VisitRecord{{ID: "v", At: daysAgo(45)}}, labs, cfg, testNow)
		require.NoError(t, err)
		assert.True(t, got.UrgentReview)

		got, err = EvaluateVisits([]VisitRecord{{ID: "v", At: daysAgo(10)}}, labs, cfg, testNow)
		require.NoError(t, err)
		assert.False(t, got.UrgentReview)
	})

	t.Run("any future visit is rejected", func(t *testing.T) {
		visits := []VisitRecord{
			{ID: "ok", At: daysAgo(3)},
			{ID: "bad", At: testNow.Add(48 * time.Hour)},
		}
		_, err := EvaluateVisits(visits, LabSignals{}, cfg, testNow)
		var ive *InputValidationError
		require.True(t, errors.As(err, &ive))
		assert.Equal(t, "visits[1].at", ive.Field)
	})
}

func ptr[T any](v T) *T { return &v }

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		hba1c          *float64
		daysSincePanel int
		daysSinceVisit int
		want           RiskLevel
	}{
		{name: "high hba1c and long absence", hba1c: ptr(75.0), daysSinceVisit: 200, want: RiskHigh},
		{name: "hba1c in medium window", hba1c: ptr(68.0), daysSinceVisit: 30, want: RiskMedium},
		{name: "well controlled", hba1c: ptr(50.0), daysSinceVisit: 10, want: RiskLow},
		{name: "no panel", hba1c: nil, daysSinceVisit: 10, want: RiskMedium},
		{name: "no panel and long absence", hba1c: nil, daysSinceVisit: 400, want: RiskMedium},
		{name: "hba1c 70 is medium not high", hba1c: ptr(70.0), daysSinceVisit: 200, want: RiskMedium},
		{name: "visit 180 is not high", hba1c: ptr(80.0), daysSinceVisit: 180, want: RiskMedium},
		{name: "medium lower hba1c bound", hba1c: ptr(64.0), daysSinceVisit: 0, want: RiskMedium},
		{name: "just below medium hba1c", hba1c: ptr(63.9), daysSinceVisit: 0, want: RiskLow},
		{name: "visit window lower bound", hba1c: ptr(50.0), daysSinceVisit: 90, want: RiskMedium},
		{name: "visit window upper bound", hba1c: ptr(50.0), daysSinceVisit: 180, want: RiskMedium},
		{name: "just before visit window", hba1c: ptr(50.0), daysSinceVisit: 89, want: RiskLow},
		{name: "beyond visit window with good hba1c", hba1c: ptr(50.0), daysSinceVisit: 181, want: RiskLow},
		{name: "very high hba1c recently seen", hba1c: ptr(95.0), daysSinceVisit: 20, want: RiskLow},
		{name: "panel age has no effect", hba1c: ptr(50.0), daysSincePanel: 900, daysSinceVisit: 10, want: RiskLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.hba1c, tt.daysSincePanel, tt.daysSinceVisit))
		})
	}
}

func TestGenerateFlags(t *testing.T) {
	t.Run("all three breached at high severity", func(t *testing.T) {
		flags := GenerateFlags(ptr(80.0), ptr(200), 250, "p-1", testNow)
		require.Len(t, flags, 3)

		assert.Equal(t, FlagHighHbA1c, flags[0].Kind)
		assert.Equal(t, RiskHigh, flags[0].Severity)
		assert.Contains(t, flags[0].Message, "80")
		assert.Contains(t, flags[0].Message, "64")

		assert.Equal(t, FlagOverdueHbA1c, flags[1].Kind)
		assert.Equal(t, RiskHigh, flags[1].Severity)
		assert.Contains(t, flags[1].Message, "6 months")

		assert.Equal(t, FlagOverdueVisit, flags[2].Kind)
		assert.Equal(t, RiskHigh, flags[2].Severity)
		assert.Contains(t, flags[2].Message, "8 months")

		for _, f := range flags {
			assert.Equal(t, "p-1", f.PatientID)
			assert.Equal(t, testNow, f.CreatedAt)
			assert.False(t, f.Resolved)
		}
	})

	t.Run("nothing breached", func(t *testing.T) {
		flags := GenerateFlags(ptr(40.0), ptr(10), 5, "p-1", testNow)
		assert.NotNil(t, flags)
		assert.Empty(t, flags)
	})

	t.Run("medium severities", func(t *testing.T) {
		flags := GenerateFlags(ptr(70.0), ptr(120), 150, "p-2", testNow)
		require.Len(t, flags, 3)
		for _, f := range flags {
			assert.Equal(t, RiskMedium, f.Severity, string(f.Kind))
		}
	})

	t.Run("boundaries are exclusive", func(t *testing.T) {
		flags := GenerateFlags(ptr(64.0), ptr(90), 120, "p-3", testNow)
		assert.Empty(t, flags)

		flags = GenerateFlags(ptr(75.0), ptr(180), 240, "p-3", testNow)
		require.Len(t, flags, 3)
		for _, f := range flags {
			assert.Equal(t, RiskMedium, f.Severity, string(f.Kind))
		}
	})

	t.Run("no panel yields only the visit flag", func(t *testing.T) {
		flags := GenerateFlags(nil, nil, 365, "p-4", testNow)
		require.Len(t, flags, 1)
		assert.Equal(t, FlagOverdueVisit, flags[0].Kind)
		assert.Equal(t, RiskHigh, flags[0].Severity)
		assert.Equal(t, "No visit for 12 months", flags[0].Message)
	})

	t.Run("idempotent", func(t *testing.T) {
		first := GenerateFlags(ptr(80.0), ptr(200), 250, "p-5", testNow)
		second := GenerateFlags(ptr(80.0), ptr(200), 250, "p-5", testNow)
		assert.Equal(t, first, second)
	})

	t.Run("ids depend on patient and kind only", func(t *testing.T) {
		a := GenerateFlags(ptr(80.0), nil, 0, "p-6", testNow)
		b := GenerateFlags(ptr(66.0), nil, 0, "p-6", testNow.Add(time.Hour))
		require.Len(t, a, 1)
		require.Len(t, b, 1)
		assert.Equal(t, a[0].ID, b[0].ID)
		assert.Equal(t, FlagID("p-6", FlagHighHbA1c), a[0].ID)
		assert.NotEqual(t, FlagID("p-6", FlagHighHbA1c), FlagID("p-7", FlagHighHbA1c))
		assert.NotEqual(t, FlagID("p-6", FlagHighHbA1c), FlagID("p-6", FlagOverdueVisit))
	})

	t.Run("fractional hba1c in message", func(t *testing.T) {
		flags := GenerateFlags(ptr(66.5), nil, 0, "p-8", testNow)
		require.Len(t, flags, 1)
		assert.Equal(t, "HbA1c 66.5 mmol/mol is above target 64 mmol/mol", flags[0].Message)
	})
}
