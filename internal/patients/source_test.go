package patients

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/glycorisk/internal/risk"
)

const fixture = `[
  {
    "id": "p-1",
    "name": "Ada",
    "labPanels": [
      {"id": "old", "measuredAt": "2023-01-10T09:00:00Z", "hba1c": 71, "glucose": 9.1, "cholesterol": 5.2,
       "bloodPressure": {"systolic": 140, "diastolic": 90}, "bmi": 31.2},
      {"id": "new", "measuredAt": "2024-02-10T09:00:00Z", "hba1c": 58, "glucose": 7.4, "cholesterol": 4.9,
       "ldl": 2.6, "bloodPressure": {"systolic": 132, "diastolic": 84}, "bmi": 30.1, "egfr": 78}
    ],
    "visits": [{"id": "v-1", "at": "2024-03-01T10:00:00Z", "type": "annual review", "provider": "Dr Grey"}]
  },
  {"id": "p-2", "name": "Bo", "labPanels": [], "visits": []}
]`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patients.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFileSource(t *testing.T) {
	src := NewFileSource(writeFixture(t, fixture))
	ctx := context.Background()

	all, err := src.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p-1", all[0].ID)

	p, err := src.GetPatient(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, p.LabPanels, 2)
	assert.Equal(t, "new", p.LabPanels[0].ID, "panels are ordered most recent first")
	require.NotNil(t, p.LabPanels[0].LDL)
	assert.Equal(t, 2.6, *p.LabPanels[0].LDL)
	assert.Nil(t, p.LabPanels[0].AlbuminCreatinineRatio)
	assert.Equal(t, "Dr Grey", p.Visits[0].Provider)

	_, err = src.GetPatient(ctx, "missing")
	assert.True(t, errors.Is(err, ErrPatientNotFound))
}

func TestFileSourceErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.json")).ListPatients(ctx)
	assert.Error(t, err)

	_, err = NewFileSource(writeFixture(t, `{"not": "an array"}`)).ListPatients(ctx)
	assert.Error(t, err)

	_, err = NewFileSource(writeFixture(t, `[{"name": "no id"}]`)).ListPatients(ctx)
	assert.ErrorContains(t, err, "no id")
}

func TestMemorySource(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	src := NewMemorySource([]risk.Patient{
		{ID: "b", LabPanels: []risk.LabPanel{{ID: "1", MeasuredAt: now.AddDate(0, -2, 0)}, {ID: "2", MeasuredAt: now}}},
		{ID: "a"},
	})

	all, err := src.ListPatients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "2", all[0].LabPanels[0].ID)

	SortByID(all)
	assert.Equal(t, "a", all[0].ID)

	_, err = src.GetPatient(context.Background(), "zzz")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
