package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/glycorisk/internal/couchbase"
	"stealthcompany.com/glycorisk/internal/patients"
	"stealthcompany.com/glycorisk/internal/risk"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * 24 * time.Hour)
}

func fixturePatients() []risk.Patient {
	return []risk.Patient{
		{
			ID:        "lo",
			Name:      "Low Risk",
			LabPanels: []risk.LabPanel{{ID: "lo-1", MeasuredAt: daysAgo(10), HbA1c: 50}},
			Visits:    []risk.VisitRecord{{ID: "v1", At: daysAgo(10)}},
		},
		{
			ID:        "hi",
			Name:      "High Risk",
			LabPanels: []risk.LabPanel{{ID: "hi-1", MeasuredAt: daysAgo(200), HbA1c: 72}},
			Visits:    []risk.VisitRecord{{ID: "v2", At: daysAgo(200)}},
		},
		{
			ID:        "bad",
			LabPanels: []risk.LabPanel{{ID: "bad-1", MeasuredAt: testNow.Add(48 * time.Hour), HbA1c: 60}},
		},
	}
}

func newTestServer(t *testing.T, source patients.Source, opts ...Option) *httptest.Server {
	t.Helper()
	engine, err := risk.NewEngine(risk.DefaultThresholds(), risk.WithWorkers(2))
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	srv := httptest.NewServer(NewServer(engine, source, opts...).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type lockedSource struct{}

func (lockedSource) ListPatients(ctx context.Context) ([]risk.Patient, error) {
	return nil, couchbase.ErrLocked
}

func (lockedSource) GetPatient(ctx context.Context, id string) (risk.Patient, error) {
	return risk.Patient{}, couchbase.ErrLocked
}

type fakeReadiness struct {
	status *couchbase.IngestionStatus
}

func (f fakeReadiness) GetIngestionStatus(ctx context.Context) (*couchbase.IngestionStatus, error) {
	return f.status, nil
}

func TestRankedPatients(t *testing.T) {
	srv := newTestServer(t, patients.NewMemorySource(fixturePatients()))

	var result risk.BatchResult
	code := getJSON(t, srv.URL+"/patients/ranked", &result)
	require.Equal(t, http.StatusOK, code)

	require.Len(t, result.Ranked, 2)
	assert.Equal(t, "hi", result.Ranked[0].PatientID)
	assert.Equal(t, risk.RiskHigh, result.Ranked[0].RiskLevel)
	assert.Equal(t, "lo", result.Ranked[1].PatientID)
	assert.Equal(t, risk.RiskLow, result.Ranked[1].RiskLevel)
	assert.Empty(t, result.Ranked[1].Flags)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "bad", result.Failures[0].PatientID)
	assert.Contains(t, result.Failures[0].Message, "bad")
}

func TestRankedPatientsPinnedNow(t *testing.T) {
	srv := newTestServer(t, patients.NewMemorySource(fixturePatients()[:1]))

	// Ten days after the panel becomes a year after it
	var result risk.BatchResult
	code := getJSON(t, srv.URL+"/patients/ranked?now="+daysAgo(-355).Format(time.RFC3339), &result)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, result.Ranked, 1)
	assert.Equal(t, 365, *result.Ranked[0].Labs.DaysSincePanel)

	code = getJSON(t, srv.URL+"/patients/ranked?now=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPatientAssessment(t *testing.T) {
	srv := newTestServer(t, patients.NewMemorySource(fixturePatients()))

	var a risk.Assessment
	code := getJSON(t, srv.URL+"/patients/hi/assessment", &a)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, risk.RiskHigh, a.RiskLevel)

	kinds := make([]risk.FlagKind, len(a.Flags))
	for i, f := range a.Flags {
		kinds[i] = f.Kind
	}
	assert.Equal(t, []risk.FlagKind{risk.FlagHighHbA1c, risk.FlagOverdueHbA1c, risk.FlagOverdueVisit}, kinds)

	var body map[string]string
	code = getJSON(t, srv.URL+"/patients/nobody/assessment", &body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "nobody")

	code = getJSON(t, srv.URL+"/patients/bad/assessment", &body)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "bad", body["patientId"])
	assert.Contains(t, body["error"], "invalid input")
}

func TestLockedSourceIsUnavailable(t *testing.T) {
	srv := newTestServer(t, lockedSource{})

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/patients/ranked", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/patients/x/assessment", nil))
}

func TestPostAssessments(t *testing.T) {
	srv := newTestServer(t, patients.NewMemorySource(nil))

	reqBody := `{
	  "now": "2024-06-01T12:00:00Z",
	  "patients": [
	    {"id": "p1", "labPanels": [], "visits": []},
	    {"id": "p2", "labPanels": [
	      {"id": "a", "measuredAt": "2023-01-01T00:00:00Z", "hba1c": 80},
	      {"id": "b", "measuredAt": "2024-05-20T00:00:00Z", "hba1c": 66}
	    ], "visits": [{"id": "v", "at": "2024-05-20T00:00:00Z"}]}
	  ]
	}`
	resp, err := http.Post(srv.URL+"/assessments", "application/json", strings.NewReader(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result risk.BatchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Ranked, 2)
	assert.Empty(t, result.Failures)

	byID := map[string]risk.Assessment{}
	for _, a := range result.Ranked {
		byID[a.PatientID] = a
	}
	// No panel at all is medium; the newest panel of p2 is medium via 66
	assert.Equal(t, risk.RiskMedium, byID["p1"].RiskLevel)
	assert.Equal(t, risk.RiskMedium, byID["p2"].RiskLevel)
	assert.Equal(t, "b", byID["p2"].Labs.PanelID)
	// Within a level, no panel sorts first
	assert.Equal(t, "p1", result.Ranked[0].PatientID)

	bad, err := http.Post(srv.URL+"/assessments", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestHealthReadyThresholds(t *testing.T) {
	srv := newTestServer(t, patients.NewMemorySource(nil))
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/ready", nil))

	var view risk.ThresholdView
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/thresholds", &view))
	assert.Equal(t, risk.DefaultThresholds().View(), view)

	notReady := newTestServer(t, patients.NewMemorySource(nil),
		WithReadiness(fakeReadiness{status: &couchbase.IngestionStatus{Ready: false, Message: "running"}}))
	var status couchbase.IngestionStatus
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, notReady.URL+"/ready", &status))
	assert.Equal(t, "running", status.Message)
}

func TestPostAssessmentsBodyLimit(t *testing.T) {
	srv := newTestServer(t, patients.NewMemorySource(nil), WithMaxBodyBytes(64))

	body := `{"patients": [{"id": "` + strings.Repeat("x", 128) + `"}]}`
	resp, err := http.Post(srv.URL+"/assessments", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["error"], "64 bytes")
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = saved })

	engine, err := risk.NewEngine(risk.DefaultThresholds())
	require.NoError(t, err)
	routes := NewServer(engine, patients.NewMemorySource(nil)).Routes()

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, httptest.NewRequest("GET", "/patients/nobody/assessment", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	assert.Contains(t, buf.String(), `"status":404`)
	assert.Contains(t, buf.String(), `"path":"/patients/nobody/assessment"`)
}
