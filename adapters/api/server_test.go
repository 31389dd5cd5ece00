package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskiq/app/scorer"
	"riskiq/domain/risk"
	"riskiq/internal/config"
	"riskiq/internal/log"
	"riskiq/internal/testkit"
)

type memoryStore struct {
	mu    sync.Mutex
	saved []*risk.Assessment
}

func (m *memoryStore) Save(_ context.Context, a *risk.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, a)
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*risk.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.saved {
		if a.AssessmentID == id {
			return a, nil
		}
	}
	return nil, nil
}

func testServer(t *testing.T) (*Server, *memoryStore) {
	t.Helper()
	cfg := &config.Config{
		Model: config.ModelConfig{
			ModelNames:   []string{"gradient_boosting", "random_forest"},
			BlendWeights: []float64{0.6, 0.4},
			HorizonFactors: map[string]float64{
				"24h": 0.25, "72h": 0.55, "7d": 1.0, "30d": 1.45,
			},
			MinTrainingSamples:   20,
			TrainingSeed:         42,
			AnomalyContamination: 0.05,
			BackgroundSamples:    50,
		},
		Risk: config.RiskConfig{
			ThresholdLow: 30, ThresholdMedium: 55, ThresholdHigh: 75, ThresholdCritical: 90,
		},
		Paths: config.PathConfig{ModelDir: t.TempDir()},
	}
	sc := scorer.New(cfg, log.NewDefault())
	_, err := sc.Initialize(testkit.NewGenerator(42).Cohort(60))
	require.NoError(t, err)

	store := &memoryStore{}
	return NewServer(sc, store, log.NewDefault()), store
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ready"])
}

func TestAssessEndpointPersistsAndReturns(t *testing.T) {
	s, store := testServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/assess/PT-00001", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var a risk.Assessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, "PT-00001", a.PatientID)
	assert.NotEmpty(t, a.AssessmentID)

	require.Len(t, store.saved, 1)
	assert.Equal(t, a.AssessmentID, store.saved[0].AssessmentID)
}

func TestAssessUnknownPatientIs404(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/assess/PT-99999", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestUntrainedScorerIs503(t *testing.T) {
	cfg := &config.Config{
		Model: config.ModelConfig{
			ModelNames:     []string{"gradient_boosting"},
			BlendWeights:   []float64{1},
			HorizonFactors: map[string]float64{"24h": 0.25, "72h": 0.55, "7d": 1.0, "30d": 1.45},
		},
		Risk:  config.RiskConfig{ThresholdMedium: 55, ThresholdHigh: 75, ThresholdCritical: 90},
		Paths: config.PathConfig{ModelDir: t.TempDir()},
	}
	s := NewServer(scorer.New(cfg, log.NewDefault()), nil, log.NewDefault())

	rec := doRequest(t, s, http.MethodPost, "/api/assess/PT-00001", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/dashboard", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPatientsEndpointPagination(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/patients?limit=10&offset=5&sort_by=risk_score", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var page scorer.PatientPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Patients, 10)
	assert.Equal(t, 60, page.Total)
	assert.Equal(t, 5, page.Offset)
}

func TestDashboardEndpoints(t *testing.T) {
	s, _ := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats scorer.DashboardStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 60, stats.TotalPatients)

	rec = doRequest(t, s, http.MethodGet, "/api/dashboard/distribution", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dist struct {
		Distribution []scorer.ScoreBucket `json:"distribution"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dist))
	assert.Len(t, dist.Distribution, 20)
}

func TestDriftEndpoint(t *testing.T) {
	s, _ := testServer(t)

	batch, err := json.Marshal(testkit.NewGenerator(42).Cohort(60))
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodPost, "/api/drift", batch)
	require.Equal(t, http.StatusOK, rec.Code)
	var report risk.DriftReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "STABLE", report.Recommendation)

	rec = doRequest(t, s, http.MethodPost, "/api/drift", []byte("not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSurvivalEndpoint(t *testing.T) {
	s, _ := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/survival?days=30&seed=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var curve risk.SurvivalCurve
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &curve))
	assert.Equal(t, 60, curve.TotalPatients)

	rec = doRequest(t, s, http.MethodGet, "/api/survival?days=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportEndpointServesHTML(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/report/PT-00002", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.True(t, strings.Contains(rec.Body.String(), "PT-00002"))
}

func TestTrainEndpoint(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/train", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status  string               `json:"status"`
		Metrics risk.TrainingMetrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "trained", body.Status)
	assert.Greater(t, body.Metrics.Ensemble.AUC, 0.5)
}
