package explain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskiq/domain/patient"
	"riskiq/internal/errors"
)

// linearModel scores rows as a sigmoid over a handful of known features, so
// attribution direction is predictable.
type linearModel struct {
	weights map[patient.FeatureName]float64
}

func (m *linearModel) PredictProba(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		var z float64
		for name, w := range m.weights {
			z += w * row[patient.FeatureIndex(name)]
		}
		out[i] = 1 / (1 + math.Exp(-(z - 2)))
	}
	return out, nil
}

func (m *linearModel) Importances() (map[patient.FeatureName]float64, error) {
	imps := make(map[patient.FeatureName]float64)
	var total float64
	for name, w := range m.weights {
		imps[name] = math.Abs(w)
		total += math.Abs(w)
	}
	for name := range imps {
		imps[name] /= total
	}
	return imps, nil
}

func testModel() *linearModel {
	return &linearModel{weights: map[patient.FeatureName]float64{
		"admissions_last_6months": 0.8,
		"missed_appointments":     0.5,
		"has_caregiver":           -0.9,
		"age":                     0.02,
	}}
}

// baselineRow is an average patient: no recent admissions, caregiver present.
func baselineRow() []float64 {
	row := make([]float64, len(patient.FeatureNames))
	row[patient.FeatureIndex("age")] = 50
	row[patient.FeatureIndex("has_caregiver")] = 1
	return row
}

func backgroundRows(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = baselineRow()
	}
	return rows
}

func TestExplainerRequiresInitialization(t *testing.T) {
	e := New(testModel(), nil)
	assert.False(t, e.Ready())

	_, err := e.ExplainPatient(baselineRow(), 10)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotReady))
}

func TestInitializeCapsBackgroundSize(t *testing.T) {
	e := New(testModel(), nil)
	require.NoError(t, e.Initialize(backgroundRows(250), 100, 42))
	assert.True(t, e.Ready())

	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Len(t, e.background, 100)
	assert.Greater(t, e.baseValue, 0.0)
	assert.Less(t, e.baseValue, 1.0)
}

func TestExplainPatientAttributionDirections(t *testing.T) {
	e := New(testModel(), nil)
	require.NoError(t, e.Initialize(backgroundRows(50), 100, 42))

	// High-risk profile: frequent flyer, no caregiver, misses appointments.
	row := baselineRow()
	row[patient.FeatureIndex("admissions_last_6months")] = 4
	row[patient.FeatureIndex("missed_appointments")] = 3
	row[patient.FeatureIndex("has_caregiver")] = 0

	exp, err := e.ExplainPatient(row, 10)
	require.NoError(t, err)

	byFeature := make(map[patient.FeatureName]float64)
	for _, f := range exp.AllFactors {
		byFeature[f.Feature] = f.Value
	}
	assert.Greater(t, byFeature["admissions_last_6months"], 0.0)
	assert.Greater(t, byFeature["missed_appointments"], 0.0)
	// Losing the caregiver raised risk relative to the background.
	assert.Greater(t, byFeature["has_caregiver"], 0.0)
	// Untouched noise features contribute nothing.
	assert.Zero(t, byFeature["glucose"])

	assert.Len(t, exp.TopFactors, 10)
	assert.Contains(t, exp.NaturalLanguage, "admission(s) in the last 6 months")
	assert.Contains(t, exp.NaturalLanguage, "missed appointment(s)")
}

func TestExplainPatientTopFactorsSortedByImpact(t *testing.T) {
	e := New(testModel(), nil)
	require.NoError(t, e.Initialize(backgroundRows(30), 100, 42))

	row := baselineRow()
	row[patient.FeatureIndex("admissions_last_6months")] = 5

	exp, err := e.ExplainPatient(row, 5)
	require.NoError(t, err)
	require.Len(t, exp.TopFactors, 5)
	for i := 1; i < len(exp.TopFactors); i++ {
		assert.GreaterOrEqual(t, exp.TopFactors[i-1].AbsValue, exp.TopFactors[i].AbsValue)
	}
	assert.Equal(t, patient.FeatureName("admissions_last_6months"), exp.TopFactors[0].Feature)
}

func TestExplainPatientRejectsMalformedRow(t *testing.T) {
	e := New(testModel(), nil)
	require.NoError(t, e.Initialize(backgroundRows(10), 100, 42))

	_, err := e.ExplainPatient([]float64{1, 2, 3}, 10)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestCounterfactualsCappedAndActionable(t *testing.T) {
	e := New(testModel(), nil)
	require.NoError(t, e.Initialize(backgroundRows(30), 100, 42))

	// Pile on every modifiable risk factor at once.
	row := baselineRow()
	row[patient.FeatureIndex("admissions_last_6months")] = 4
	row[patient.FeatureIndex("missed_appointments")] = 5
	row[patient.FeatureIndex("medication_count")] = 14
	row[patient.FeatureIndex("lives_alone")] = 1
	row[patient.FeatureIndex("length_of_stay")] = 1
	row[patient.FeatureIndex("has_caregiver")] = 0
	row[patient.FeatureIndex("vital_instability_score")] = 0.6

	exp, err := e.ExplainPatient(row, 10)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(exp.Counterfactuals), 5)
	require.NotEmpty(t, exp.Counterfactuals)
	for _, cf := range exp.Counterfactuals {
		assert.NotEmpty(t, cf.Factor)
		assert.NotEmpty(t, cf.Action)
		assert.GreaterOrEqual(t, cf.EstimatedRiskReduction, 0.0)
	}
}

func TestGlobalImportanceSortedAndLimited(t *testing.T) {
	e := New(testModel(), nil)

	imps, err := e.GlobalImportance(3)
	require.NoError(t, err)
	require.Len(t, imps, 3)
	assert.Equal(t, patient.FeatureName("has_caregiver"), imps[0].Feature)
	for i := 1; i < len(imps); i++ {
		assert.GreaterOrEqual(t, imps[i-1].AbsValue, imps[i].AbsValue)
	}
	assert.NotEmpty(t, imps[0].DisplayName)
}

func TestNarrativeFallbackWhenNothingStandsOut(t *testing.T) {
	assert.Equal(t, "Risk factors are within normal ranges.", narrative(nil))
}
