package temporal

import (
	randv2 "math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskiq/domain/patient"
)

func testRand(seed uint64) *randv2.Rand {
	return randv2.New(randv2.NewPCG(seed, seed))
}

func TestSurvivalCurveShape(t *testing.T) {
	a := NewAnalyzer(nil)
	scores := make([]float64, 100)
	for i := range scores {
		scores[i] = 60
	}

	curve := a.SurvivalCurve(scores, 30, testRand(42))

	require.NotEmpty(t, curve.Curve)
	first := curve.Curve[0]
	assert.Equal(t, 0, first.Day)
	assert.Equal(t, 1.0, first.SurvivalProbability)
	assert.Equal(t, 100, first.AtRisk)

	// One point per day, day 0 through the horizon.
	require.Len(t, curve.Curve, 31)
	for i, pt := range curve.Curve {
		assert.Equal(t, i, pt.Day)
	}

	// Survival probability never increases.
	for i := 1; i < len(curve.Curve); i++ {
		assert.LessOrEqual(t, curve.Curve[i].SurvivalProbability, curve.Curve[i-1].SurvivalProbability)
	}

	assert.Equal(t, 100, curve.TotalPatients)
	assert.GreaterOrEqual(t, curve.EventRate, 0.0)
	assert.LessOrEqual(t, curve.EventRate, 1.0)
}

func TestSurvivalCurveCoversEveryDay(t *testing.T) {
	a := NewAnalyzer(nil)
	scores := make([]float64, 10)
	for i := range scores {
		scores[i] = 80
	}

	curve := a.SurvivalCurve(scores, 30, testRand(3))

	// Gap days between events still get a point carrying the running
	// probability forward.
	require.Len(t, curve.Curve, 31)
	for i, pt := range curve.Curve {
		assert.Equal(t, i, pt.Day)
		if pt.Events == 0 && i > 0 {
			assert.Equal(t, curve.Curve[i-1].SurvivalProbability, pt.SurvivalProbability)
		}
	}
	assert.Greater(t, curve.TotalEvents, 0)
	assert.Less(t, curve.Curve[30].SurvivalProbability, 1.0)
}

func TestSurvivalCurveDeterministicForSeed(t *testing.T) {
	a := NewAnalyzer(nil)
	scores := []float64{80, 40, 90, 20, 65, 70, 55, 30}

	c1 := a.SurvivalCurve(scores, 30, testRand(7))
	c2 := a.SurvivalCurve(scores, 30, testRand(7))
	assert.Equal(t, c1, c2)
}

func TestSurvivalCurveHighRiskCohortHasMoreEvents(t *testing.T) {
	a := NewAnalyzer(nil)
	high := make([]float64, 200)
	low := make([]float64, 200)
	for i := range high {
		high[i] = 95
		low[i] = 5
	}

	highCurve := a.SurvivalCurve(high, 30, testRand(11))
	lowCurve := a.SurvivalCurve(low, 30, testRand(11))
	assert.Greater(t, highCurve.TotalEvents, lowCurve.TotalEvents)

	highEnd := highCurve.Curve[len(highCurve.Curve)-1].SurvivalProbability
	lowEnd := lowCurve.Curve[len(lowCurve.Curve)-1].SurvivalProbability
	assert.Less(t, highEnd, lowEnd)
}

func TestTrajectoryInsufficientData(t *testing.T) {
	a := NewAnalyzer(nil)
	tr := a.Trajectory([]float64{42})
	assert.Equal(t, "insufficient_data", tr.Trend)
	assert.Zero(t, tr.Velocity)
	assert.Len(t, tr.Points, 1)
}

func TestTrajectoryTrends(t *testing.T) {
	a := NewAnalyzer(nil)

	rising := a.Trajectory([]float64{20, 30, 40, 50, 60})
	assert.Equal(t, "rapidly_increasing", rising.Trend)
	assert.InDelta(t, 10.0, rising.Velocity, 0.01)
	assert.Equal(t, 60.0, rising.CurrentScore)
	require.NotNil(t, rising.PreviousScore)
	assert.Equal(t, 50.0, *rising.PreviousScore)
	assert.InDelta(t, 40.0, rising.Change, 0.01)
	assert.InDelta(t, 1.0, rising.RSquared, 0.001)

	flat := a.Trajectory([]float64{50, 50.2, 49.9, 50.1})
	assert.Equal(t, "stable", flat.Trend)

	falling := a.Trajectory([]float64{80, 77, 74, 71})
	assert.Equal(t, "decreasing", falling.Trend)
}

func TestTrajectoryProjectionsClamped(t *testing.T) {
	a := NewAnalyzer(nil)
	tr := a.Trajectory([]float64{60, 75, 90})
	assert.LessOrEqual(t, tr.Projected30d, 100.0)
	assert.GreaterOrEqual(t, tr.Projected7d, 0.0)
	assert.Equal(t, 100.0, tr.Projected30d)
}

func TestVelocitySingleAdmission(t *testing.T) {
	a := NewAnalyzer(nil)
	v := a.Velocity([]time.Time{time.Now()})
	assert.Zero(t, v.Score)
	assert.False(t, v.Accelerating)
	assert.Equal(t, 1.0, v.RiskAmplifier)
	assert.Equal(t, 1, v.TotalAdmissions)
}

func TestVelocityShrinkingGapsAccelerate(t *testing.T) {
	a := NewAnalyzer(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Gaps of 60, 30, 10 days: readmissions speeding up.
	dates := []time.Time{
		base,
		base.AddDate(0, 0, 60),
		base.AddDate(0, 0, 90),
		base.AddDate(0, 0, 100),
	}

	v := a.Velocity(dates)
	assert.True(t, v.Accelerating)
	assert.Equal(t, []int{60, 30, 10}, v.Gaps)
	assert.InDelta(t, 33.3, v.AvgDaysBetween, 0.05)
	assert.Equal(t, 10.0, v.RecentGapDays)
	assert.Equal(t, 4, v.TotalAdmissions)
	assert.Greater(t, v.Score, 0.0)
	assert.Greater(t, v.RiskAmplifier, 1.0)
}

func TestVelocityScoreCapped(t *testing.T) {
	a := NewAnalyzer(nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Daily readmissions max out the score.
	dates := []time.Time{base, base.AddDate(0, 0, 1), base.AddDate(0, 0, 2)}
	v := a.Velocity(dates)
	assert.Equal(t, 100.0, v.Score)
}

func TestSeasonalPatternsPeaks(t *testing.T) {
	a := NewAnalyzer(nil)
	// Three July admissions at 14:00 on a Monday, one in January.
	july := time.Date(2026, 7, 6, 14, 0, 0, 0, time.UTC) // a Monday
	admissions := []time.Time{
		july, july.Add(time.Hour * 24 * 7), july.Add(time.Hour * 24 * 14),
		time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	}

	p := a.SeasonalPatterns(admissions)
	assert.Equal(t, "Jul", p.PeakMonth)
	assert.Equal(t, 14, p.PeakHour)
	assert.Equal(t, "Mon", p.PeakDay)
	assert.Len(t, p.Monthly, 12)
	assert.Len(t, p.Hourly, 24)
	assert.Len(t, p.DayOfWeek, 7)
}

func cohortMember(id string, age, conditions float64, readmitted bool) CohortPatient {
	v := make(patient.FeatureVector, len(patient.FeatureNames))
	v[patient.FeatureIndex("age")] = age
	v[patient.FeatureIndex("num_chronic_conditions")] = conditions
	v[patient.FeatureIndex("length_of_stay")] = 3
	return CohortPatient{PatientID: id, Features: v, RiskScore: 50, WasReadmitted: readmitted}
}

func TestSimilarPatientsRanksByProfile(t *testing.T) {
	a := NewAnalyzer(nil)

	target := make(patient.FeatureVector, len(patient.FeatureNames))
	target[patient.FeatureIndex("age")] = 80
	target[patient.FeatureIndex("num_chronic_conditions")] = 5
	target[patient.FeatureIndex("length_of_stay")] = 3

	population := []CohortPatient{
		cohortMember("close", 78, 5, true),
		cohortMember("far", 25, 0, false),
		cohortMember("closer", 80, 5, false),
	}

	similar := a.SimilarPatients(target, population, 2)
	require.Len(t, similar, 2)
	assert.Equal(t, "closer", similar[0].PatientID)
	assert.GreaterOrEqual(t, similar[0].Similarity, similar[1].Similarity)
	assert.Equal(t, 80.0, similar[0].Age)
}

func TestSimilarPatientsEmptyTarget(t *testing.T) {
	a := NewAnalyzer(nil)
	target := make(patient.FeatureVector, len(patient.FeatureNames))
	assert.Nil(t, a.SimilarPatients(target, []CohortPatient{cohortMember("x", 50, 1, false)}, 5))
	assert.Nil(t, a.SimilarPatients(target, nil, 5))
}
