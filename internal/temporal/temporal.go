// Package temporal derives time-based risk analytics: cohort survival
// curves, per-patient risk trajectories, readmission velocity and seasonal
// admission patterns.
package temporal

import (
	"math"
	randv2 "math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"riskiq/domain/patient"
	"riskiq/domain/risk"
	"riskiq/internal/log"
)

// Analyzer computes temporal analytics. Stateless apart from the logger;
// every method is safe for concurrent use.
type Analyzer struct {
	logger *log.Logger
}

func NewAnalyzer(logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Default
	}
	return &Analyzer{logger: logger}
}

// CohortPatient is one member of the scored population, as seen by the
// cohort-level analytics.
type CohortPatient struct {
	PatientID       string
	Features        patient.FeatureVector
	RiskScore       float64 // 0-100
	WasReadmitted   bool
	ReadmissionDays *float64
}

// SurvivalCurve builds a Kaplan-Meier curve for the cohort. True
// time-to-event data is not collected, so event times are synthesized from
// each patient's risk score: an exponential draw with rate risk*0.15,
// censored at maxDays or with probability falling as risk rises. The curve
// is therefore an illustration of the cohort's risk mix, not an estimate
// from observed readmission times. Draws come from rng, so a fixed seed
// yields a reproducible curve.
func (a *Analyzer) SurvivalCurve(riskScores []float64, maxDays int, rng *randv2.Rand) risk.SurvivalCurve {
	if maxDays <= 0 {
		maxDays = 30
	}
	n := len(riskScores)

	times := make([]int, n)
	events := make([]int, n)
	totalEvents := 0
	for i, score := range riskScores {
		p := score / 100.0
		lambda := math.Max(p*0.15, 0.01)
		draw := distuv.Exponential{Rate: lambda, Src: rng}.Rand()
		t := math.Min(draw, float64(maxDays))

		if t >= float64(maxDays) || rng.Float64() > p*1.3 {
			times[i] = maxDays
			events[i] = 0
		} else {
			times[i] = int(math.Max(1, float64(int(t))))
			events[i] = 1
			totalEvents++
		}
	}

	// Product-limit estimate, indexed per day: the probability only drops
	// on event days, and gap days carry the running value forward so the
	// curve always spans 0..maxDays.
	curve := make([]risk.SurvivalPoint, 0, maxDays+1)
	curve = append(curve, risk.SurvivalPoint{Day: 0, SurvivalProbability: 1.0, AtRisk: n})
	atRisk := n
	prob := 1.0
	for d := 1; d <= maxDays; d++ {
		var died, censored int
		for i := range times {
			if times[i] != d {
				continue
			}
			if events[i] == 1 {
				died++
			} else {
				censored++
			}
		}
		if died > 0 && atRisk > 0 {
			prob *= 1 - float64(died)/float64(atRisk)
		}
		curve = append(curve, risk.SurvivalPoint{
			Day:                 d,
			SurvivalProbability: round4(math.Max(0, prob)),
			AtRisk:              atRisk,
			Events:              died,
		})
		atRisk -= died + censored
	}

	var median *int
	for _, pt := range curve {
		if pt.SurvivalProbability <= 0.5 {
			day := pt.Day
			median = &day
			break
		}
	}

	eventRate := 0.0
	if n > 0 {
		eventRate = math.Round(float64(totalEvents)/float64(n)*1000) / 1000
	}
	return risk.SurvivalCurve{
		Curve:              curve,
		MedianSurvivalDays: median,
		TotalPatients:      n,
		TotalEvents:        totalEvents,
		EventRate:          eventRate,
	}
}

// Trajectory fits a linear trend to a patient's historical risk scores,
// oldest first.
func (a *Analyzer) Trajectory(scores []float64) risk.Trajectory {
	points := make([]risk.TrajectoryPoint, len(scores))
	for i, s := range scores {
		points[i] = risk.TrajectoryPoint{Index: i, Score: s}
	}
	if len(scores) < 2 {
		t := risk.Trajectory{Trend: "insufficient_data", Points: points}
		if len(scores) == 1 {
			t.CurrentScore = scores[0]
		}
		return t
	}

	xs := make([]float64, len(scores))
	for i := range xs {
		xs[i] = float64(i)
	}
	intercept, slope := stat.LinearRegression(xs, scores, nil, false)
	rsq := stat.RSquared(xs, scores, nil, intercept, slope)
	if math.IsNaN(rsq) {
		rsq = 0
	}

	acceleration := 0.0
	if len(scores) >= 3 {
		diffs := make([]float64, len(scores)-1)
		for i := 1; i < len(scores); i++ {
			diffs[i-1] = scores[i] - scores[i-1]
		}
		var sum float64
		for i := 1; i < len(diffs); i++ {
			sum += diffs[i] - diffs[i-1]
		}
		acceleration = sum / float64(len(diffs)-1)
	}

	trend := "stable"
	switch {
	case math.Abs(slope) < 1:
		trend = "stable"
	case slope > 5:
		trend = "rapidly_increasing"
	case slope > 0:
		trend = "increasing"
	case slope < -5:
		trend = "rapidly_decreasing"
	default:
		trend = "decreasing"
	}

	current := scores[len(scores)-1]
	previous := scores[len(scores)-2]
	return risk.Trajectory{
		Trend:         trend,
		Velocity:      round2(slope),
		Acceleration:  round2(acceleration),
		RSquared:      math.Round(rsq*1000) / 1000,
		CurrentScore:  current,
		PreviousScore: &previous,
		Change:        math.Round((current-scores[0])*10) / 10,
		Points:        points,
		Projected7d:   math.Round(clamp(current+slope*7, 0, 100)*10) / 10,
		Projected30d:  math.Round(clamp(current+slope*30, 0, 100)*10) / 10,
	}
}

// Velocity scores how quickly a patient's admissions recur. Shorter gaps
// between admissions mean higher velocity.
func (a *Analyzer) Velocity(admissionDates []time.Time) risk.Velocity {
	if len(admissionDates) < 2 {
		return risk.Velocity{RiskAmplifier: 1.0, TotalAdmissions: len(admissionDates)}
	}

	dates := make([]time.Time, len(admissionDates))
	copy(dates, admissionDates)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	gaps := make([]int, len(dates)-1)
	var gapSum float64
	for i := 1; i < len(dates); i++ {
		gaps[i-1] = int(dates[i].Sub(dates[i-1]).Hours() / 24)
		gapSum += float64(gaps[i-1])
	}
	avgGap := gapSum / float64(len(gaps))

	velocity := 30.0 / math.Max(avgGap, 1)

	accelerating := false
	if len(gaps) >= 2 {
		var diffSum float64
		for i := 1; i < len(gaps); i++ {
			diffSum += float64(gaps[i] - gaps[i-1])
		}
		accelerating = diffSum/float64(len(gaps)-1) < 0
	}

	return risk.Velocity{
		Score:           math.Round(math.Min(velocity*10, 100)*10) / 10,
		AvgDaysBetween:  math.Round(avgGap*10) / 10,
		RecentGapDays:   float64(gaps[len(gaps)-1]),
		TotalAdmissions: len(dates),
		Accelerating:    accelerating,
		Gaps:            gaps,
		RiskAmplifier:   round2(1 + velocity/10),
	}
}

var monthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
var dowNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// SeasonalPatterns bins admissions by month, hour of day and day of week.
func (a *Analyzer) SeasonalPatterns(admissions []time.Time) risk.SeasonalPatterns {
	var monthly [12]int
	var hourly [24]int
	var dow [7]int

	for _, dt := range admissions {
		monthly[int(dt.Month())-1]++
		hourly[dt.Hour()]++
		// time.Weekday starts on Sunday; the bins start on Monday.
		dow[(int(dt.Weekday())+6)%7]++
	}

	out := risk.SeasonalPatterns{}
	for i, c := range monthly {
		out.Monthly = append(out.Monthly, risk.BucketCount{Label: monthNames[i], Count: c})
	}
	for i, c := range hourly {
		out.Hourly = append(out.Hourly, risk.BucketCount{Label: formatHour(i), Count: c})
	}
	for i, c := range dow {
		out.DayOfWeek = append(out.DayOfWeek, risk.BucketCount{Label: dowNames[i], Count: c})
	}

	out.PeakMonth = monthNames[argmax(monthly[:])]
	out.PeakHour = argmax(hourly[:])
	out.PeakDay = dowNames[argmax(dow[:])]
	return out
}

// similarityFeatures are the profile dimensions used for neighbor search.
var similarityFeatures = []patient.FeatureName{
	"age", "num_chronic_conditions", "admissions_last_6months",
	"length_of_stay", "medication_count", "num_previous_admissions",
}

// SimilarPatients returns the topK cohort members closest to the target by
// cosine similarity over the key profile features.
func (a *Analyzer) SimilarPatients(target patient.FeatureVector, population []CohortPatient, topK int) []risk.SimilarPatient {
	if len(population) == 0 {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}

	targetVec := profileVector(target)
	if floats.Norm(targetVec, 2) == 0 {
		return nil
	}
	normalize(targetVec)

	type scored struct {
		sim float64
		p   CohortPatient
	}
	results := make([]scored, 0, len(population))
	for _, p := range population {
		vec := profileVector(p.Features)
		normalize(vec)
		results = append(results, scored{sim: floats.Dot(targetVec, vec), p: p})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].sim > results[j].sim })

	if len(results) > topK {
		results = results[:topK]
	}
	out := make([]risk.SimilarPatient, len(results))
	for i, r := range results {
		age, _ := r.p.Features.Value("age")
		out[i] = risk.SimilarPatient{
			Similarity:      math.Round(r.sim*1000) / 1000,
			PatientID:       r.p.PatientID,
			Age:             age,
			RiskScore:       r.p.RiskScore,
			WasReadmitted:   r.p.WasReadmitted,
			ReadmissionDays: r.p.ReadmissionDays,
		}
	}
	return out
}

func profileVector(v patient.FeatureVector) []float64 {
	out := make([]float64, len(similarityFeatures))
	for i, name := range similarityFeatures {
		out[i], _ = v.Value(name)
	}
	return out
}

func normalize(v []float64) {
	n := floats.Norm(v, 2) + 1e-8
	for i := range v {
		v[i] /= n
	}
}

func argmax(vals []int) int {
	best := 0
	for i, v := range vals {
		if v > vals[best] {
			best = i
		}
	}
	return best
}

func formatHour(h int) string {
	return time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format("15:00")
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
