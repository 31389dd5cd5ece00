// Package explain produces per-patient attribution reports for ensemble
// predictions. Attributions are estimated by background substitution: each
// feature's contribution is the mean prediction change when that feature is
// swapped with values drawn from a background cohort. All backends emit the
// canonical risk.Attribution shape, so downstream consumers never see
// backend-specific formats.
package explain

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"riskiq/domain/patient"
	"riskiq/domain/risk"
	"riskiq/internal/errors"
	"riskiq/internal/log"
)

// predictor is the slice of the ensemble the explainer needs.
type predictor interface {
	PredictProba(rows [][]float64) ([]float64, error)
	Importances() (map[patient.FeatureName]float64, error)
}

// Explainer holds a sampled background cohort and scores perturbed rows
// against it.
type Explainer struct {
	model  predictor
	logger *log.Logger

	mu         sync.RWMutex
	background [][]float64
	baseValue  float64
}

// New builds an uninitialized explainer.
func New(model predictor, logger *log.Logger) *Explainer {
	if logger == nil {
		logger = log.Default
	}
	return &Explainer{model: model, logger: logger}
}

// Initialize samples up to maxSamples background rows and computes the base
// value (mean background prediction). Deterministic for a fixed seed.
func (e *Explainer) Initialize(rows [][]float64, maxSamples int, seed int64) error {
	if len(rows) == 0 {
		return errors.InvalidInput("explainer background requires at least one row")
	}
	if maxSamples <= 0 {
		maxSamples = 100
	}

	rng := rand.New(rand.NewSource(seed))
	sampled := make([][]float64, len(rows))
	copy(sampled, rows)
	rng.Shuffle(len(sampled), func(i, j int) { sampled[i], sampled[j] = sampled[j], sampled[i] })
	if len(sampled) > maxSamples {
		sampled = sampled[:maxSamples]
	}

	probs, err := e.model.PredictProba(sampled)
	if err != nil {
		return errors.Wrap(err, "scoring explainer background")
	}
	var sum float64
	for _, p := range probs {
		sum += p
	}

	e.mu.Lock()
	e.background = sampled
	e.baseValue = sum / float64(len(probs))
	e.mu.Unlock()

	e.logger.Info("explainer initialized with %d background rows, base value %.3f",
		len(sampled), sum/float64(len(probs)))
	return nil
}

// Ready reports whether Initialize has run.
func (e *Explainer) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.background) > 0
}

// ExplainPatient builds the full attribution report for one raw feature
// row. topK bounds the factors surfaced in the narrative section.
func (e *Explainer) ExplainPatient(row []float64, topK int) (*risk.Explanation, error) {
	e.mu.RLock()
	background := e.background
	baseValue := e.baseValue
	e.mu.RUnlock()

	if len(background) == 0 {
		return nil, errors.NotReady("explainer")
	}
	if len(row) != len(patient.FeatureNames) {
		return nil, errors.InvalidInput(fmt.Sprintf("feature row has %d values, expected %d", len(row), len(patient.FeatureNames)))
	}
	if topK <= 0 {
		topK = 10
	}

	attributions, err := e.attribute(row, background)
	if err != nil {
		return nil, err
	}

	factors := make([]risk.Attribution, len(attributions))
	var attrSum float64
	for i, name := range patient.FeatureNames {
		v := attributions[i]
		attrSum += v
		impact := "decreases"
		if v > 0 {
			impact = "increases"
		}
		factors[i] = risk.Attribution{
			Feature:     name,
			DisplayName: patient.DisplayName(name),
			Value:       math.Round(v*10000) / 10000,
			RawValue:    math.Round(row[i]*100) / 100,
			Impact:      impact,
			AbsValue:    math.Abs(v),
		}
	}
	sort.SliceStable(factors, func(a, b int) bool { return factors[a].AbsValue > factors[b].AbsValue })

	top := factors
	if len(top) > topK {
		top = top[:topK]
	}

	return &risk.Explanation{
		TopFactors:      top,
		AllFactors:      factors,
		NaturalLanguage: narrative(top),
		Counterfactuals: counterfactuals(factors),
		BaseValue:       math.Round(baseValue*10000) / 10000,
		AttributionSum:  math.Round(attrSum*10000) / 10000,
	}, nil
}

// attribute estimates each feature's signed contribution: the mean drop in
// prediction when the feature is replaced by background values.
func (e *Explainer) attribute(row []float64, background [][]float64) ([]float64, error) {
	base, err := e.model.PredictProba([][]float64{row})
	if err != nil {
		return nil, err
	}
	p := base[0]

	out := make([]float64, len(row))
	perturbed := make([][]float64, len(background))
	for f := range row {
		for b, bgRow := range background {
			r := make([]float64, len(row))
			copy(r, row)
			r[f] = bgRow[f]
			perturbed[b] = r
		}
		probs, err := e.model.PredictProba(perturbed)
		if err != nil {
			return nil, err
		}
		var sum float64
		for _, q := range probs {
			sum += p - q
		}
		out[f] = sum / float64(len(probs))
	}
	return out, nil
}

// GlobalImportance returns the top blended feature importances with display
// names attached.
func (e *Explainer) GlobalImportance(limit int) ([]risk.Attribution, error) {
	imps, err := e.model.Importances()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	out := make([]risk.Attribution, 0, len(imps))
	for name, v := range imps {
		out = append(out, risk.Attribution{
			Feature:     name,
			DisplayName: patient.DisplayName(name),
			Value:       math.Round(v*10000) / 10000,
			AbsValue:    v,
		})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].AbsValue != out[b].AbsValue {
			return out[a].AbsValue > out[b].AbsValue
		}
		return out[a].Feature < out[b].Feature
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// narrative renders the top factors as a clinician-readable sentence,
// phrasing the well-known drivers specifically and falling back to
// name/value pairs for the rest.
func narrative(top []risk.Attribution) string {
	var increasing, decreasing []risk.Attribution
	for _, f := range top {
		if f.Impact == "increases" {
			increasing = append(increasing, f)
		} else {
			decreasing = append(decreasing, f)
		}
	}

	var parts []string

	if len(increasing) > 0 {
		var drivers []string
		for _, f := range increasing {
			if len(drivers) >= 5 {
				break
			}
			if phrase := riskDriverPhrase(f); phrase != "" {
				drivers = append(drivers, phrase)
			}
		}
		if len(drivers) > 0 {
			parts = append(parts, "Risk increased by: "+strings.Join(drivers, "; "))
		}
	}

	if len(decreasing) > 0 {
		var protective []string
		for _, f := range decreasing {
			if len(protective) >= 3 {
				break
			}
			protective = append(protective, protectivePhrase(f))
		}
		if len(protective) > 0 {
			parts = append(parts, "Protective factors: "+strings.Join(protective, "; "))
		}
	}

	if len(parts) == 0 {
		return "Risk factors are within normal ranges."
	}
	return strings.Join(parts, " | ")
}

func riskDriverPhrase(f risk.Attribution) string {
	val := f.RawValue
	switch {
	case f.Feature == "admissions_last_6months" && val > 0:
		return fmt.Sprintf("%d admission(s) in the last 6 months", int(val))
	case f.Feature == "num_chronic_conditions" && val > 2:
		return fmt.Sprintf("%d chronic conditions", int(val))
	case f.Feature == "length_of_stay":
		kind := "extended"
		if val < 3 {
			kind = "short"
		}
		return fmt.Sprintf("%s hospital stay (%d days)", kind, int(val))
	case f.Feature == "missed_appointments" && val > 0:
		return fmt.Sprintf("%d missed appointment(s)", int(val))
	case f.Feature == "age" && val > 65:
		return fmt.Sprintf("advanced age (%d)", int(val))
	case f.Feature == "medication_count" && val > 8:
		return fmt.Sprintf("polypharmacy (%d medications)", int(val))
	case f.Feature == "lives_alone" && val == 1:
		return "lives alone"
	case strings.HasPrefix(string(f.Feature), "has_") && val == 1:
		return f.DisplayName
	case f.Feature == "oxygen_saturation" && val < 95:
		return fmt.Sprintf("low oxygen saturation (%.0f%%)", val)
	case f.Feature == "vital_instability_score":
		return "unstable vital signs"
	case f.Feature == "comorbidity_interaction_score":
		return "high comorbidity interactions"
	default:
		return fmt.Sprintf("%s: %v", f.DisplayName, val)
	}
}

func protectivePhrase(f risk.Attribution) string {
	val := f.RawValue
	switch {
	case f.Feature == "has_caregiver" && val == 1:
		return "has caregiver support"
	case f.Feature == "transportation_access" && val == 1:
		return "has transportation access"
	case f.Feature == "housing_stable" && val == 1:
		return "stable housing"
	case f.Feature == "oxygen_saturation" && val >= 97:
		return fmt.Sprintf("good oxygen levels (%.0f%%)", val)
	default:
		return f.DisplayName
	}
}

// counterfactuals proposes changes to the modifiable top risk drivers with
// a rough effect estimate scaled from the attribution magnitude. Capped at
// five so the report stays actionable.
func counterfactuals(factors []risk.Attribution) []risk.Counterfactual {
	var out []risk.Counterfactual

	considered := 0
	for _, f := range factors {
		if f.Impact != "increases" {
			continue
		}
		considered++
		if considered > 8 {
			break
		}
		val := f.RawValue

		switch {
		case f.Feature == "missed_appointments" && val > 0:
			out = append(out, risk.Counterfactual{
				Factor:                 f.DisplayName,
				Current:                fmt.Sprintf("%d missed", int(val)),
				Target:                 "0 missed",
				Action:                 "Improve appointment adherence through reminders and transportation assistance",
				EstimatedRiskReduction: math.Round(f.AbsValue*100*10) / 10,
			})
		case f.Feature == "medication_count" && val > 10:
			out = append(out, risk.Counterfactual{
				Factor:                 f.DisplayName,
				Current:                fmt.Sprintf("%d medications", int(val)),
				Target:                 "Optimized regimen",
				Action:                 "Pharmacist medication reconciliation to reduce polypharmacy",
				EstimatedRiskReduction: math.Round(f.AbsValue*70*10) / 10,
			})
		case f.Feature == "lives_alone" && val == 1:
			out = append(out, risk.Counterfactual{
				Factor:                 f.DisplayName,
				Current:                "Yes",
				Target:                 "Support system",
				Action:                 "Arrange home health aide or community support services",
				EstimatedRiskReduction: math.Round(f.AbsValue*80*10) / 10,
			})
		case f.Feature == "length_of_stay" && val < 3:
			out = append(out, risk.Counterfactual{
				Factor:                 f.DisplayName,
				Current:                fmt.Sprintf("%d days", int(val)),
				Target:                 fmt.Sprintf("%d-%d days", int(val)+1, int(val)+2),
				Action:                 "Consider extending stay for additional stabilization",
				EstimatedRiskReduction: math.Round(f.AbsValue*60*10) / 10,
			})
		case f.Feature == "has_caregiver" && val == 0:
			out = append(out, risk.Counterfactual{
				Factor:                 "No Caregiver",
				Current:                "No caregiver",
				Target:                 "Caregiver assigned",
				Action:                 "Connect with family or assign professional caregiver",
				EstimatedRiskReduction: math.Round(f.AbsValue*75*10) / 10,
			})
		case f.Feature == "vital_instability_score" && val > 0.3:
			out = append(out, risk.Counterfactual{
				Factor:                 f.DisplayName,
				Current:                fmt.Sprintf("Score: %.2f", val),
				Target:                 "Stabilized",
				Action:                 "Extended monitoring and vital sign stabilization before discharge",
				EstimatedRiskReduction: math.Round(f.AbsValue*85*10) / 10,
			})
		}
		if len(out) == 5 {
			break
		}
	}
	return out
}
