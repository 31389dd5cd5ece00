// Package clinicaltext extracts risk signals from free-text clinical notes
// with keyword and pattern scanning: high/medium/protective term counts, a
// bounded risk score modifier, medication and social determinant mentions,
// and a discharge readiness call.
package clinicaltext

import (
	"regexp"
	"sort"
	"strings"

	"riskiq/domain/risk"
)

var highRiskKeywords = []string{
	"non-compliant", "noncompliant", "non-adherent", "nonadherent",
	"against medical advice", "ama", "refused", "declined treatment",
	"frequent flyer", "recurrent admission", "readmission",
	"unstable", "deteriorating", "worsening", "critical",
	"sepsis", "septic", "acute", "exacerbation",
	"fall risk", "high fall risk", "confusion", "altered mental status",
	"substance abuse", "alcohol abuse", "drug use",
	"homeless", "no fixed address", "shelter",
	"lives alone", "no support", "no caregiver",
	"poor prognosis", "end stage", "terminal",
	"multiple comorbidities", "polypharmacy",
}

var mediumRiskKeywords = []string{
	"follow-up needed", "close monitoring", "watch closely",
	"borderline", "marginal", "guarded",
	"limited mobility", "requires assistance",
	"partial compliance", "inconsistent",
	"anxiety", "depression", "mood disorder",
	"obesity", "overweight", "malnourished",
	"financial concerns", "insurance issues",
	"transportation issues", "access barriers",
}

var protectiveKeywords = []string{
	"stable", "improving", "resolved", "recovered",
	"compliant", "adherent", "motivated",
	"strong support", "family present", "caregiver available",
	"independent", "self-care", "ambulatory",
	"well-nourished", "good appetite",
	"follow-up scheduled", "appointment confirmed",
}

// medicationPatterns group drug names by therapeutic class.
var medicationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(metformin|insulin|glipizide|sitagliptin)\b`),
	regexp.MustCompile(`\b(lisinopril|losartan|amlodipine|metoprolol|atenolol)\b`),
	regexp.MustCompile(`\b(furosemide|lasix|spironolactone|hydrochlorothiazide)\b`),
	regexp.MustCompile(`\b(warfarin|coumadin|eliquis|xarelto|apixaban)\b`),
	regexp.MustCompile(`\b(prednisone|dexamethasone|methylprednisolone)\b`),
	regexp.MustCompile(`\b(morphine|oxycodone|hydrocodone|fentanyl)\b`),
	regexp.MustCompile(`\b(albuterol|ipratropium|fluticasone|budesonide)\b`),
	regexp.MustCompile(`\b(sertraline|fluoxetine|citalopram|escitalopram)\b`),
	regexp.MustCompile(`\b(gabapentin|pregabalin|carbamazepine)\b`),
}

var socialPatterns = map[string][]*regexp.Regexp{
	"lives_alone": {
		regexp.MustCompile(`lives?\s+alone`),
		regexp.MustCompile(`no\s+(?:family|support)`),
		regexp.MustCompile(`single\s+(?:person|household)`),
	},
	"homeless": {
		regexp.MustCompile(`homeless`),
		regexp.MustCompile(`no\s+fixed\s+address`),
		regexp.MustCompile(`shelter`),
		regexp.MustCompile(`unhoused`),
	},
	"substance_use": {
		regexp.MustCompile(`substance\s+(?:use|abuse)`),
		regexp.MustCompile(`alcohol\s+(?:use|abuse|dependence)`),
		regexp.MustCompile(`drug\s+use`),
		regexp.MustCompile(`ivdu`),
	},
	"financial_hardship": {
		regexp.MustCompile(`financial\s+(?:concerns?|hardship|difficulty)`),
		regexp.MustCompile(`unable\s+to\s+afford`),
		regexp.MustCompile(`uninsured`),
	},
	"transportation": {
		regexp.MustCompile(`transportation\s+(?:issues?|barriers?|difficulty)`),
		regexp.MustCompile(`no\s+(?:ride|transport)`),
	},
	"language_barrier": {
		regexp.MustCompile(`language\s+barrier`),
		regexp.MustCompile(`interpreter\s+needed`),
		regexp.MustCompile(`limited\s+english`),
	},
	"cognitive_impairment": {
		regexp.MustCompile(`cognitive\s+(?:impairment|decline)`),
		regexp.MustCompile(`dementia`),
		regexp.MustCompile(`confusion`),
		regexp.MustCompile(`altered\s+mental`),
	},
}

var readySignals = []string{
	"ready for discharge", "cleared for discharge",
	"stable for discharge", "discharge appropriate",
	"medically stable", "goals met",
}

var notReadySignals = []string{
	"not ready", "not stable", "requires further",
	"needs monitoring", "continue observation",
	"defer discharge", "delay discharge",
}

// Modifier bounds on the 0-100 risk scale.
const (
	modifierFloor = -15
	modifierCeil  = 25
)

// Engine scans clinical notes. Stateless and safe for concurrent use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// AnalyzeNotes scans one patient's notes. Empty text yields the neutral
// result: zero modifier, "none" concern, "unknown" readiness.
func (e *Engine) AnalyzeNotes(text string) risk.NoteSignals {
	if strings.TrimSpace(text) == "" {
		return risk.NoteSignals{
			SocialFactors:      map[string]bool{},
			DischargeReadiness: "unknown",
			ConcernLevel:       "none",
			Summary:            "No clinical notes available",
		}
	}

	lower := strings.ToLower(text)

	high := findKeywords(lower, highRiskKeywords)
	medium := findKeywords(lower, mediumRiskKeywords)
	protective := findKeywords(lower, protectiveKeywords)
	medications := extractMedications(lower)
	social := extractSocialFactors(lower)

	modifier := float64(len(high)*5 + len(medium)*2 - len(protective)*3)
	if modifier < modifierFloor {
		modifier = modifierFloor
	}
	if modifier > modifierCeil {
		modifier = modifierCeil
	}

	concern := "none"
	switch {
	case len(high) >= 3:
		concern = "critical"
	case len(high) >= 1:
		concern = "high"
	case len(medium) >= 2:
		concern = "moderate"
	case len(medium) >= 1:
		concern = "low"
	}

	confidence := float64(len(high)+len(medium)+len(protective)) / 5
	if confidence > 1 {
		confidence = 1
	}

	return risk.NoteSignals{
		RiskScoreModifier:  modifier,
		RiskKeywords:       high,
		MediumRiskKeywords: medium,
		ProtectiveKeywords: protective,
		Medications:        medications,
		SocialFactors:      social,
		DischargeReadiness: assessReadiness(lower, high, protective),
		ConcernLevel:       concern,
		Summary:            summarize(high, medium, protective, medications, social),
		Confidence:         float64(int(confidence*100+0.5)) / 100,
	}
}

func findKeywords(text string, keywords []string) []string {
	var found []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func extractMedications(text string) []string {
	seen := make(map[string]bool)
	for _, re := range medicationPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			seen[m[1]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for med := range seen {
		out = append(out, med)
	}
	sort.Strings(out)
	return out
}

func extractSocialFactors(text string) map[string]bool {
	out := make(map[string]bool)
	for factor, patterns := range socialPatterns {
		for _, re := range patterns {
			if re.MatchString(text) {
				out[factor] = true
				break
			}
		}
	}
	return out
}

func assessReadiness(text string, high, protective []string) string {
	var ready, notReady int
	for _, s := range readySignals {
		if strings.Contains(text, s) {
			ready++
		}
	}
	for _, s := range notReadySignals {
		if strings.Contains(text, s) {
			notReady++
		}
	}

	switch {
	case notReady > 0 || len(high) >= 3:
		return "not_ready"
	case ready > 0 && len(high) == 0:
		return "ready"
	case len(protective) > len(high):
		return "likely_ready"
	default:
		return "uncertain"
	}
}

func summarize(high, medium, protective, medications []string, social map[string]bool) string {
	var parts []string
	if len(high) > 0 {
		parts = append(parts, "High-risk indicators: "+strings.Join(truncate(high, 3), ", "))
	}
	if len(medium) > 0 {
		parts = append(parts, "Moderate concerns: "+strings.Join(truncate(medium, 3), ", "))
	}
	if len(protective) > 0 {
		parts = append(parts, "Protective factors noted: "+strings.Join(truncate(protective, 3), ", "))
	}
	if len(social) > 0 {
		factors := make([]string, 0, len(social))
		for f := range social {
			factors = append(factors, f)
		}
		sort.Strings(factors)
		parts = append(parts, "Social concerns: "+strings.Join(factors, ", "))
	}
	if len(medications) > 0 {
		parts = append(parts, "Key medications: "+strings.Join(truncate(medications, 5), ", "))
	}
	if len(parts) == 0 {
		return "No significant risk signals detected in clinical notes."
	}
	return strings.Join(parts, " | ")
}

func truncate(vals []string, n int) []string {
	if len(vals) > n {
		return vals[:n]
	}
	return vals
}
