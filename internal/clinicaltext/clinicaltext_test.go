package clinicaltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyNotesAreNeutral(t *testing.T) {
	e := NewEngine()
	for _, text := range []string{"", "   ", "\n\t"} {
		s := e.AnalyzeNotes(text)
		assert.Zero(t, s.RiskScoreModifier)
		assert.Empty(t, s.RiskKeywords)
		assert.Equal(t, "unknown", s.DischargeReadiness)
		assert.Equal(t, "none", s.ConcernLevel)
		assert.Equal(t, "No clinical notes available", s.Summary)
	}
}

func TestHighRiskNoteRaisesModifierAndConcern(t *testing.T) {
	e := NewEngine()
	s := e.AnalyzeNotes("Patient is non-compliant with medications, deteriorating, history of sepsis. Lives alone with no caregiver.")

	assert.Equal(t, "critical", s.ConcernLevel)
	assert.GreaterOrEqual(t, len(s.RiskKeywords), 3)
	assert.Greater(t, s.RiskScoreModifier, 0.0)
	assert.Equal(t, "not_ready", s.DischargeReadiness)
	assert.Contains(t, s.Summary, "High-risk indicators")
	assert.True(t, s.SocialFactors["lives_alone"])
}

func TestProtectiveNoteLowersModifier(t *testing.T) {
	e := NewEngine()
	s := e.AnalyzeNotes("Patient is stable and improving, compliant with regimen, strong support at home, follow-up scheduled.")

	assert.Less(t, s.RiskScoreModifier, 0.0)
	assert.GreaterOrEqual(t, s.RiskScoreModifier, -15.0)
	assert.Empty(t, s.RiskKeywords)
	assert.Equal(t, "likely_ready", s.DischargeReadiness)
	assert.Contains(t, s.Summary, "Protective factors noted")
}

func TestModifierBounds(t *testing.T) {
	e := NewEngine()

	// Every high-risk keyword at once still caps at +25.
	s := e.AnalyzeNotes(strings.Join(highRiskKeywords, ". "))
	assert.Equal(t, 25.0, s.RiskScoreModifier)

	// Every protective keyword floors at -15.
	s = e.AnalyzeNotes(strings.Join(protectiveKeywords, ". "))
	assert.Equal(t, -15.0, s.RiskScoreModifier)
}

func TestConcernLevelBands(t *testing.T) {
	e := NewEngine()

	assert.Equal(t, "high", e.AnalyzeNotes("patient had a readmission this month").ConcernLevel)
	assert.Equal(t, "moderate", e.AnalyzeNotes("anxiety noted, limited mobility").ConcernLevel)
	assert.Equal(t, "low", e.AnalyzeNotes("borderline labs").ConcernLevel)
	assert.Equal(t, "none", e.AnalyzeNotes("routine visit, nothing remarkable").ConcernLevel)
}

func TestMedicationExtractionDeduplicatedAndSorted(t *testing.T) {
	e := NewEngine()
	s := e.AnalyzeNotes("Started metformin and insulin. Continue METFORMIN. Warfarin held, furosemide 40mg daily.")

	assert.Equal(t, []string{"furosemide", "insulin", "metformin", "warfarin"}, s.Medications)
	assert.Contains(t, s.Summary, "Key medications")
}

func TestSocialDeterminantPatterns(t *testing.T) {
	e := NewEngine()
	s := e.AnalyzeNotes("Patient is currently homeless, reports financial hardship and no transport to appointments. Interpreter needed.")

	assert.True(t, s.SocialFactors["homeless"])
	assert.True(t, s.SocialFactors["financial_hardship"])
	assert.True(t, s.SocialFactors["transportation"])
	assert.True(t, s.SocialFactors["language_barrier"])
	assert.False(t, s.SocialFactors["cognitive_impairment"])
}

func TestDischargeReadiness(t *testing.T) {
	e := NewEngine()

	ready := e.AnalyzeNotes("Patient cleared for discharge, goals met.")
	assert.Equal(t, "ready", ready.DischargeReadiness)

	notReady := e.AnalyzeNotes("Patient not ready, needs monitoring overnight.")
	assert.Equal(t, "not_ready", notReady.DischargeReadiness)

	uncertain := e.AnalyzeNotes("Routine examination performed.")
	assert.Equal(t, "uncertain", uncertain.DischargeReadiness)
}

func TestConfidenceScalesWithSignalCount(t *testing.T) {
	e := NewEngine()

	weak := e.AnalyzeNotes("borderline labs")
	assert.InDelta(t, 0.2, weak.Confidence, 1e-9)

	strong := e.AnalyzeNotes("non-compliant, unstable, sepsis, worsening, confusion, anxiety")
	assert.Equal(t, 1.0, strong.Confidence)
}

func TestNoSignalsSummary(t *testing.T) {
	e := NewEngine()
	s := e.AnalyzeNotes("Patient seen for routine examination.")
	require.Equal(t, "No significant risk signals detected in clinical notes.", s.Summary)
	assert.Equal(t, "uncertain", s.DischargeReadiness)
	assert.Zero(t, s.RiskScoreModifier)
}
