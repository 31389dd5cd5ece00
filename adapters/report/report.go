// Package report renders one assessment as a clinician-readable document.
// The report is composed as markdown and converted to HTML for the API.
package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"riskiq/domain/risk"
)

// Renderer is stateless and safe for concurrent use.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Markdown composes the assessment report source.
func (r *Renderer) Markdown(a *risk.Assessment) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Readmission Risk Assessment: %s\n\n", a.PatientID)
	fmt.Fprintf(&b, "Assessment `%s`, generated %s\n\n", a.AssessmentID, a.Timestamp.Format("2006-01-02 15:04 UTC"))

	fmt.Fprintf(&b, "## Risk Summary\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Overall score | **%.1f / 100** |\n", a.OverallScore)
	fmt.Fprintf(&b, "| Risk level | **%s** |\n", strings.ToUpper(string(a.Level)))
	fmt.Fprintf(&b, "| Model score | %.1f |\n", a.RawMLScore)
	fmt.Fprintf(&b, "| Note adjustment | %+.1f |\n", a.NoteModifier)
	fmt.Fprintf(&b, "| Model confidence | %.1f%% |\n\n", a.Prediction.Confidence)

	fmt.Fprintf(&b, "## Readmission Windows\n\n")
	fmt.Fprintf(&b, "| Window | Risk |\n|---|---|\n")
	for _, h := range risk.Horizons {
		if v, ok := a.Prediction.Horizons[h]; ok {
			fmt.Fprintf(&b, "| %s | %.1f |\n", h, v)
		}
	}
	b.WriteString("\n")

	if len(a.Explanation.TopFactors) > 0 {
		fmt.Fprintf(&b, "## Key Risk Factors\n\n")
		for _, f := range a.Explanation.TopFactors {
			fmt.Fprintf(&b, "- **%s** (%.2f): %s risk\n", f.DisplayName, f.RawValue, f.Impact)
		}
		b.WriteString("\n")
		if a.Explanation.NaturalLanguage != "" {
			fmt.Fprintf(&b, "%s\n\n", a.Explanation.NaturalLanguage)
		}
	}

	if len(a.Explanation.Counterfactuals) > 0 {
		fmt.Fprintf(&b, "## Suggested Interventions\n\n")
		for _, c := range a.Explanation.Counterfactuals {
			fmt.Fprintf(&b, "- %s (estimated risk reduction %.1f points)\n", c.Action, c.EstimatedRiskReduction)
		}
		b.WriteString("\n")
	}

	if a.Anomaly.AlertLevel != "" && a.Anomaly.AlertLevel != "none" {
		fmt.Fprintf(&b, "## Anomaly Flags (%s)\n\n", a.Anomaly.AlertLevel)
		for _, f := range a.Anomaly.AnomalousFeatures {
			fmt.Fprintf(&b, "- %s: %.2f (expected %s, %s %s)\n",
				f.Feature, f.Value, f.ExpectedRange, f.Severity, f.Direction)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Clinical Notes Review\n\n")
	fmt.Fprintf(&b, "%s\n\n", a.Notes.Summary)
	fmt.Fprintf(&b, "Discharge readiness: %s, concern level: %s.\n\n",
		a.Notes.DischargeReadiness, a.Notes.ConcernLevel)

	if a.Velocity.TotalAdmissions > 1 {
		fmt.Fprintf(&b, "## Readmission Velocity\n\n")
		fmt.Fprintf(&b, "%d admissions on record, average %.1f days apart", a.Velocity.TotalAdmissions, a.Velocity.AvgDaysBetween)
		if a.Velocity.Accelerating {
			b.WriteString(" and accelerating")
		}
		fmt.Fprintf(&b, ". Velocity score %.1f.\n\n", a.Velocity.Score)
	}

	if len(a.Similar) > 0 {
		fmt.Fprintf(&b, "## Similar Patients\n\n")
		fmt.Fprintf(&b, "| Patient | Similarity | Risk | Readmitted |\n|---|---|---|---|\n")
		for _, s := range a.Similar {
			readmitted := "no"
			if s.WasReadmitted {
				readmitted = "yes"
			}
			fmt.Fprintf(&b, "| %s | %.2f | %.1f | %s |\n", s.PatientID, s.Similarity, s.RiskScore, readmitted)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// HTML renders the report as a standalone HTML page.
func (r *Renderer) HTML(a *risk.Assessment) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse([]byte(r.Markdown(a)))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	body := markdown.Render(doc, renderer)

	var out strings.Builder
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>Risk Assessment %s</title>\n", a.PatientID)
	out.WriteString("<style>body{font-family:sans-serif;max-width:60rem;margin:2rem auto;padding:0 1rem}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:0.3rem 0.6rem}</style>\n")
	out.WriteString("</head>\n<body>\n")
	out.Write(body)
	out.WriteString("\n</body>\n</html>\n")
	return []byte(out.String())
}
