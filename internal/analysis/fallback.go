package analysis

import "strings"

// Generic entries per required section. Deliberately cautious wording: the
// synthesizer is coverage of last resort and must never claim false
// confidence.
var fallbackEntries = map[string][]string{
	"legalIssues": {
		"The exact legal basis of the claim still needs to be determined.",
		"Whether the respondent is in default has not yet been established.",
	},
	"evidenceMissing": {
		"Written contract or agreement covering the disputed obligation.",
		"Proof of payment or invoice records for the disputed amount.",
	},
	"riskNotes": {
		"The analysis is incomplete; an assessment of litigation risk is not yet possible.",
	},
	"nextActions": {
		"Upload any remaining documents that relate to the dispute.",
		"Review the case facts and confirm they are complete and accurate.",
	},
}

// Keyword cues matched against the case narrative. Hits add case-type
// hints to the synthesized legal issues.
var keywordHints = []struct {
	keywords []string
	hint     string
}{
	{
		keywords: []string{"miete", "rental", "rent", "vermieter", "landlord", "tenant"},
		hint:     "Rental dispute: obligations under the tenancy agreement may be relevant.",
	},
	{
		keywords: []string{"kaution", "deposit"},
		hint:     "Deposit dispute: conditions for withholding or returning the deposit may be relevant.",
	},
	{
		keywords: []string{"lohn", "salary", "wage", "arbeitgeber", "employer"},
		hint:     "Employment dispute: outstanding wage claims may be relevant.",
	},
	{
		keywords: []string{"rechnung", "invoice", "lieferung", "delivery"},
		hint:     "Payment dispute: the invoice and delivery history may be relevant.",
	},
}

// Synthesize fills each empty required section of a full-analysis result
// with clearly generic placeholder content, augmented with keyword-derived
// hints from the case narrative. It runs strictly after normalization and
// records every section it touched in SynthesizedSections.
func Synthesize(res *Result, narrative string) {
	if res == nil {
		return
	}
	synthesized := []string{}

	if len(res.LegalIssues) == 0 {
		res.LegalIssues = append([]string{}, fallbackEntries["legalIssues"]...)
		res.LegalIssues = append(res.LegalIssues, narrativeHints(narrative)...)
		synthesized = append(synthesized, "legalIssues")
	}
	if len(res.EvidenceMissing) == 0 {
		res.EvidenceMissing = append([]string{}, fallbackEntries["evidenceMissing"]...)
		synthesized = append(synthesized, "evidenceMissing")
	}
	if len(res.RiskNotes) == 0 {
		res.RiskNotes = append([]string{}, fallbackEntries["riskNotes"]...)
		synthesized = append(synthesized, "riskNotes")
	}
	if len(res.NextActions) == 0 {
		res.NextActions = append([]string{}, fallbackEntries["nextActions"]...)
		synthesized = append(synthesized, "nextActions")
	}

	if res.SynthesizedSections == nil {
		res.SynthesizedSections = []string{}
	}
	res.SynthesizedSections = append(res.SynthesizedSections, synthesized...)
}

func narrativeHints(narrative string) []string {
	lower := strings.ToLower(narrative)
	hints := []string{}
	for _, cue := range keywordHints {
		for _, kw := range cue.keywords {
			if strings.Contains(lower, kw) {
				hints = append(hints, cue.hint)
				break
			}
		}
	}
	return hints
}
