package analysis

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The worker emits this when it fails to serialize an object.
const objectObjectSentinel = "[object Object]"

// Candidate key aliases per normalized field, probed in order. The worker's
// reply shape is not contractually stable; the same logical field has been
// observed under several spellings.
var (
	summaryKeys          = []string{"summary", "assessment", "overall_assessment"}
	factKeys             = []string{"facts", "established_facts", "fact_list"}
	disputedFactKeys     = []string{"disputed_facts", "disputedFacts"}
	unclearFactKeys      = []string{"unclear_facts", "unclearFacts", "open_points"}
	evidencePresentKeys  = []string{"evidence_present", "evidencePresent", "available_evidence"}
	evidenceMissingKeys  = []string{"evidence_missing", "evidenceMissing", "missing_evidence"}
	legalIssueKeys       = []string{"legal_issues", "legalIssues"}
	legalBasisKeys       = []string{"legal_basis", "legalBasis", "citations"}
	riskNoteKeys         = []string{"risk_notes", "riskNotes", "risks"}
	nextActionKeys       = []string{"next_actions", "nextActions", "recommended_actions"}
	missingInfoKeys      = []string{"missing_information_requirements", "missingInformationRequirements", "missing_information", "missingInformation"}
	claimAmountKeys      = []string{"claim_amount", "claimAmount", "amount"}
	confidenceKeys       = []string{"confidence", "confidence_score", "confidenceScore"}
	suitableKeys         = []string{"suitable", "case_suitable", "is_suitable"}
	kantonKeys           = []string{"kanton", "canton"}
)

// Normalize turns an arbitrary worker reply into the strict internal
// schema. It never fails on malformed input: the second return value
// reports whether anything usable was found at all.
func Normalize(raw json.RawMessage) (Result, bool) {
	out := emptyResult()
	roots := candidateRoots(raw)
	if len(roots) == 0 {
		return out, false
	}

	usable := false
	if s, ok := probeString(roots, summaryKeys); ok {
		out.Summary = s
		usable = true
	}
	usable = probeStringList(roots, factKeys, &out.Facts) || usable
	usable = probeStringList(roots, disputedFactKeys, &out.DisputedFacts) || usable
	usable = probeStringList(roots, unclearFactKeys, &out.UnclearFacts) || usable
	usable = probeStringList(roots, evidencePresentKeys, &out.EvidencePresent) || usable
	usable = probeStringList(roots, evidenceMissingKeys, &out.EvidenceMissing) || usable
	usable = probeStringList(roots, legalIssueKeys, &out.LegalIssues) || usable
	usable = probeStringList(roots, legalBasisKeys, &out.LegalBasis) || usable
	usable = probeStringList(roots, riskNoteKeys, &out.RiskNotes) || usable
	usable = probeStringList(roots, nextActionKeys, &out.NextActions) || usable

	if reqs, ok := probeMissingInfo(roots); ok {
		out.MissingInformation = reqs
		usable = true
	}
	if amount, ok := probeAmount(roots, claimAmountKeys); ok {
		out.ClaimAmount = &amount
		usable = true
	}
	if confidence, ok := probeAmount(roots, confidenceKeys); ok {
		out.Confidence = &confidence
		usable = true
	}
	if suitable, ok := probeBool(roots, suitableKeys); ok {
		out.Suitable = &suitable
		usable = true
	}
	if kanton, ok := probeString(roots, kantonKeys); ok {
		out.Kanton = kanton
		usable = true
	}

	return out, usable
}

func emptyResult() Result {
	return Result{
		Facts:               []string{},
		DisputedFacts:       []string{},
		UnclearFacts:        []string{},
		EvidencePresent:     []string{},
		EvidenceMissing:     []string{},
		LegalIssues:         []string{},
		LegalBasis:          []string{},
		RiskNotes:           []string{},
		NextActions:         []string{},
		MissingInformation:  []MissingInfoRequirement{},
		SynthesizedSections: []string{},
	}
}

// candidateRoots returns the locations to probe, in priority order: the
// root result object first, then the top level itself, then the legacy
// thread/posts debug trail.
func candidateRoots(raw json.RawMessage) []map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		// Some callbacks double-encode the whole payload as a JSON string.
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil
		}
		if err := json.Unmarshal([]byte(encoded), &top); err != nil {
			return nil
		}
	}

	roots := []map[string]any{}
	if result, ok := cleanValue(top["result"]); ok {
		if m, ok := result.(map[string]any); ok {
			roots = append(roots, m)
		}
	}
	roots = append(roots, top)
	roots = append(roots, threadPostRoots(top)...)
	return roots
}

// threadPostRoots digs the legacy thread/posts debug trail out of older
// worker replies.
func threadPostRoots(top map[string]any) []map[string]any {
	thread, ok := top["thread"].(map[string]any)
	if !ok {
		return nil
	}
	posts, ok := thread["posts"].([]any)
	if !ok {
		return nil
	}
	roots := []map[string]any{}
	for i := len(posts) - 1; i >= 0; i-- { // newest post first
		post, ok := posts[i].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"result", "content", "data"} {
			if v, ok := cleanValue(post[key]); ok {
				if m, ok := v.(map[string]any); ok {
					roots = append(roots, m)
				}
			}
		}
	}
	return roots
}

// cleanValue applies the per-candidate rules: unresolved template
// placeholders and the serialization-failure sentinel are absent, strings
// holding JSON objects or arrays are parsed, everything else passes
// through.
func cleanValue(v any) (any, bool) {
	switch value := v.(type) {
	case nil:
		return nil, false
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" || trimmed == objectObjectSentinel {
			return nil, false
		}
		if strings.Contains(trimmed, "{{") && strings.Contains(trimmed, "}}") {
			return nil, false
		}
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return parsed, true
			}
		}
		return trimmed, true
	default:
		return v, true
	}
}

// probe returns the first usable value for any of the keys, searching all
// roots in priority order.
func probe(roots []map[string]any, keys []string) (any, bool) {
	for _, root := range roots {
		for _, key := range keys {
			raw, present := root[key]
			if !present {
				continue
			}
			if v, ok := cleanValue(raw); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func probeString(roots []map[string]any, keys []string) (string, bool) {
	v, ok := probe(roots, keys)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func probeStringList(roots []map[string]any, keys []string, dst *[]string) bool {
	v, ok := probe(roots, keys)
	if !ok {
		return false
	}
	list := stringList(v)
	if list == nil {
		return false
	}
	*dst = list
	return true
}

func probeBool(roots []map[string]any, keys []string) (bool, bool) {
	v, ok := probe(roots, keys)
	if !ok {
		return false, false
	}
	switch value := v.(type) {
	case bool:
		return value, true
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "yes", "ja":
			return true, true
		case "false", "no", "nein":
			return false, true
		}
	}
	return false, false
}

func probeAmount(roots []map[string]any, keys []string) (float64, bool) {
	v, ok := probe(roots, keys)
	if !ok {
		return 0, false
	}
	return ParseAmount(v)
}

// ParseAmount coerces numeric-looking values to a number. String input
// follows the decimal-comma convention; when both separators are present
// the last one wins as the decimal separator.
func ParseAmount(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case json.Number:
		parsed, err := value.Float64()
		return parsed, err == nil
	case string:
		s := strings.TrimSpace(value)
		s = strings.TrimPrefix(s, "CHF")
		s = strings.TrimPrefix(s, "EUR")
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, "'", "")
		if s == "" {
			return 0, false
		}
		hasComma := strings.Contains(s, ",")
		hasDot := strings.Contains(s, ".")
		switch {
		case hasComma && hasDot:
			if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
				s = strings.ReplaceAll(s, ".", "")
				s = strings.Replace(s, ",", ".", 1)
			} else {
				s = strings.ReplaceAll(s, ",", "")
			}
		case hasComma:
			s = strings.Replace(s, ",", ".", 1)
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// stringList coerces a cleaned value into a list of non-empty strings.
// Entries that are objects contribute their first label-like field.
func stringList(v any) []string {
	switch value := v.(type) {
	case string:
		return []string{value}
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			cleaned, ok := cleanValue(item)
			if !ok {
				continue
			}
			switch entry := cleaned.(type) {
			case string:
				out = append(out, entry)
			case map[string]any:
				if label := labelFromMap(entry); label != "" {
					out = append(out, label)
				}
			}
		}
		return out
	default:
		return nil
	}
}

func labelFromMap(m map[string]any) string {
	for _, key := range []string{"label", "title", "text", "description", "issue", "name"} {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func probeMissingInfo(roots []map[string]any) ([]MissingInfoRequirement, bool) {
	v, ok := probe(roots, missingInfoKeys)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	if !ok {
		if s, ok := v.(string); ok {
			return []MissingInfoRequirement{{ID: slugify(s), Label: s}}, true
		}
		return nil, false
	}
	out := make([]MissingInfoRequirement, 0, len(list))
	for _, item := range list {
		cleaned, ok := cleanValue(item)
		if !ok {
			continue
		}
		switch entry := cleaned.(type) {
		case string:
			out = append(out, MissingInfoRequirement{ID: slugify(entry), Label: entry})
		case map[string]any:
			req := MissingInfoRequirement{}
			if id, ok := entry["id"].(string); ok {
				req.ID = strings.TrimSpace(id)
			}
			req.Label = labelFromMap(entry)
			for _, key := range []string{"reason", "why", "why_needed", "whyNeeded"} {
				if s, ok := entry[key].(string); ok && strings.TrimSpace(s) != "" {
					req.Reason = strings.TrimSpace(s)
					break
				}
			}
			if req.Label == "" {
				continue
			}
			if req.ID == "" {
				req.ID = slugify(req.Label)
			}
			out = append(out, req)
		}
	}
	return out, true
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	if slug == "" {
		slug = "item"
	}
	return slug
}
