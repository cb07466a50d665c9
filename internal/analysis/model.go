package analysis

import (
	"encoding/json"
	"time"
)

// Phase identifies one of the supported worker invocations.
type Phase string

// Supported phases, in their implied (not enforced) order.
const (
	PhaseKantonCheck  Phase = "kanton_check"
	PhaseFullAnalysis Phase = "full_analysis"
	PhaseSecondRun    Phase = "second_run"
)

// ValidPhase reports whether p is a known phase.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseKantonCheck, PhaseFullAnalysis, PhaseSecondRun:
		return true
	}
	return false
}

// MissingInfoRequirement is one item the worker flagged as needed from the
// claimant before the analysis can be completed.
type MissingInfoRequirement struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Reason string `json:"reason,omitempty"`
}

// Result is the strict internal schema every worker reply is normalized
// into. Absent fields are empty, never an error. SynthesizedSections names
// the sections filled by the fallback synthesizer rather than the worker.
type Result struct {
	Summary             string                   `json:"summary,omitempty"`
	Facts               []string                 `json:"facts"`
	DisputedFacts       []string                 `json:"disputedFacts"`
	UnclearFacts        []string                 `json:"unclearFacts"`
	EvidencePresent     []string                 `json:"evidencePresent"`
	EvidenceMissing     []string                 `json:"evidenceMissing"`
	LegalIssues         []string                 `json:"legalIssues"`
	LegalBasis          []string                 `json:"legalBasis"`
	RiskNotes           []string                 `json:"riskNotes"`
	NextActions         []string                 `json:"nextActions"`
	MissingInformation  []MissingInfoRequirement `json:"missingInformationRequirements"`
	ClaimAmount         *float64                 `json:"claimAmount,omitempty"`
	Confidence          *float64                 `json:"confidence,omitempty"`
	Suitable            *bool                    `json:"suitable,omitempty"`
	Kanton              string                   `json:"kanton,omitempty"`
	SynthesizedSections []string                 `json:"synthesizedSections"`
}

// Analysis is one persisted phase completion. Records are append-only; the
// latest analysis for a case is determined by recency, never by overwrite.
type Analysis struct {
	ID         string          `json:"id"`
	CaseID     string          `json:"caseId"`
	UserID     string          `json:"userId"`
	Phase      Phase           `json:"phase"`
	Version    int             `json:"version"`
	Raw        json.RawMessage `json:"raw,omitempty"` // verbatim worker payload for audit/debug
	Result     Result          `json:"result"`
	Confidence *float64        `json:"confidence,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Dispatch record states.
const (
	RequestPending   = "pending"
	RequestCompleted = "completed"
	RequestFailed    = "failed"
)

// Request is the two-phase dispatch record: persisted pending before the
// external call, updated to completed or failed afterwards. It is what
// operators reconcile against when dispatch and local persistence disagree.
type Request struct {
	ID        string         `json:"id"`
	CaseID    string         `json:"caseId"`
	UserID    string         `json:"userId"`
	Phase     Phase          `json:"phase"`
	Status    string         `json:"status"`
	ThreadID  string         `json:"threadId,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
