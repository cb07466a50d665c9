package cases

// Status is one step of the fixed dispute workflow.
type Status string

// Workflow statuses in required order.
const (
	StatusNewIntake          Status = "NEW_INTAKE"
	StatusDocsUploaded       Status = "DOCS_UPLOADED"
	StatusAnalyzed           Status = "ANALYZED"
	StatusLetterDrafted      Status = "LETTER_DRAFTED"
	StatusBailiffOrdered     Status = "BAILIFF_ORDERED"
	StatusServed             Status = "SERVED"
	StatusSummonsDrafted     Status = "SUMMONS_DRAFTED"
	StatusFiled              Status = "FILED"
	StatusProceedingsOngoing Status = "PROCEEDINGS_ONGOING"
	StatusJudgment           Status = "JUDGMENT"
)

var statusOrder = []Status{
	StatusNewIntake,
	StatusDocsUploaded,
	StatusAnalyzed,
	StatusLetterDrafted,
	StatusBailiffOrdered,
	StatusServed,
	StatusSummonsDrafted,
	StatusFiled,
	StatusProceedingsOngoing,
	StatusJudgment,
}

// lateralMoves are the only permitted non-forward transitions. An analysis
// verdict of "insufficient information" routes the case back to the upload
// step so the claimant can supply what is missing.
var lateralMoves = map[Status][]Status{
	StatusAnalyzed: {StatusDocsUploaded},
}

// Index returns the zero-based position of s in the workflow, or -1.
func (s Status) Index() int {
	for i, status := range statusOrder {
		if status == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known workflow status.
func (s Status) Valid() bool {
	return s.Index() >= 0
}

// Progress returns the completed fraction of the workflow for s.
func Progress(s Status) float64 {
	idx := s.Index()
	if idx < 0 {
		return 0
	}
	return float64(idx+1) / float64(len(statusOrder))
}

// CanTransition reports whether moving from one status to another is allowed.
// Same-status calls are allowed and treated as idempotent no-ops by Advance.
func CanTransition(from, to Status) bool {
	fromIdx, toIdx := from.Index(), to.Index()
	if fromIdx < 0 || toIdx < 0 {
		return false
	}
	if toIdx >= fromIdx {
		return true
	}
	for _, allowed := range lateralMoves[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
