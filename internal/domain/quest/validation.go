package quest

type ErrorCode string

const (
	ErrNotSelfContained       ErrorCode = "NOT_SELF_CONTAINED"
	ErrTriviaQuestion         ErrorCode = "TRIVIA_QUESTION"
	ErrUnrelatedPuzzle        ErrorCode = "UNRELATED_PUZZLE"
	ErrWeakFactConnection     ErrorCode = "WEAK_FACT_CONNECTION"
	ErrWeakNarrative          ErrorCode = "WEAK_NARRATIVE"
	ErrMetaPuzzleDisconnected ErrorCode = "META_PUZZLE_DISCONNECTED"
)

// Meta-puzzle findings carry this pseudo spot id.
const MetaSpotID = "META"

// IsCritical reports whether the code makes a spot a regeneration target.
func (c ErrorCode) IsCritical() bool {
	switch c {
	case ErrNotSelfContained, ErrTriviaQuestion, ErrUnrelatedPuzzle:
		return true
	}
	return false
}

type ValidationError struct {
	SpotID  string    `json:"spot_id"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type ValidationWarning struct {
	SpotID  string `json:"spot_id"`
	Message string `json:"message"`
}

type SpotScores struct {
	SelfContainment float64 `json:"self_containment"`
	FactConnection  float64 `json:"fact_connection"`
	NarrativeFit    float64 `json:"narrative_fit"`
	PuzzleQuality   float64 `json:"puzzle_quality"`
}

type ValidationResult struct {
	Passed     bool                  `json:"passed"`
	Errors     []ValidationError     `json:"errors"`
	Warnings   []ValidationWarning   `json:"warnings"`
	SpotScores map[string]SpotScores `json:"spot_scores"`
}

func (r ValidationResult) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.SpotID+": "+w.Message)
	}
	return out
}
