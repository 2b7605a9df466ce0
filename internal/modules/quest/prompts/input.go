package prompts

// Input is the union of template fields across all prompts. Templates use
// only what they need; missing keys render as zero values.
type Input struct {
	// Request
	Prompt       string
	Difficulty   string
	PuzzleLevel  int
	SpotCount    int
	QuestTheme   string
	SupportLines []string
	CenterHint   string

	// Route-wide context (pre-rendered JSON)
	SpotsJSON  string
	MotifsJSON string
	PlotJSON   string
	ScenesJSON string

	// Single stop
	SpotID           string
	SpotName         string
	SpotSummary      string
	FactsJSON        string
	SceneRole        string
	PlotKeyType      string
	PuzzleType       string
	PuzzleGuide      string
	PuzzleExample    string
	SpotIndex        int
	TotalSpots       int
	NarrativeContext string
	PreviousIssues   []string

	// Meta puzzle
	PlotKeys []string
}
