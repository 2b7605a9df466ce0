package quest

type LoreCard struct {
	Narrative     string   `json:"narrative"`
	FactsUsed     []string `json:"facts_used"`
	PlayerHandout string   `json:"player_handout"`
}

// Puzzle is one stop's puzzle. Hints run from abstract to concrete.
type Puzzle struct {
	Type          PuzzleType `json:"type"`
	Prompt        string     `json:"prompt"`
	Rules         string     `json:"rules,omitempty"`
	Answer        string     `json:"answer"`
	SolutionSteps []string   `json:"solution_steps"`
	Hints         []string   `json:"hints"`
	Difficulty    int        `json:"difficulty"`
}

const (
	MinPuzzleDifficulty = 1
	MaxPuzzleDifficulty = 5
)

type Reward struct {
	LoreReveal   string `json:"lore_reveal"`
	PlotKey      string `json:"plot_key"`
	NextSpotHook string `json:"next_spot_hook"`
}

type SpotScene struct {
	SpotID           string    `json:"spot_id"`
	SpotName         string    `json:"spot_name"`
	Lat              float64   `json:"lat"`
	Lng              float64   `json:"lng"`
	SceneRole        SceneRole `json:"scene_role"`
	LoreCard         LoreCard  `json:"lore_card"`
	Puzzle           Puzzle    `json:"puzzle"`
	Reward           Reward    `json:"reward"`
	LinkingRationale string    `json:"linking_rationale"`
}

type MetaPuzzle struct {
	Inputs      []string `json:"inputs"`
	Prompt      string   `json:"prompt"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}
