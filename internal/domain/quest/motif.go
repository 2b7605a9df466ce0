package quest

type SceneRole string

const (
	RoleIntro                SceneRole = "intro"
	RoleRising               SceneRole = "rising"
	RoleTurningPoint         SceneRole = "turning_point"
	RoleClimaxApproach       SceneRole = "climax_approach"
	RoleRedHerringResolution SceneRole = "red_herring_resolution"
	RoleFinale               SceneRole = "finale"
)

var sceneRoles = map[SceneRole]bool{
	RoleIntro: true, RoleRising: true, RoleTurningPoint: true,
	RoleClimaxApproach: true, RoleRedHerringResolution: true, RoleFinale: true,
}

func (r SceneRole) Valid() bool { return sceneRoles[r] }

type PlotKeyType string

const (
	PlotKeyKeyword PlotKeyType = "keyword"
	PlotKeyNumber  PlotKeyType = "number"
	PlotKeySymbol  PlotKeyType = "symbol"
	PlotKeyName    PlotKeyType = "name"
	PlotKeyDate    PlotKeyType = "date"
)

var plotKeyTypes = map[PlotKeyType]bool{
	PlotKeyKeyword: true, PlotKeyNumber: true, PlotKeySymbol: true, PlotKeyName: true, PlotKeyDate: true,
}

func (t PlotKeyType) Valid() bool { return plotKeyTypes[t] }

type PuzzleType string

const (
	PuzzleLogic      PuzzleType = "logic"
	PuzzlePattern    PuzzleType = "pattern"
	PuzzleCipher     PuzzleType = "cipher"
	PuzzleWordplay   PuzzleType = "wordplay"
	PuzzleLateral    PuzzleType = "lateral"
	PuzzleArithmetic PuzzleType = "arithmetic"
)

// PuzzleTypes is the fixed archetype list in round-robin order.
var PuzzleTypes = []PuzzleType{PuzzleLogic, PuzzlePattern, PuzzleCipher, PuzzleWordplay, PuzzleLateral, PuzzleArithmetic}

func (t PuzzleType) Valid() bool {
	for _, p := range PuzzleTypes {
		if p == t {
			return true
		}
	}
	return false
}

type SpotMotif struct {
	SpotID           string      `json:"spot_id"`
	SpotName         string      `json:"spot_name"`
	SelectedFacts    []string    `json:"selected_facts"`
	SceneRole        SceneRole   `json:"scene_role"`
	PlotKeyType      PlotKeyType `json:"plot_key_type"`
	SuggestedPuzzle  PuzzleType  `json:"suggested_puzzle_type"`
	MotifDescription string      `json:"motif_description,omitempty"`
}
