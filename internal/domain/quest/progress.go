package quest

type Step int

const (
	StepSpotSelection Step = 1
	StepMotifAndPlot  Step = 2
	StepPuzzles       Step = 3
	StepValidation    Step = 4
)

var stepNames = map[Step]string{
	StepSpotSelection: "spot_selection",
	StepMotifAndPlot:  "plot_building",
	StepPuzzles:       "puzzle_generation",
	StepValidation:    "validation",
}

func (s Step) Name() string { return stepNames[s] }

type ProgressEvent struct {
	Step       Step   `json:"current_step"`
	StepName   string `json:"step_name"`
	Progress   int    `json:"progress"`
	SpotIndex  int    `json:"current_spot_index,omitempty"`
	TotalSpots int    `json:"total_spots,omitempty"`
	Message    string `json:"message,omitempty"`
}
