package quest

import "time"

// PipelineVersion tags every QuestOutput produced by this build.
const PipelineVersion = "layton-v2"

type Metadata struct {
	GeneratedAt      time.Time `json:"generated_at"`
	PipelineVersion  string    `json:"pipeline_version"`
	ValidationPassed bool      `json:"validation_passed"`
	Warnings         []string  `json:"validation_warnings"`
	RegeneratedSpots []string  `json:"regenerated_spots,omitempty"`
	Fallbacks        []string  `json:"fallbacks,omitempty"`
}

type QuestOutput struct {
	QuestID    string      `json:"quest_id"`
	Title      string      `json:"title"`
	MainPlot   MainPlot    `json:"main_plot"`
	Spots      []SpotScene `json:"spots"`
	MetaPuzzle MetaPuzzle  `json:"meta_puzzle"`
	Metadata   Metadata    `json:"metadata"`
}

type Preview struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	SpotNames  []string `json:"spot_names"`
	Difficulty string   `json:"difficulty"`
}

type Backend string

const (
	BackendDirect   Backend = "direct"
	BackendWorkflow Backend = "workflow"
	BackendTemporal Backend = "temporal"
)

// QuestDualOutput pairs a lightweight preview with the full payload.
type QuestDualOutput struct {
	QuestID  string      `json:"quest_id"`
	Preview  Preview     `json:"preview"`
	Payload  QuestOutput `json:"payload"`
	Backend  Backend     `json:"backend"`
	FellBack bool        `json:"fell_back"`
}

// NewDualOutput derives the preview from a finished quest.
func NewDualOutput(q QuestOutput, difficulty string, backend Backend) QuestDualOutput {
	names := make([]string, 0, len(q.Spots))
	for _, s := range q.Spots {
		names = append(names, s.SpotName)
	}
	summary := q.MainPlot.Goal
	if summary == "" {
		summary = q.MainPlot.CentralMystery
	}
	return QuestDualOutput{
		QuestID: q.QuestID,
		Preview: Preview{
			Title:      q.Title,
			Summary:    summary,
			SpotNames:  names,
			Difficulty: difficulty,
		},
		Payload: q,
		Backend: backend,
	}
}
