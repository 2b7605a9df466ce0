package questflow

import (
	"github.com/yungbote/questweaver/internal/domain/quest"
)

const (
	WorkflowName  = "quest_generate"
	QueryProgress = "quest_progress"

	ActivitySelectStops    = "quest_select_stops"
	ActivitySelectMotifs   = "quest_select_motifs"
	ActivityBuildPlot      = "quest_build_plot"
	ActivityGeneratePuzzle = "quest_generate_puzzle"
	ActivityGenerateMeta   = "quest_generate_meta"
	ActivityGenerateTitle  = "quest_generate_title"
)

// Snapshot is the QueryProgress result: the latest progress, the plot once
// built and the first draft of every scene finished so far, in spot order.
type Snapshot struct {
	Progress quest.ProgressEvent `json:"progress"`
	Plot     *quest.MainPlot     `json:"plot,omitempty"`
	Scenes   []quest.SpotScene   `json:"scenes,omitempty"`
}

type Input struct {
	QuestID                string                       `json:"quest_id"`
	Request                quest.QuestGenerationRequest `json:"request"`
	MaxRegenerationTargets int                          `json:"max_regeneration_targets"`
	StrictPlotKeyUsage     bool                         `json:"strict_plot_key_usage"`
}

type StopsResult struct {
	Spots []quest.SpotInput `json:"spots"`
}

type MotifsInput struct {
	Spots      []quest.SpotInput `json:"spots"`
	QuestTheme string            `json:"quest_theme"`
}

type PlotInput struct {
	Spots      []quest.SpotInput `json:"spots"`
	Motifs     []quest.SpotMotif `json:"motifs"`
	QuestTheme string            `json:"quest_theme"`
	Context    []string          `json:"context,omitempty"`
}

type PuzzleInput struct {
	Spot           quest.SpotInput   `json:"spot"`
	Motifs         []quest.SpotMotif `json:"motifs"`
	Plot           quest.MainPlot    `json:"plot"`
	Index          int               `json:"index"`
	Difficulty     quest.Difficulty  `json:"difficulty"`
	PreviousIssues []string          `json:"previous_issues,omitempty"`
}

type MetaInput struct {
	Scenes []quest.SpotScene `json:"scenes"`
	Plot   quest.MainPlot    `json:"plot"`
}

type TitleInput struct {
	Request quest.QuestGenerationRequest `json:"request"`
	Plot    quest.MainPlot               `json:"plot"`
	Scenes  []quest.SpotScene            `json:"scenes"`
}
