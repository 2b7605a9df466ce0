package pipeline

import (
	"time"

	"github.com/yungbote/questweaver/internal/domain/quest"
)

type AssembleInput struct {
	QuestID     string
	Title       string
	Plot        quest.MainPlot
	Scenes      []quest.SpotScene
	Meta        quest.MetaPuzzle
	Validation  quest.ValidationResult
	Regenerated []string
	Fallbacks   []string
	Now         time.Time
}

// Assemble builds the terminal QuestOutput. Warnings always serialise as an
// array, possibly empty.
func Assemble(in AssembleInput) quest.QuestOutput {
	warnings := in.Validation.WarningMessages()
	for _, e := range in.Validation.Errors {
		warnings = append(warnings, e.SpotID+": "+string(e.Code)+" "+e.Message)
	}
	return quest.QuestOutput{
		QuestID:    in.QuestID,
		Title:      in.Title,
		MainPlot:   in.Plot,
		Spots:      in.Scenes,
		MetaPuzzle: in.Meta,
		Metadata: quest.Metadata{
			GeneratedAt:      in.Now.UTC(),
			PipelineVersion:  quest.PipelineVersion,
			ValidationPassed: in.Validation.Passed,
			Warnings:         warnings,
			RegeneratedSpots: in.Regenerated,
			Fallbacks:        in.Fallbacks,
		},
	}
}
