package questflow

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/modules/quest/steps"
)

// Activities run one pipeline stage each. Stage fallbacks happen inside the
// activity, so only stop selection returns an error.
type Activities struct {
	Deps steps.Deps
	Opts pipeline.Options
}

func (a *Activities) SelectStops(ctx context.Context, req quest.QuestGenerationRequest) (StopsResult, error) {
	out, err := steps.SelectCandidateStops(ctx, a.Deps, steps.StopSelectInput{
		Request:            req,
		MaxInterStopMeters: a.Opts.MaxInterStopMeters,
		EvidencePerSpot:    a.Opts.EvidencePerSpot,
	})
	if err != nil {
		return StopsResult{}, err
	}
	if len(out.Spots) == 0 {
		return StopsResult{}, fmt.Errorf("stop selection: %w", pipeline.ErrEmptyOutput)
	}
	return StopsResult{Spots: out.Spots}, nil
}

func (a *Activities) SelectMotifs(ctx context.Context, in MotifsInput) (steps.Outcome[[]quest.SpotMotif], error) {
	return steps.SelectMotifs(ctx, a.Deps, in.Spots, in.QuestTheme), nil
}

func (a *Activities) BuildPlot(ctx context.Context, in PlotInput) (steps.Outcome[quest.MainPlot], error) {
	return steps.CreateMainPlot(ctx, a.Deps, steps.PlotInput{
		Spots:      in.Spots,
		Motifs:     in.Motifs,
		QuestTheme: in.QuestTheme,
		Context:    in.Context,
	}), nil
}

func (a *Activities) GeneratePuzzle(ctx context.Context, in PuzzleInput) (steps.Outcome[quest.SpotScene], error) {
	if in.Index < 0 || in.Index >= len(in.Motifs) {
		return steps.Outcome[quest.SpotScene]{}, fmt.Errorf("puzzle index %d out of range", in.Index)
	}
	activity.RecordHeartbeat(ctx, in.Spot.ID)
	return steps.GenerateSpotPuzzle(ctx, a.Deps, steps.SpotPuzzleInput{
		Spot:           in.Spot,
		Motif:          in.Motifs[in.Index],
		Plot:           in.Plot,
		AllMotifs:      in.Motifs,
		SpotIndex:      in.Index,
		Difficulty:     in.Difficulty,
		PreviousIssues: in.PreviousIssues,
	}), nil
}

func (a *Activities) GenerateMeta(ctx context.Context, in MetaInput) (steps.Outcome[quest.MetaPuzzle], error) {
	return steps.GenerateMetaPuzzle(ctx, a.Deps, in.Scenes, in.Plot), nil
}

func (a *Activities) GenerateTitle(ctx context.Context, in TitleInput) (steps.Outcome[string], error) {
	return steps.GenerateTitle(ctx, a.Deps, in.Request, in.Plot, in.Scenes), nil
}
