package questflow

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/modules/quest/steps"
	"github.com/yungbote/questweaver/internal/modules/quest/validate"
)

// Workflow runs the quest pipeline with one activity per model call. The
// latest Snapshot is exposed through the QueryProgress query.
func Workflow(ctx workflow.Context, in Input) (quest.QuestOutput, error) {
	if strings.TrimSpace(in.QuestID) == "" {
		in.QuestID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	maxTargets := in.MaxRegenerationTargets
	if maxTargets <= 0 {
		maxTargets = pipeline.DefaultMaxRegenerationTargets
	}

	snap := Snapshot{Progress: quest.ProgressEvent{Step: quest.StepSpotSelection, StepName: quest.StepSpotSelection.Name()}}
	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (Snapshot, error) {
		return snap, nil
	}); err != nil {
		return quest.QuestOutput{}, err
	}
	report := func(step quest.Step, pct, index, total int, msg string) {
		if pct < snap.Progress.Progress {
			pct = snap.Progress.Progress
		}
		snap.Progress = quest.ProgressEvent{Step: step, StepName: step.Name(), Progress: pct, SpotIndex: index, TotalSpots: total, Message: msg}
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    0,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    2,
		},
	})

	req := in.Request
	var fallbacks []string
	note := func(label string, fellBack bool) {
		if fellBack {
			fallbacks = append(fallbacks, label)
		}
	}

	report(quest.StepSpotSelection, 5, 0, 0, "候補スポットを探しています")
	var stops StopsResult
	if err := workflow.ExecuteActivity(ctx, ActivitySelectStops, req).Get(ctx, &stops); err != nil {
		return quest.QuestOutput{}, fmt.Errorf("stop selection: %w", err)
	}
	total := len(stops.Spots)
	report(quest.StepSpotSelection, 15, 0, total, fmt.Sprintf("%d件のスポットを選びました", total))

	var motifs steps.Outcome[[]quest.SpotMotif]
	if err := workflow.ExecuteActivity(ctx, ActivitySelectMotifs, MotifsInput{Spots: stops.Spots, QuestTheme: req.QuestTheme()}).Get(ctx, &motifs); err != nil {
		return quest.QuestOutput{}, err
	}
	note("motif", motifs.Fallback)
	report(quest.StepMotifAndPlot, 20, 0, total, "物語の役割を決めました")

	var plot steps.Outcome[quest.MainPlot]
	if err := workflow.ExecuteActivity(ctx, ActivityBuildPlot, PlotInput{
		Spots: stops.Spots, Motifs: motifs.Value, QuestTheme: req.QuestTheme(), Context: req.PromptSupport.Lines(),
	}).Get(ctx, &plot); err != nil {
		return quest.QuestOutput{}, err
	}
	note("plot", plot.Fallback)
	built := plot.Value
	snap.Plot = &built
	report(quest.StepMotifAndPlot, 30, 0, total, "メインプロットを作成しました")

	futures := make([]workflow.Future, total)
	for i, s := range stops.Spots {
		futures[i] = workflow.ExecuteActivity(ctx, ActivityGeneratePuzzle, PuzzleInput{
			Spot: s, Motifs: motifs.Value, Plot: plot.Value, Index: i, Difficulty: req.Difficulty,
		})
	}
	scenes := make([]quest.SpotScene, total)
	for i, f := range futures {
		var out steps.Outcome[quest.SpotScene]
		if err := f.Get(ctx, &out); err != nil {
			return quest.QuestOutput{}, err
		}
		scenes[i] = out.Value
		snap.Scenes = append(snap.Scenes, out.Value)
		note("puzzle:"+stops.Spots[i].ID, out.Fallback)
		report(quest.StepPuzzles, 30+(i+1)*50/total, i+1, total, fmt.Sprintf("%sの謎を作成しました", steps.SpotLabel(stops.Spots[i])))
	}

	var meta steps.Outcome[quest.MetaPuzzle]
	if err := workflow.ExecuteActivity(ctx, ActivityGenerateMeta, MetaInput{Scenes: scenes, Plot: plot.Value}).Get(ctx, &meta); err != nil {
		return quest.QuestOutput{}, err
	}
	note("meta_puzzle", meta.Fallback)
	report(quest.StepPuzzles, 85, total, total, "最後の謎を作成しました")

	vopts := validate.Options{StrictPlotKeyUsage: in.StrictPlotKeyUsage}
	result := validate.ValidateQuest(scenes, plot.Value, meta.Value, vopts)
	report(quest.StepValidation, 90, total, total, "品質をチェックしています")

	targets := pipeline.RegenerationTargets(result, maxTargets)
	if len(targets) > 0 {
		index := make(map[string]int, total)
		for i, s := range stops.Spots {
			index[s.ID] = i
		}
		keysChanged := false
		for _, id := range targets {
			i, ok := index[id]
			if !ok {
				continue
			}
			var out steps.Outcome[quest.SpotScene]
			if err := workflow.ExecuteActivity(ctx, ActivityGeneratePuzzle, PuzzleInput{
				Spot: stops.Spots[i], Motifs: motifs.Value, Plot: plot.Value, Index: i,
				Difficulty: req.Difficulty, PreviousIssues: validate.IssuesFor(result, id),
			}).Get(ctx, &out); err != nil {
				return quest.QuestOutput{}, err
			}
			note("regenerate:"+id, out.Fallback)
			keysChanged = keysChanged || out.Value.Reward.PlotKey != scenes[i].Reward.PlotKey
			scenes[i] = out.Value
		}
		if keysChanged {
			if err := workflow.ExecuteActivity(ctx, ActivityGenerateMeta, MetaInput{Scenes: scenes, Plot: plot.Value}).Get(ctx, &meta); err != nil {
				return quest.QuestOutput{}, err
			}
			note("meta_puzzle", meta.Fallback)
		}
		result = validate.ValidateQuest(scenes, plot.Value, meta.Value, vopts)
	}

	var title steps.Outcome[string]
	if err := workflow.ExecuteActivity(ctx, ActivityGenerateTitle, TitleInput{Request: req, Plot: plot.Value, Scenes: scenes}).Get(ctx, &title); err != nil {
		return quest.QuestOutput{}, err
	}
	note("title", title.Fallback)

	out := pipeline.Assemble(pipeline.AssembleInput{
		QuestID:     in.QuestID,
		Title:       title.Value,
		Plot:        plot.Value,
		Scenes:      scenes,
		Meta:        meta.Value,
		Validation:  result,
		Regenerated: targets,
		Fallbacks:   fallbacks,
		Now:         workflow.Now(ctx),
	})
	report(quest.StepValidation, 100, total, total, "クエストが完成しました")
	return out, nil
}
