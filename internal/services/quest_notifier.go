package services

import (
	"context"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/domain/runs"
	"github.com/yungbote/questweaver/internal/realtime"
)

// QuestNotifier publishes run lifecycle events on the run's channel.
type QuestNotifier interface {
	RunCreated(ctx context.Context, run *runs.QuestRun)
	RunProgress(ctx context.Context, runID string, ev quest.ProgressEvent)
	PlotReady(ctx context.Context, runID string, plot quest.MainPlot)
	SpotReady(ctx context.Context, runID string, scene quest.SpotScene, index, total int)
	RunDone(ctx context.Context, run *runs.QuestRun, out *quest.QuestDualOutput)
	RunFailed(ctx context.Context, run *runs.QuestRun, errMsg string)
}

type questNotifier struct {
	emitter SSEEmitter
}

func NewQuestNotifier(emitter SSEEmitter) QuestNotifier {
	return &questNotifier{emitter: emitter}
}

func (n *questNotifier) emit(ctx context.Context, runID string, event realtime.SSEEvent, data map[string]any) {
	if n == nil || n.emitter == nil {
		return
	}
	data["run_id"] = runID
	n.emitter.Emit(ctx, realtime.SSEMessage{Channel: realtime.RunChannel(runID), Event: event, Data: data})
}

func (n *questNotifier) RunCreated(ctx context.Context, run *runs.QuestRun) {
	n.emit(ctx, run.ID, realtime.SSEEventQuestRunCreated, map[string]any{"run": run})
}

func (n *questNotifier) RunProgress(ctx context.Context, runID string, ev quest.ProgressEvent) {
	n.emit(ctx, runID, realtime.SSEEventQuestRunProgress, map[string]any{"progress": ev})
}

func (n *questNotifier) PlotReady(ctx context.Context, runID string, plot quest.MainPlot) {
	n.emit(ctx, runID, realtime.SSEEventQuestPlotReady, map[string]any{"plot": plot})
}

func (n *questNotifier) SpotReady(ctx context.Context, runID string, scene quest.SpotScene, index, total int) {
	n.emit(ctx, runID, realtime.SSEEventQuestSpotReady, map[string]any{
		"spot":  scene,
		"index": index,
		"total": total,
	})
}

func (n *questNotifier) RunDone(ctx context.Context, run *runs.QuestRun, out *quest.QuestDualOutput) {
	n.emit(ctx, run.ID, realtime.SSEEventQuestRunDone, map[string]any{
		"quest_id": out.QuestID,
		"preview":  out.Preview,
		"backend":  out.Backend,
	})
}

func (n *questNotifier) RunFailed(ctx context.Context, run *runs.QuestRun, errMsg string) {
	n.emit(ctx, run.ID, realtime.SSEEventQuestRunFailed, map[string]any{
		"stage": run.Stage,
		"error": errMsg,
	})
}
