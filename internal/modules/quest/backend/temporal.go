package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/platform/gemini"
	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/temporalx/questflow"
)

// TemporalRunner starts the quest workflow and relays its progress query
// (progress, plot and finished scenes) to the caller's reporter until the
// workflow completes.
type TemporalRunner struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
	opts      pipeline.Options
	timeout   time.Duration
	pollEvery time.Duration
}

func NewTemporalRunner(log *logger.Logger, tc temporalsdkclient.Client, taskQueue string, opts pipeline.Options) *TemporalRunner {
	if log == nil {
		log = logger.Nop()
	}
	return &TemporalRunner{
		log:       log.With("component", "TemporalBackend"),
		tc:        tc,
		taskQueue: taskQueue,
		opts:      opts,
		timeout:   2 * gemini.DefaultTimeout,
		pollEvery: time.Second,
	}
}

func (r *TemporalRunner) Configured() bool { return r != nil && r.tc != nil && r.taskQueue != "" }

func (r *TemporalRunner) Run(ctx context.Context, req quest.QuestGenerationRequest, rep *pipeline.Reporter) (*quest.QuestDualOutput, error) {
	questID := uuid.NewString()
	run, err := r.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       "quest_" + questID,
		TaskQueue:                r.taskQueue,
		WorkflowExecutionTimeout: r.timeout,
	}, questflow.WorkflowName, questflow.Input{
		QuestID:                questID,
		Request:                req,
		MaxRegenerationTargets: r.opts.MaxRegenerationTargets,
		StrictPlotKeyUsage:     r.opts.StrictPlotKeyUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("start workflow: %w", err)
	}
	r.log.Info("quest workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	rl := &snapshotRelay{rep: rep}
	pollCtx, stop := context.WithCancel(ctx)
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		r.relayProgress(pollCtx, run, rl)
	}()

	var out quest.QuestOutput
	err = run.Get(ctx, &out)
	stop()
	<-relayed
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", run.GetID(), err)
	}
	if len(out.Spots) == 0 {
		return nil, pipeline.ErrEmptyOutput
	}
	plot := out.MainPlot
	rl.apply(questflow.Snapshot{Plot: &plot, Scenes: out.Spots})
	rep.Update(quest.StepValidation, 100, "クエストが完成しました")
	dual := quest.NewDualOutput(out, string(req.Difficulty), quest.BackendTemporal)
	return &dual, nil
}

func (r *TemporalRunner) relayProgress(ctx context.Context, run temporalsdkclient.WorkflowRun, rl *snapshotRelay) {
	t := time.NewTicker(r.pollEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		val, err := r.tc.QueryWorkflow(ctx, run.GetID(), run.GetRunID(), questflow.QueryProgress)
		if err != nil {
			continue
		}
		var snap questflow.Snapshot
		if val.Get(&snap) == nil {
			rl.apply(snap)
		}
	}
}

// snapshotRelay forwards each workflow snapshot, reporting the plot once and
// every scene at most once.
type snapshotRelay struct {
	rep       *pipeline.Reporter
	plotSent  bool
	spotsSent int
}

func (rl *snapshotRelay) apply(snap questflow.Snapshot) {
	ev := snap.Progress
	if ev.Progress > 0 {
		rl.rep.UpdateRange(ev.Step, ev.SpotIndex, ev.TotalSpots, ev.Progress, ev.Progress, ev.Message)
	}
	if snap.Plot != nil && !rl.plotSent {
		rl.plotSent = true
		rl.rep.Plot(*snap.Plot)
	}
	total := ev.TotalSpots
	if total < len(snap.Scenes) {
		total = len(snap.Scenes)
	}
	for ; rl.spotsSent < len(snap.Scenes); rl.spotsSent++ {
		rl.rep.Spot(snap.Scenes[rl.spotsSent], rl.spotsSent, total)
	}
}
