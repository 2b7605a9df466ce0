package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/temporalx"
	"github.com/yungbote/questweaver/internal/temporalx/questflow"
)

// Runner polls the quest task queue and executes quest workflows.
type Runner struct {
	log  *logger.Logger
	tc   temporalsdkclient.Client
	cfg  temporalx.Config
	acts *questflow.Activities
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, acts *questflow.Activities) (*Runner, error) {
	if tc == nil {
		return nil, errors.New("temporal client is not configured")
	}
	if acts == nil {
		return nil, errors.New("temporal worker missing activities")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{log: log.With("component", "TemporalWorker"), tc: tc, cfg: cfg, acts: acts}, nil
}

// Start launches the worker and stops it when ctx is cancelled. A missing
// namespace is registered once when auto-registration is enabled.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("starting temporal worker", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)
	deadline := time.Now().Add(r.cfg.DialMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var notFound *serviceerror.NamespaceNotFound
		if errors.As(startErr, &notFound) {
			if !r.cfg.AutoRegisterNamespace {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if r.cfg.DialMaxWait <= 0 || time.Now().After(deadline) {
			return startErr
		}
		r.log.Warn("temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := r.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	questflow.Register(w, r.acts)
	return w
}
