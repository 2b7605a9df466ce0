package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"

	"github.com/yungbote/questweaver/internal/data/dbctx"
	"github.com/yungbote/questweaver/internal/data/repos"
	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/domain/runs"
	"github.com/yungbote/questweaver/internal/modules/quest/backend"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/platform/ctxutil"
	"github.com/yungbote/questweaver/internal/platform/gcp"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

var ErrTooManyRuns = errors.New("too many quest runs in progress")

// Generator is the part of backend.Selector the service depends on.
type Generator interface {
	Generate(ctx context.Context, req quest.QuestGenerationRequest, mode backend.Mode, cb pipeline.Callbacks) (*quest.QuestDualOutput, error)
}

type QuestService interface {
	// Generate runs a request to completion in the caller's context.
	Generate(ctx context.Context, subject string, req quest.QuestGenerationRequest, mode backend.Mode) (*runs.QuestRun, *quest.QuestDualOutput, error)
	// StartRun validates and queues a request, returning before generation
	// finishes. Progress is published on the run's channel.
	StartRun(ctx context.Context, subject string, req quest.QuestGenerationRequest, mode backend.Mode) (*runs.QuestRun, error)
	GetRun(ctx context.Context, id string) (*runs.QuestRun, error)
	ListRuns(ctx context.Context, subject string, limit int) ([]*runs.QuestRun, error)
	GetQuest(ctx context.Context, questID string) (*quest.QuestDualOutput, error)
	// RecoverStale fails runs left unfinished by a previous process.
	RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
	// Shutdown cancels in-flight runs and waits for them to record their
	// final state.
	Shutdown(ctx context.Context) error
}

type QuestServiceConfig struct {
	MaxConcurrentRuns int64
	RunTimeout        time.Duration
}

type questService struct {
	log      *logger.Logger
	gen      Generator
	runs     repos.QuestRunRepo
	notifier QuestNotifier
	archive  gcp.Archive
	cfg      QuestServiceConfig

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	base   context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

func NewQuestService(log *logger.Logger, gen Generator, runRepo repos.QuestRunRepo, notifier QuestNotifier, archive gcp.Archive, cfg QuestServiceConfig) QuestService {
	if log == nil {
		log = logger.Nop()
	}
	if notifier == nil {
		notifier = NewQuestNotifier(nil)
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 4
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 15 * time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	return &questService{
		log:      log.With("service", "QuestService"),
		gen:      gen,
		runs:     runRepo,
		notifier: notifier,
		archive:  archive,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		base:     base,
		cancel:   cancel,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *questService) Generate(ctx context.Context, subject string, req quest.QuestGenerationRequest, mode backend.Mode) (*runs.QuestRun, *quest.QuestDualOutput, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if !s.sem.TryAcquire(1) {
		return nil, nil, ErrTooManyRuns
	}
	defer s.sem.Release(1)
	run, err := s.createRun(ctx, subject, req, mode)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()
	out, err := s.execute(ctx, run, req, mode)
	return run, out, err
}

func (s *questService) StartRun(ctx context.Context, subject string, req quest.QuestGenerationRequest, mode backend.Mode) (*runs.QuestRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.sem.TryAcquire(1) {
		return nil, ErrTooManyRuns
	}
	run, err := s.createRun(ctx, subject, req, mode)
	if err != nil {
		s.sem.Release(1)
		return nil, err
	}
	snapshot := *run
	td := ctxutil.GetTraceData(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		runCtx, cancel := context.WithTimeout(s.base, s.cfg.RunTimeout)
		defer cancel()
		if td != nil {
			runCtx = ctxutil.WithTraceData(runCtx, td)
		}
		_, _ = s.execute(runCtx, run, req, mode)
	}()
	return &snapshot, nil
}

func (s *questService) createRun(ctx context.Context, subject string, req quest.QuestGenerationRequest, mode backend.Mode) (*runs.QuestRun, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = backend.ModeAuto
	}
	run := &runs.QuestRun{
		ID:      uuid.NewString(),
		Subject: subject,
		Status:  runs.StatusQueued,
		Stage:   "queued",
		Mode:    string(mode),
		Request: datatypes.JSON(raw),
	}
	if err := s.runs.Create(dbctx.Context{Ctx: ctx}, run); err != nil {
		return nil, fmt.Errorf("create quest run: %w", err)
	}
	s.notifier.RunCreated(ctx, run)
	return run, nil
}

// execute owns run until it reaches a terminal status.
func (s *questService) execute(ctx context.Context, run *runs.QuestRun, req quest.QuestGenerationRequest, mode backend.Mode) (*quest.QuestDualOutput, error) {
	ctx = ctxutil.WithRunID(ctx, run.ID)
	log := s.log.With(ctxutil.LogFields(ctx)...)
	dbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	started := s.now()
	run.Status, run.StartedAt = runs.StatusRunning, &started
	if err := s.runs.UpdateFields(dbc, run.ID, map[string]interface{}{
		"status":     runs.StatusRunning,
		"started_at": started,
	}); err != nil {
		log.Warn("mark run running failed", "error", err)
	}

	var (
		mu      sync.Mutex
		lastPct = -1
	)
	cb := pipeline.Callbacks{
		OnProgress: func(ev quest.ProgressEvent) {
			s.notifier.RunProgress(ctx, run.ID, ev)
			mu.Lock()
			changed := ev.Progress != lastPct
			lastPct = ev.Progress
			run.Stage, run.Progress = ev.Step.Name(), ev.Progress
			mu.Unlock()
			if !changed {
				return
			}
			if err := s.runs.UpdateFields(dbc, run.ID, map[string]interface{}{
				"stage":    ev.Step.Name(),
				"progress": ev.Progress,
			}); err != nil {
				log.Debug("progress update failed", "error", err)
			}
		},
		OnPlotComplete: func(p quest.MainPlot) { s.notifier.PlotReady(ctx, run.ID, p) },
		OnSpotComplete: func(sc quest.SpotScene, i, n int) { s.notifier.SpotReady(ctx, run.ID, sc, i, n) },
	}

	out, err := s.gen.Generate(ctx, req, mode, cb)
	finished := s.now()
	run.FinishedAt = &finished
	if err != nil {
		run.Status, run.Error = runs.StatusFailed, err.Error()
		if uerr := s.runs.UpdateFields(dbc, run.ID, map[string]interface{}{
			"status":      runs.StatusFailed,
			"error":       run.Error,
			"finished_at": finished,
		}); uerr != nil {
			log.Error("mark run failed failed", "error", uerr)
		}
		log.Warn("quest run failed", "stage", run.Stage, "error", err)
		s.notifier.RunFailed(dbc.Ctx, run, run.Error)
		return nil, err
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	validation, _ := json.Marshal(out.Payload.Metadata)
	updates := map[string]interface{}{
		"status":      runs.StatusSucceeded,
		"stage":       quest.StepValidation.Name(),
		"progress":    100,
		"quest_id":    out.QuestID,
		"backend":     string(out.Backend),
		"fell_back":   out.FellBack,
		"output":      datatypes.JSON(payload),
		"validation":  datatypes.JSON(validation),
		"finished_at": finished,
	}
	if s.archive != nil {
		if url, aerr := s.archive.Put(dbc.Ctx, out.QuestID, payload); aerr != nil {
			log.Warn("quest archive failed", "quest_id", out.QuestID, "error", aerr)
		} else {
			updates["archive_url"] = url
			run.ArchiveURL = url
		}
	}
	run.Status, run.QuestID, run.Progress = runs.StatusSucceeded, out.QuestID, 100
	run.Backend, run.FellBack = string(out.Backend), out.FellBack
	if err := s.runs.UpdateFields(dbc, run.ID, updates); err != nil {
		log.Error("store quest output failed", "error", err)
		return out, fmt.Errorf("store quest output: %w", err)
	}
	log.Info("quest run succeeded",
		"quest_id", out.QuestID,
		"backend", out.Backend,
		"fell_back", out.FellBack,
		"elapsed_ms", finished.Sub(started).Milliseconds(),
	)
	s.notifier.RunDone(dbc.Ctx, run, out)
	return out, nil
}

func (s *questService) GetRun(ctx context.Context, id string) (*runs.QuestRun, error) {
	return s.runs.GetByID(dbctx.Context{Ctx: ctx}, id)
}

func (s *questService) ListRuns(ctx context.Context, subject string, limit int) ([]*runs.QuestRun, error) {
	return s.runs.ListRecent(dbctx.Context{Ctx: ctx}, subject, limit)
}

func (s *questService) GetQuest(ctx context.Context, questID string) (*quest.QuestDualOutput, error) {
	run, err := s.runs.GetByQuestID(dbctx.Context{Ctx: ctx}, questID)
	if err != nil {
		return nil, err
	}
	var out quest.QuestDualOutput
	if err := json.Unmarshal(run.Output, &out); err != nil {
		return nil, fmt.Errorf("decode stored quest %s: %w", questID, err)
	}
	return &out, nil
}

func (s *questService) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.runs.FailStale(dbctx.Context{Ctx: ctx}, s.now().Add(-olderThan), "interrupted by restart")
}

func (s *questService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
