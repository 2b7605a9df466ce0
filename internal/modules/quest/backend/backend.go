// Package backend chooses how a quest request is executed: in process,
// through an external workflow engine, or as a Temporal workflow.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/observability"
	"github.com/yungbote/questweaver/internal/platform/envutil"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeDirect   Mode = "direct"
	ModeWorkflow Mode = "workflow"
	ModeTemporal Mode = "temporal"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeDirect, ModeWorkflow, ModeTemporal:
		return m, nil
	default:
		return "", fmt.Errorf("unknown backend mode %q", s)
	}
}

func ModeFromEnv() Mode {
	m, err := ParseMode(envutil.String("QUEST_BACKEND_MODE", "auto"))
	if err != nil {
		return ModeAuto
	}
	return m
}

// Remote runs the whole pipeline somewhere other than this process.
type Remote interface {
	Configured() bool
	Run(ctx context.Context, req quest.QuestGenerationRequest, rep *pipeline.Reporter) (*quest.QuestDualOutput, error)
}

type Selector struct {
	log      *logger.Logger
	direct   *pipeline.Pipeline
	workflow Remote
	temporal Remote
	mode     Mode
}

type Option func(*Selector)

func WithWorkflow(r Remote) Option { return func(s *Selector) { s.workflow = r } }

func WithTemporal(r Remote) Option { return func(s *Selector) { s.temporal = r } }

func WithMode(m Mode) Option { return func(s *Selector) { s.mode = m } }

func NewSelector(log *logger.Logger, direct *pipeline.Pipeline, opts ...Option) *Selector {
	if log == nil {
		log = logger.Nop()
	}
	s := &Selector{log: log.With("component", "QuestBackend"), direct: direct, mode: ModeAuto}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Resolve maps a requested mode onto the backend that will run. An explicit
// mode wins even when its backend is unconfigured; Generate then falls back.
func (s *Selector) Resolve(m Mode) quest.Backend {
	if m == "" {
		m = s.mode
	}
	switch m {
	case ModeDirect:
		return quest.BackendDirect
	case ModeWorkflow:
		return quest.BackendWorkflow
	case ModeTemporal:
		return quest.BackendTemporal
	}
	if configured(s.workflow) {
		return quest.BackendWorkflow
	}
	if configured(s.temporal) {
		return quest.BackendTemporal
	}
	return quest.BackendDirect
}

// Generate runs req on the resolved backend. Any failure of a non-direct
// backend reruns the whole request in process.
func (s *Selector) Generate(ctx context.Context, req quest.QuestGenerationRequest, mode Mode, cb pipeline.Callbacks) (*quest.QuestDualOutput, error) {
	if err := req.Validate(); err != nil {
		if cb.OnError != nil {
			cb.OnError(err, pipeline.State{})
		}
		return nil, err
	}
	rep := pipeline.NewReporter(ctx, cb)
	backend := s.Resolve(mode)

	if backend != quest.BackendDirect {
		start := time.Now()
		out, err := s.runRemote(ctx, backend, req, rep)
		if err == nil {
			observability.Current().IncBackendRun(string(backend), "ok")
			s.log.Info("quest generated remotely", "backend", backend, "quest_id", out.QuestID, "elapsed_ms", time.Since(start).Milliseconds())
			return out, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			rep.Fail(cerr, pipeline.State{})
			return nil, cerr
		}
		observability.Current().IncBackendRun(string(backend), "fallback")
		s.log.Warn("remote backend failed; falling back to direct", "backend", backend, "error", err)
		out, derr := s.runDirect(ctx, req, rep)
		if derr != nil {
			return nil, derr
		}
		out.FellBack = true
		return out, nil
	}
	return s.runDirect(ctx, req, rep)
}

func (s *Selector) runRemote(ctx context.Context, backend quest.Backend, req quest.QuestGenerationRequest, rep *pipeline.Reporter) (*quest.QuestDualOutput, error) {
	var r Remote
	switch backend {
	case quest.BackendWorkflow:
		r = s.workflow
	case quest.BackendTemporal:
		r = s.temporal
	}
	if !configured(r) {
		return nil, fmt.Errorf("%s backend: %w", backend, pipeline.ErrMissingCredential)
	}
	out, err := r.Run(ctx, req, rep)
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", backend, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s backend: %w", backend, pipeline.ErrEmptyOutput)
	}
	out.Backend = backend
	return out, nil
}

func (s *Selector) runDirect(ctx context.Context, req quest.QuestGenerationRequest, rep *pipeline.Reporter) (*quest.QuestDualOutput, error) {
	if s.direct == nil {
		err := fmt.Errorf("direct backend: %w", pipeline.ErrMissingCredential)
		rep.Fail(err, pipeline.State{})
		return nil, err
	}
	q, err := s.direct.Run(ctx, req, rep)
	if err != nil {
		observability.Current().IncBackendRun(string(quest.BackendDirect), "error")
		return nil, err
	}
	observability.Current().IncBackendRun(string(quest.BackendDirect), "ok")
	out := quest.NewDualOutput(*q, string(req.Difficulty), quest.BackendDirect)
	return &out, nil
}

func configured(r Remote) bool {
	return r != nil && r.Configured()
}
