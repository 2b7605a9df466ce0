package app

import (
	"context"
	"net/http"

	"github.com/yungbote/questweaver/internal/modules/quest/backend"
	"github.com/yungbote/questweaver/internal/modules/quest/evidence"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/modules/quest/steps"
	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/temporalx/questflow"
)

// Generation is the quest-producing half of the app: the in-process
// pipeline, the backend selector in front of it, and the activities a
// Temporal worker executes.
type Generation struct {
	Deps       steps.Deps
	Pipeline   *pipeline.Pipeline
	Selector   *backend.Selector
	Activities *questflow.Activities
}

func wireGeneration(log *logger.Logger, cfg Config, c *Clients) Generation {
	log.Info("Wiring quest generation...")

	hc := &http.Client{Timeout: cfg.SourceTimeout}
	wiki := cfg.Wiki
	wiki.HTTPClient = hc
	retriever := evidence.NewRetriever(log, []evidence.Source{
		evidence.NewWikiSummary(wiki),
		evidence.NewWikiGeosearch(wiki),
		evidence.NewOfficialPage(hc, wiki.UserAgent),
	},
		evidence.WithSourceTimeout(cfg.SourceTimeout),
		evidence.WithMaxEvidences(cfg.MaxEvidences),
	)

	deps := steps.Deps{
		Log:      log,
		LLM:      c.LLM,
		Geocoder: c.Geocoder,
		Evidence: retriever,
	}

	var direct *pipeline.Pipeline
	if c.LLM != nil {
		direct = pipeline.New(deps, cfg.Pipeline)
	}

	opts := []backend.Option{
		backend.WithMode(cfg.BackendMode),
		backend.WithWorkflow(backend.NewWorkflowClient(log, cfg.Workflow)),
	}
	if c.Temporal != nil {
		opts = append(opts, backend.WithTemporal(backend.NewTemporalRunner(log, c.Temporal, cfg.Temporal.TaskQueue, cfg.Pipeline)))
	}

	return Generation{
		Deps:       deps,
		Pipeline:   direct,
		Selector:   backend.NewSelector(log, direct, opts...),
		Activities: &questflow.Activities{Deps: deps, Opts: cfg.Pipeline},
	}
}

// NewStandaloneGeneration wires generation without the database, bus or
// archive, for one-shot command line use. Close the returned clients when
// done.
func NewStandaloneGeneration(ctx context.Context, log *logger.Logger, cfg Config) (Generation, *Clients, error) {
	c, err := wireClients(ctx, log, cfg, clientOptions{})
	if err != nil {
		return Generation{}, nil, err
	}
	return wireGeneration(log, cfg, c), c, nil
}
