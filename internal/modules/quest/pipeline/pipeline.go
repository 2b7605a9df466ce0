// Package pipeline runs the quest generation stages in order and assembles
// the final QuestOutput.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/steps"
	"github.com/yungbote/questweaver/internal/modules/quest/validate"
	"github.com/yungbote/questweaver/internal/observability"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

// DefaultMaxRegenerationTargets is the largest number of failing stops that
// still triggers the regeneration pass. Quests with more failing stops are
// returned as they are.
const DefaultMaxRegenerationTargets = 3

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrEmptyOutput       = errors.New("empty pipeline output")
	ErrSchemaValidation  = errors.New("output failed schema validation")
)

type Options struct {
	MaxRegenerationTargets int
	// ParallelPuzzles generates stop puzzles concurrently. Puzzle prompts only
	// see motif roles, so ordering of results is unaffected.
	ParallelPuzzles    bool
	MaxInterStopMeters float64
	EvidencePerSpot    int
	StrictPlotKeyUsage bool

	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.MaxRegenerationTargets <= 0 {
		o.MaxRegenerationTargets = DefaultMaxRegenerationTargets
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

type Pipeline struct {
	log  *logger.Logger
	deps steps.Deps
	opts Options
}

func New(deps steps.Deps, opts Options) *Pipeline {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	deps.Log = log.With("component", "QuestPipeline")
	return &Pipeline{log: deps.Log, deps: deps, opts: opts.withDefaults()}
}

func (p *Pipeline) Deps() steps.Deps { return p.deps }

func (p *Pipeline) Options() Options { return p.opts }

// Generate runs stop selection, motifs, plot, per-stop puzzles, the meta
// puzzle, validation with at most one regeneration pass, and the title.
// Only request and stop-selection failures abort the run.
func (p *Pipeline) Generate(ctx context.Context, req quest.QuestGenerationRequest, cb Callbacks) (*quest.QuestOutput, error) {
	return p.Run(ctx, req, NewReporter(ctx, cb))
}

// Run is Generate with a caller-owned reporter, so progress stays monotonic
// across backends sharing one stream.
func (p *Pipeline) Run(ctx context.Context, req quest.QuestGenerationRequest, rep *Reporter) (out *quest.QuestOutput, err error) {
	var st State
	ctx, span := observability.StartSpan(ctx, "quest.generate",
		attribute.Int("spot_count", req.SpotCount),
		attribute.String("difficulty", string(req.Difficulty)),
	)
	defer func() {
		observability.EndSpan(span, err)
		if err != nil {
			p.log.Error("quest generation failed", "step", st.Step.Name(), "error", err)
			rep.Fail(err, st)
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	var fallbacks []string
	note := func(label string, fellBack bool) {
		if fellBack {
			fallbacks = append(fallbacks, label)
		}
	}

	// Step 1: stops.
	st.Step = quest.StepSpotSelection
	rep.Update(quest.StepSpotSelection, 5, "候補スポットを探しています")
	sel, err := steps.SelectCandidateStops(ctx, p.deps, steps.StopSelectInput{
		Request:            req,
		MaxInterStopMeters: p.opts.MaxInterStopMeters,
		EvidencePerSpot:    p.opts.EvidencePerSpot,
	})
	if err != nil {
		return nil, fmt.Errorf("stop selection: %w", err)
	}
	if len(sel.Spots) == 0 {
		return nil, fmt.Errorf("stop selection: %w", ErrEmptyOutput)
	}
	st.Spots = sel.Spots
	total := len(sel.Spots)
	rep.Update(quest.StepSpotSelection, 15, fmt.Sprintf("%d件のスポットを選びました", total))

	// Step 2: motifs and plot.
	st.Step = quest.StepMotifAndPlot
	motifs := steps.SelectMotifs(ctx, p.deps, sel.Spots, req.QuestTheme())
	note("motif", motifs.Fallback)
	st.Motifs = motifs.Value
	rep.Update(quest.StepMotifAndPlot, 20, "物語の役割を決めました")

	plot := steps.CreateMainPlot(ctx, p.deps, steps.PlotInput{
		Spots:      sel.Spots,
		Motifs:     motifs.Value,
		QuestTheme: req.QuestTheme(),
		Context:    req.PromptSupport.Lines(),
	})
	note("plot", plot.Fallback)
	st.Plot = &plot.Value
	rep.Plot(plot.Value)
	rep.Update(quest.StepMotifAndPlot, 30, "メインプロットを作成しました")

	// Step 3: puzzles.
	st.Step = quest.StepPuzzles
	scenes, puzzleFallbacks, err := p.generatePuzzles(ctx, sel.Spots, motifs.Value, plot.Value, req.Difficulty, rep)
	if err != nil {
		return nil, err
	}
	fallbacks = append(fallbacks, puzzleFallbacks...)
	st.Scenes = scenes

	meta := steps.GenerateMetaPuzzle(ctx, p.deps, scenes, plot.Value)
	note("meta_puzzle", meta.Fallback)
	rep.Update(quest.StepPuzzles, 85, "最後の謎を作成しました")

	// Step 4: validation and one regeneration pass.
	st.Step = quest.StepValidation
	vopts := validate.Options{StrictPlotKeyUsage: p.opts.StrictPlotKeyUsage}
	result := validate.ValidateQuest(scenes, plot.Value, meta.Value, vopts)
	rep.Update(quest.StepValidation, 90, "品質をチェックしています")

	var regenerated []string
	if targets := RegenerationTargets(result, p.opts.MaxRegenerationTargets); len(targets) > 0 {
		rep.Update(quest.StepValidation, 92, fmt.Sprintf("%d件の謎を作り直しています", len(targets)))
		regen, keysChanged, fbs := p.regenerate(ctx, scenes, sel.Spots, motifs.Value, plot.Value, req.Difficulty, result, targets)
		scenes = regen
		st.Scenes = scenes
		fallbacks = append(fallbacks, fbs...)
		regenerated = targets
		if keysChanged {
			meta = steps.GenerateMetaPuzzle(ctx, p.deps, scenes, plot.Value)
			note("meta_puzzle", meta.Fallback)
		}
		result = validate.ValidateQuest(scenes, plot.Value, meta.Value, vopts)
		observability.Current().IncRegenerated(passLabel(result.Passed))
	} else if n := len(validate.GetRegenerationTargets(result)); n > p.opts.MaxRegenerationTargets {
		p.log.Warn("too many failing stops; skipping regeneration", "targets", n, "max", p.opts.MaxRegenerationTargets)
	}
	observability.Current().IncValidation(result.Passed)

	title := steps.GenerateTitle(ctx, p.deps, req, plot.Value, scenes)
	note("title", title.Fallback)

	q := Assemble(AssembleInput{
		QuestID:     p.opts.NewID(),
		Title:       title.Value,
		Plot:        plot.Value,
		Scenes:      scenes,
		Meta:        meta.Value,
		Validation:  result,
		Regenerated: regenerated,
		Fallbacks:   fallbacks,
		Now:         p.opts.Now(),
	})
	rep.Update(quest.StepValidation, 100, "クエストが完成しました")
	p.log.Info("quest generated",
		"quest_id", q.QuestID,
		"spots", len(q.Spots),
		"validation_passed", result.Passed,
		"regenerated", len(regenerated),
		"fallbacks", len(fallbacks),
	)
	return &q, nil
}

func (p *Pipeline) generatePuzzles(ctx context.Context, spots []quest.SpotInput, motifs []quest.SpotMotif, plot quest.MainPlot, difficulty quest.Difficulty, rep *Reporter) ([]quest.SpotScene, []string, error) {
	total := len(spots)
	scenes := make([]quest.SpotScene, total)
	fell := make([]bool, total)

	var mu sync.Mutex
	done := 0
	run := func(i int) {
		out := steps.GenerateSpotPuzzle(ctx, p.deps, steps.SpotPuzzleInput{
			Spot:       spots[i],
			Motif:      motifs[i],
			Plot:       plot,
			AllMotifs:  motifs,
			SpotIndex:  i,
			Difficulty: difficulty,
		})
		scenes[i], fell[i] = out.Value, out.Fallback
		mu.Lock()
		done++
		n := done
		mu.Unlock()
		rep.Spot(out.Value, i, total)
		rep.UpdateRange(quest.StepPuzzles, n, total, 30, 80, fmt.Sprintf("%sの謎を作成しました", steps.SpotLabel(spots[i])))
	}

	if p.opts.ParallelPuzzles && total > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for i := range spots {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				run(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	} else {
		for i := range spots {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			run(i)
		}
	}

	var fallbacks []string
	for i, f := range fell {
		if f {
			fallbacks = append(fallbacks, "puzzle:"+spots[i].ID)
		}
	}
	return scenes, fallbacks, nil
}

// RegenerationTargets returns the stops to regenerate, or nil when there
// are none or more than max.
func RegenerationTargets(res quest.ValidationResult, max int) []string {
	targets := validate.GetRegenerationTargets(res)
	if len(targets) == 0 || len(targets) > max {
		return nil
	}
	return targets
}

// regenerate replaces each target scene exactly once, feeding back the
// validator's findings. The replacement is kept whether or not it passes.
func (p *Pipeline) regenerate(ctx context.Context, scenes []quest.SpotScene, spots []quest.SpotInput, motifs []quest.SpotMotif, plot quest.MainPlot, difficulty quest.Difficulty, res quest.ValidationResult, targets []string) ([]quest.SpotScene, bool, []string) {
	out := append([]quest.SpotScene(nil), scenes...)
	index := make(map[string]int, len(spots))
	for i, s := range spots {
		index[s.ID] = i
	}
	keysChanged := false
	var fallbacks []string
	for _, id := range targets {
		i, ok := index[id]
		if !ok {
			continue
		}
		regen := steps.GenerateSpotPuzzle(ctx, p.deps, steps.SpotPuzzleInput{
			Spot:           spots[i],
			Motif:          motifs[i],
			Plot:           plot,
			AllMotifs:      motifs,
			SpotIndex:      i,
			Difficulty:     difficulty,
			PreviousIssues: validate.IssuesFor(res, id),
		})
		if regen.Fallback {
			fallbacks = append(fallbacks, "regenerate:"+id)
		}
		if regen.Value.Reward.PlotKey != out[i].Reward.PlotKey {
			keysChanged = true
		}
		out[i] = regen.Value
		p.log.Info("stop regenerated", "spot_id", id, "fallback", regen.Fallback)
	}
	return out, keysChanged, fallbacks
}

func passLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
