package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/questtest"
	"github.com/yungbote/questweaver/internal/modules/quest/steps"
)

const goodPrompt = "紙に描かれた数字を矢印の向きに並べると、どんな数になるか。"

func newTestPipeline(llm *questtest.LLM, opts Options) *Pipeline {
	opts.Now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	opts.NewID = func() string { return "quest-1" }
	return New(steps.Deps{LLM: llm}, opts)
}

func request() quest.QuestGenerationRequest {
	return quest.QuestGenerationRequest{Prompt: "浅草の歴史ミステリー", Difficulty: quest.DifficultyNormal, SpotCount: 3}
}

func TestGenerateHappyPath(t *testing.T) {
	llm := questtest.ScriptWalk(questtest.NewLLM())
	events := make(chan Event, 64)
	var progress []quest.ProgressEvent
	var spotsDone, plots int
	cb := Callbacks{
		OnProgress:     func(e quest.ProgressEvent) { progress = append(progress, e) },
		OnSpotComplete: func(quest.SpotScene, int, int) { spotsDone++ },
		OnPlotComplete: func(quest.MainPlot) { plots++ },
		OnError:        func(err error, _ State) { t.Fatalf("unexpected OnError: %v", err) },
		Events:         events,
	}

	out, err := newTestPipeline(llm, Options{}).Generate(context.Background(), request(), cb)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out.Spots) != 3 {
		t.Fatalf("expected 3 spots, got %d", len(out.Spots))
	}
	if strings.Join(out.MetaPuzzle.Inputs, ",") != "S1,S2,S3" {
		t.Fatalf("meta inputs = %v", out.MetaPuzzle.Inputs)
	}
	if out.QuestID != "quest-1" || out.Title != "赤レンガに眠る地図" {
		t.Fatalf("unexpected identity: %q %q", out.QuestID, out.Title)
	}
	md := out.Metadata
	if !md.ValidationPassed || md.PipelineVersion != quest.PipelineVersion || len(md.Fallbacks) != 0 || len(md.RegeneratedSpots) != 0 {
		t.Fatalf("unexpected metadata: %#v", md)
	}
	if md.Warnings == nil {
		t.Fatalf("warnings should be an empty list, not nil")
	}
	if spotsDone != 3 || plots != 1 {
		t.Fatalf("callbacks: spots=%d plots=%d", spotsDone, plots)
	}

	last := -1
	for _, p := range progress {
		if p.Progress < last {
			t.Fatalf("progress went backwards: %#v", progress)
		}
		if p.Step < quest.StepSpotSelection || p.Step > quest.StepValidation || p.StepName == "" {
			t.Fatalf("bad step in %#v", p)
		}
		last = p.Progress
	}
	if last != 100 {
		t.Fatalf("final progress = %d", last)
	}
	if len(events) == 0 {
		t.Fatalf("expected events on the channel")
	}
}

func TestGeneratePlotFallbackContinues(t *testing.T) {
	llm := questtest.NewLLM()
	llm.On(questtest.Plot, "{premise: broken")
	questtest.ScriptWalk(llm)

	out, err := newTestPipeline(llm, Options{}).Generate(context.Background(), request(), Callbacks{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, c := range questtest.Walk {
		if !strings.Contains(out.MainPlot.Premise, c.Name) {
			t.Fatalf("fallback premise missing %s", c.Name)
		}
	}
	if len(out.Spots) != 3 || out.Metadata.Fallbacks[0] != "plot" {
		t.Fatalf("unexpected output: spots=%d fallbacks=%v", len(out.Spots), out.Metadata.Fallbacks)
	}
}

func TestGenerateRegeneratesCriticalStopOnce(t *testing.T) {
	llm := questtest.NewLLM()
	llm.OnSpot("S2",
		questtest.PuzzleReply(questtest.Walk[1].Name, "この通りは何年に建てられたでしょう？", "1926"),
		questtest.PuzzleReply(questtest.Walk[1].Name, goodPrompt, "315"),
	)
	questtest.ScriptWalk(llm)

	out, err := newTestPipeline(llm, Options{}).Generate(context.Background(), request(), Callbacks{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := llm.Calls(questtest.Puzzle + "/S2"); got != 2 {
		t.Fatalf("expected 2 puzzle calls for S2, got %d", got)
	}
	if got := llm.Calls(questtest.Puzzle + "/S1"); got != 1 {
		t.Fatalf("S1 should not be regenerated, got %d calls", got)
	}
	if strings.Join(out.Metadata.RegeneratedSpots, ",") != "S2" {
		t.Fatalf("regenerated = %v", out.Metadata.RegeneratedSpots)
	}
	if !out.Metadata.ValidationPassed || out.Spots[1].Puzzle.Answer != "315" {
		t.Fatalf("regenerated stop not used: %#v", out.Spots[1].Puzzle)
	}
	if llm.Calls(questtest.Meta) != 2 {
		t.Fatalf("changed plot key should rebuild the meta puzzle")
	}
}

func TestGenerateSkipsRegenerationAboveThreshold(t *testing.T) {
	llm := questtest.NewLLM()
	for i := 0; i < 2; i++ {
		llm.OnSpot(quest.SpotID(i), questtest.PuzzleReply(questtest.Walk[i].Name, "この場所は何で有名？", "x"))
	}
	questtest.ScriptWalk(llm)

	out, err := newTestPipeline(llm, Options{MaxRegenerationTargets: 1}).Generate(context.Background(), request(), Callbacks{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if llm.Calls(questtest.Puzzle+"/S1") != 1 || llm.Calls(questtest.Puzzle+"/S2") != 1 {
		t.Fatalf("no stop should be regenerated above the threshold")
	}
	if out.Metadata.ValidationPassed || len(out.Metadata.RegeneratedSpots) != 0 {
		t.Fatalf("unexpected metadata: %#v", out.Metadata)
	}
	found := false
	for _, w := range out.Metadata.Warnings {
		if strings.Contains(w, string(quest.ErrTriviaQuestion)) {
			found = true
		}
	}
	if !found {
		t.Fatalf("validation errors should be reported in warnings: %v", out.Metadata.Warnings)
	}
}

func TestGenerateParallelPuzzlesKeepsOrder(t *testing.T) {
	llm := questtest.ScriptWalk(questtest.NewLLM())
	out, err := newTestPipeline(llm, Options{ParallelPuzzles: true}).Generate(context.Background(), request(), Callbacks{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, s := range out.Spots {
		if s.SpotID != quest.SpotID(i) || s.SpotName != questtest.Walk[i].Name {
			t.Fatalf("spot %d out of order: %s %s", i, s.SpotID, s.SpotName)
		}
	}
}

func TestGenerateStopSelectionFailureAborts(t *testing.T) {
	llm := questtest.NewLLM().On(questtest.Stops, errors.New("quota exceeded"))
	var gotState *State
	events := make(chan Event, 16)
	_, err := newTestPipeline(llm, Options{}).Generate(context.Background(), request(), Callbacks{
		OnError: func(_ error, s State) { gotState = &s },
		Events:  events,
	})
	if !errors.Is(err, steps.ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if gotState == nil || gotState.Step != quest.StepSpotSelection {
		t.Fatalf("OnError state = %#v", gotState)
	}
	var sawError bool
	for len(events) > 0 {
		if ev := <-events; ev.Kind == EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected an error event")
	}
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	called := false
	req := request()
	req.SpotCount = 0
	_, err := newTestPipeline(questtest.NewLLM(), Options{}).Generate(context.Background(), req, Callbacks{
		OnError: func(error, State) { called = true },
	})
	if !errors.Is(err, quest.ErrInvalidRequest) || !called {
		t.Fatalf("expected invalid request error via OnError, got %v", err)
	}
}

func TestRegenerationTargetsThreshold(t *testing.T) {
	res := quest.ValidationResult{Errors: []quest.ValidationError{
		{SpotID: "S1", Code: quest.ErrTriviaQuestion},
		{SpotID: "S2", Code: quest.ErrNotSelfContained},
		{SpotID: "S3", Code: quest.ErrWeakNarrative},
	}}
	if got := RegenerationTargets(res, 3); strings.Join(got, ",") != "S1,S2" {
		t.Fatalf("targets = %v", got)
	}
	if got := RegenerationTargets(res, 1); got != nil {
		t.Fatalf("above threshold should yield nil, got %v", got)
	}
}
