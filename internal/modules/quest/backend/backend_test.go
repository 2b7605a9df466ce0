package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/modules/quest/questtest"
	"github.com/yungbote/questweaver/internal/modules/quest/steps"
	"github.com/yungbote/questweaver/internal/temporalx/questflow"
)

func request() quest.QuestGenerationRequest {
	return quest.QuestGenerationRequest{Prompt: "丸の内の謎解き散歩", Difficulty: quest.DifficultyEasy, SpotCount: 3}
}

func remoteQuest(id string) quest.QuestDualOutput {
	q := quest.QuestOutput{
		QuestID:  id,
		Title:    "遠隔の地図",
		MainPlot: quest.MainPlot{Goal: "印を集める"},
		Spots: []quest.SpotScene{
			{SpotID: "S1", SpotName: "東京駅"},
			{SpotID: "S2", SpotName: "行幸通り"},
		},
	}
	return quest.NewDualOutput(q, "easy", quest.BackendWorkflow)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func directPipeline() *pipeline.Pipeline {
	llm := questtest.ScriptWalk(questtest.NewLLM())
	return pipeline.New(steps.Deps{LLM: llm}, pipeline.Options{
		Now:   func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
		NewID: func() string { return "quest-direct" },
	})
}

type fakeRemote struct {
	configured bool
	calls      int
	out        *quest.QuestDualOutput
	err        error
}

func (f *fakeRemote) Configured() bool { return f.configured }

func (f *fakeRemote) Run(ctx context.Context, req quest.QuestGenerationRequest, rep *pipeline.Reporter) (*quest.QuestDualOutput, error) {
	f.calls++
	return f.out, f.err
}

func TestStreamSSE(t *testing.T) {
	in := ": keepalive\n" +
		"event: node_started\ndata: {\"a\":1}\n\n" +
		"data: line1\ndata: line2\n\n" +
		"event: workflow_finished\ndata: {\"done\":true}"
	var got []string
	err := streamSSE(strings.NewReader(in), func(event, data string) error {
		got = append(got, event+"|"+data)
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	want := []string{"node_started|{\"a\":1}", "|line1\nline2", "workflow_finished|{\"done\":true}"}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStreamSSEStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := streamSSE(strings.NewReader("data: 1\n\ndata: 2\n\n"), func(string, string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestParseWorkflowOutput(t *testing.T) {
	raw := mustJSON(t, remoteQuest("q-1"))
	out, err := ParseWorkflowOutput(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("ParseWorkflowOutput: %v", err)
	}
	if out.QuestID != "q-1" || out.Preview.Title != "遠隔の地図" || len(out.Payload.Spots) != 2 {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestParseWorkflowOutputFillsDerivedFields(t *testing.T) {
	raw := `{"preview":{"title":"題"},"payload":{"quest_id":"q-9","spots":[{"spot_id":"S1","spot_name":"広場"}]}}`
	out, err := ParseWorkflowOutput(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("ParseWorkflowOutput: %v", err)
	}
	if out.QuestID != "q-9" || out.Payload.Title != "題" || strings.Join(out.Preview.SpotNames, ",") != "広場" {
		t.Fatalf("derived fields not filled: %#v", out)
	}
}

func TestParseWorkflowOutputUnwrapsTextResult(t *testing.T) {
	inner := mustJSON(t, remoteQuest("q-2"))
	raw := mustJSON(t, map[string]string{"result": "```json\n" + inner + "\n```"})
	out, err := ParseWorkflowOutput(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("ParseWorkflowOutput: %v", err)
	}
	if out.QuestID != "q-2" {
		t.Fatalf("quest id = %q", out.QuestID)
	}
}

func TestParseWorkflowOutputRejectsBadShape(t *testing.T) {
	cases := map[string]string{
		"no preview": `{"payload":{"title":"t","spots":[{"spot_id":"S1"}]}}`,
		"no payload": `{"preview":{"title":"t"}}`,
		"no spots":   `{"preview":{"title":"t"},"payload":{"spots":[]}}`,
		"no title":   `{"preview":{},"payload":{"spots":[{"spot_id":"S1"}]}}`,
		"not object": `[1,2]`,
	}
	for name, raw := range cases {
		if _, err := ParseWorkflowOutput(json.RawMessage(raw)); !errors.Is(err, pipeline.ErrSchemaValidation) {
			t.Fatalf("%s: expected ErrSchemaValidation, got %v", name, err)
		}
	}
}

func TestWorkflowClientBlocking(t *testing.T) {
	outputs := mustJSON(t, remoteQuest("q-block"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workflows/run" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		var body workflowRunRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.ResponseMode != "blocking" || body.Inputs["prompt"] != "丸の内の謎解き散歩" {
			t.Errorf("unexpected body: %#v", body)
		}
		fmt.Fprintf(w, `{"workflow_run_id":"r1","data":{"status":"succeeded","outputs":%s}}`, outputs)
	}))
	defer srv.Close()

	c := NewWorkflowClient(nil, WorkflowConfig{BaseURL: srv.URL + "/", APIKey: "secret", Streaming: false})
	out, err := c.Run(context.Background(), request(), pipeline.NewReporter(context.Background(), pipeline.Callbacks{}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.QuestID != "q-block" {
		t.Fatalf("quest id = %q", out.QuestID)
	}
}

func TestWorkflowClientBlockingFailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"status":"failed","error":"node crashed"}}`)
	}))
	defer srv.Close()

	c := NewWorkflowClient(nil, WorkflowConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Run(context.Background(), request(), pipeline.NewReporter(context.Background(), pipeline.Callbacks{}))
	if !errors.Is(err, ErrWorkflowFailed) {
		t.Fatalf("expected ErrWorkflowFailed, got %v", err)
	}
}

func TestWorkflowClientStreaming(t *testing.T) {
	outputs := mustJSON(t, remoteQuest("q-stream"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: workflow_started\ndata: {\"workflow_run_id\":\"r1\"}\n\n")
		fmt.Fprint(w, "data: {\"event\":\"node_started\",\"data\":{\"node_id\":\"plot\",\"title\":\"plot builder\"}}\n\n")
		fmt.Fprint(w, "data: {\"event\":\"node_finished\",\"data\":{\"node_id\":\"puzzle\",\"title\":\"puzzle loop\"}}\n\n")
		fmt.Fprint(w, "data: {\"event\":\"node_started\",\"data\":{\"node_id\":\"spot\",\"title\":\"late spot node\"}}\n\n")
		fmt.Fprintf(w, "data: {\"event\":\"workflow_finished\",\"data\":{\"status\":\"succeeded\",\"outputs\":%s}}\n\n", outputs)
	}))
	defer srv.Close()

	var pcts []int
	rep := pipeline.NewReporter(context.Background(), pipeline.Callbacks{
		OnProgress: func(e quest.ProgressEvent) { pcts = append(pcts, e.Progress) },
	})
	c := NewWorkflowClient(nil, WorkflowConfig{BaseURL: srv.URL, APIKey: "k", Streaming: true})
	out, err := c.Run(context.Background(), request(), rep)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.QuestID != "q-stream" {
		t.Fatalf("quest id = %q", out.QuestID)
	}
	want := []int{1, 20, 80, 80}
	if len(pcts) != len(want) {
		t.Fatalf("progress = %v", pcts)
	}
	for i := range want {
		if pcts[i] != want[i] {
			t.Fatalf("progress = %v, want %v", pcts, want)
		}
	}
}

func TestWorkflowClientStreamingWithoutOutputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: workflow_started\ndata: {}\n\n")
	}))
	defer srv.Close()

	c := NewWorkflowClient(nil, WorkflowConfig{BaseURL: srv.URL, APIKey: "k", Streaming: true})
	_, err := c.Run(context.Background(), request(), pipeline.NewReporter(context.Background(), pipeline.Callbacks{}))
	if !errors.Is(err, ErrWorkflowIncomplete) {
		t.Fatalf("expected ErrWorkflowIncomplete, got %v", err)
	}
}

func TestWorkflowClientConfigured(t *testing.T) {
	if NewWorkflowClient(nil, WorkflowConfig{BaseURL: "http://x"}).Configured() {
		t.Fatalf("client without key should not be configured")
	}
	if !NewWorkflowClient(nil, WorkflowConfig{BaseURL: "http://x", APIKey: "k"}).Configured() {
		t.Fatalf("client with url and key should be configured")
	}
}

func TestSelectorFallsBackToDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	wf := NewWorkflowClient(nil, WorkflowConfig{BaseURL: srv.URL, APIKey: "k"})
	sel := NewSelector(nil, directPipeline(), WithWorkflow(wf))
	var last int
	out, err := sel.Generate(context.Background(), request(), ModeAuto, pipeline.Callbacks{
		OnProgress: func(e quest.ProgressEvent) { last = e.Progress },
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.FellBack || out.Backend != quest.BackendDirect {
		t.Fatalf("expected direct fallback, got backend=%s fellBack=%v", out.Backend, out.FellBack)
	}
	if out.QuestID != "quest-direct" || len(out.Payload.Spots) != 3 || last != 100 {
		t.Fatalf("unexpected direct output: id=%q spots=%d last=%d", out.QuestID, len(out.Payload.Spots), last)
	}
}

func TestSelectorRemoteSuccess(t *testing.T) {
	q := remoteQuest("q-remote")
	tmp := &fakeRemote{configured: true, out: &q}
	sel := NewSelector(nil, directPipeline(), WithTemporal(tmp))
	out, err := sel.Generate(context.Background(), request(), ModeAuto, pipeline.Callbacks{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Backend != quest.BackendTemporal || out.FellBack || tmp.calls != 1 {
		t.Fatalf("unexpected: backend=%s fellBack=%v calls=%d", out.Backend, out.FellBack, tmp.calls)
	}
}

func TestSelectorExplicitDirectSkipsRemote(t *testing.T) {
	wf := &fakeRemote{configured: true}
	sel := NewSelector(nil, directPipeline(), WithWorkflow(wf))
	out, err := sel.Generate(context.Background(), request(), ModeDirect, pipeline.Callbacks{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if wf.calls != 0 || out.Backend != quest.BackendDirect || out.FellBack {
		t.Fatalf("remote called=%d backend=%s fellBack=%v", wf.calls, out.Backend, out.FellBack)
	}
}

func TestSelectorUnconfiguredExplicitModeFallsBack(t *testing.T) {
	sel := NewSelector(nil, directPipeline())
	out, err := sel.Generate(context.Background(), request(), ModeTemporal, pipeline.Callbacks{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.FellBack || out.Backend != quest.BackendDirect {
		t.Fatalf("expected fallback, got %s %v", out.Backend, out.FellBack)
	}
}

func TestSelectorRejectsInvalidRequest(t *testing.T) {
	wf := &fakeRemote{configured: true}
	sel := NewSelector(nil, directPipeline(), WithWorkflow(wf))
	called := false
	_, err := sel.Generate(context.Background(), quest.QuestGenerationRequest{}, ModeAuto, pipeline.Callbacks{
		OnError: func(error, pipeline.State) { called = true },
	})
	if !errors.Is(err, quest.ErrInvalidRequest) || !called || wf.calls != 0 {
		t.Fatalf("err=%v onError=%v calls=%d", err, called, wf.calls)
	}
}

func TestSelectorMissingDirectReportsError(t *testing.T) {
	cases := []struct {
		name string
		mode Mode
		opts []Option
	}{
		{"direct", ModeDirect, nil},
		{"after remote failure", ModeAuto, []Option{WithWorkflow(&fakeRemote{configured: true, err: errors.New("down")})}},
	}
	for _, tc := range cases {
		var got error
		sel := NewSelector(nil, nil, tc.opts...)
		_, err := sel.Generate(context.Background(), request(), tc.mode, pipeline.Callbacks{
			OnError: func(err error, _ pipeline.State) { got = err },
		})
		if !errors.Is(err, pipeline.ErrMissingCredential) {
			t.Fatalf("%s: err=%v", tc.name, err)
		}
		if !errors.Is(got, pipeline.ErrMissingCredential) {
			t.Fatalf("%s: onError got %v", tc.name, got)
		}
	}
}

func TestSelectorCancelledAfterRemoteFailureReportsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wf := &fakeRemote{configured: true, err: errors.New("down")}
	var got error
	sel := NewSelector(nil, directPipeline(), WithWorkflow(wf))
	_, err := sel.Generate(ctx, request(), ModeAuto, pipeline.Callbacks{
		OnError: func(err error, _ pipeline.State) { got = err },
	})
	if !errors.Is(err, context.Canceled) || !errors.Is(got, context.Canceled) {
		t.Fatalf("err=%v onError=%v", err, got)
	}
}

func TestSnapshotRelayReportsPlotAndScenesOnce(t *testing.T) {
	var plots int
	var spots []int
	var last int
	rep := pipeline.NewReporter(context.Background(), pipeline.Callbacks{
		OnProgress:     func(e quest.ProgressEvent) { last = e.Progress },
		OnPlotComplete: func(quest.MainPlot) { plots++ },
		OnSpotComplete: func(_ quest.SpotScene, i, _ int) { spots = append(spots, i) },
	})
	rl := &snapshotRelay{rep: rep}
	plot := quest.MainPlot{Goal: "印を集める"}
	scenes := remoteQuest("q").Payload.Spots

	rl.apply(questflow.Snapshot{Progress: quest.ProgressEvent{Step: quest.StepMotifAndPlot, Progress: 30, TotalSpots: 2}, Plot: &plot})
	rl.apply(questflow.Snapshot{Progress: quest.ProgressEvent{Step: quest.StepPuzzles, Progress: 55, SpotIndex: 1, TotalSpots: 2}, Plot: &plot, Scenes: scenes[:1]})
	rl.apply(questflow.Snapshot{Progress: quest.ProgressEvent{Step: quest.StepPuzzles, Progress: 55, SpotIndex: 1, TotalSpots: 2}, Plot: &plot, Scenes: scenes[:1]})
	rl.apply(questflow.Snapshot{Plot: &plot, Scenes: scenes})

	if plots != 1 {
		t.Fatalf("plot reported %d times", plots)
	}
	if fmt.Sprint(spots) != "[0 1]" {
		t.Fatalf("spots reported as %v", spots)
	}
	if last != 55 {
		t.Fatalf("last progress = %d", last)
	}
}

func TestResolve(t *testing.T) {
	on := &fakeRemote{configured: true}
	off := &fakeRemote{}
	cases := []struct {
		name     string
		opts     []Option
		mode     Mode
		expected quest.Backend
	}{
		{"nothing configured", nil, ModeAuto, quest.BackendDirect},
		{"workflow preferred", []Option{WithWorkflow(on), WithTemporal(on)}, ModeAuto, quest.BackendWorkflow},
		{"temporal when workflow off", []Option{WithWorkflow(off), WithTemporal(on)}, ModeAuto, quest.BackendTemporal},
		{"explicit wins", []Option{WithWorkflow(on)}, ModeDirect, quest.BackendDirect},
		{"default mode used", []Option{WithWorkflow(on), WithMode(ModeTemporal)}, "", quest.BackendTemporal},
	}
	for _, tc := range cases {
		if got := NewSelector(nil, nil, tc.opts...).Resolve(tc.mode); got != tc.expected {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.expected)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" Temporal "); err != nil || m != ModeTemporal {
		t.Fatalf("ParseMode = %v, %v", m, err)
	}
	if m, _ := ParseMode(""); m != ModeAuto {
		t.Fatalf("empty mode should be auto, got %v", m)
	}
	if _, err := ParseMode("carrier-pigeon"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
