package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/questweaver/internal/data/repos"
	"github.com/yungbote/questweaver/internal/data/repos/testutil"
	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/domain/runs"
	"github.com/yungbote/questweaver/internal/modules/quest/backend"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/realtime"
)

type fakeGenerator struct {
	gate  chan struct{}
	err   error
	calls int
	mu    sync.Mutex
}

func (g *fakeGenerator) Generate(ctx context.Context, req quest.QuestGenerationRequest, mode backend.Mode, cb pipeline.Callbacks) (*quest.QuestDualOutput, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if cb.OnProgress != nil {
		cb.OnProgress(quest.ProgressEvent{Step: quest.StepSpotSelection, Progress: 10})
		cb.OnProgress(quest.ProgressEvent{Step: quest.StepPuzzles, Progress: 50})
	}
	if g.err != nil {
		return nil, g.err
	}
	q := quest.QuestOutput{
		QuestID: "quest-42",
		Title:   "丸の内の秘密",
		Spots:   []quest.SpotScene{{SpotID: "S1", SpotName: "東京駅"}},
		Metadata: quest.Metadata{
			ValidationPassed: true,
			Warnings:         []string{},
		},
	}
	if cb.OnSpotComplete != nil {
		cb.OnSpotComplete(q.Spots[0], 0, 1)
	}
	out := quest.NewDualOutput(q, string(req.Difficulty), quest.BackendDirect)
	return &out, nil
}

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (e *recordingEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

func (e *recordingEmitter) events() []realtime.SSEEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]realtime.SSEEvent, 0, len(e.msgs))
	for _, m := range e.msgs {
		out = append(out, m.Event)
	}
	return out
}

type fakeArchive struct {
	err  error
	puts map[string][]byte
}

func (a *fakeArchive) Put(ctx context.Context, questID string, body []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.puts == nil {
		a.puts = map[string][]byte{}
	}
	a.puts[questID] = body
	return "https://archive.test/" + questID + ".json", nil
}

func (a *fakeArchive) Get(ctx context.Context, questID string) ([]byte, error) {
	return a.puts[questID], nil
}

func (a *fakeArchive) Close() error { return nil }

func validRequest() quest.QuestGenerationRequest {
	return quest.QuestGenerationRequest{Prompt: "丸の内の謎", Difficulty: quest.DifficultyNormal, SpotCount: 1}
}

func newService(t *testing.T, gen Generator, arch *fakeArchive, cfg QuestServiceConfig) (*questService, *recordingEmitter) {
	t.Helper()
	db := testutil.DB(t)
	em := &recordingEmitter{}
	svc := NewQuestService(testutil.Logger(t), gen, repos.New(db, testutil.Logger(t)).QuestRuns, NewQuestNotifier(em), nil, cfg).(*questService)
	if arch != nil {
		svc.archive = arch
	}
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc, em
}

func TestQuestServiceGenerateStoresOutput(t *testing.T) {
	arch := &fakeArchive{}
	svc, em := newService(t, &fakeGenerator{}, arch, QuestServiceConfig{})
	ctx := context.Background()

	run, out, err := svc.Generate(ctx, "user-1", validRequest(), backend.ModeDirect)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.QuestID != "quest-42" || run.Status != runs.StatusSucceeded {
		t.Fatalf("unexpected result: run=%#v out=%#v", run, out)
	}

	stored, err := svc.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Status != runs.StatusSucceeded || stored.Progress != 100 || stored.QuestID != "quest-42" || stored.Mode != "direct" {
		t.Fatalf("unexpected stored run: %#v", stored)
	}
	if stored.ArchiveURL != "https://archive.test/quest-42.json" || len(arch.puts["quest-42"]) == 0 {
		t.Fatalf("quest was not archived: %q", stored.ArchiveURL)
	}

	q, err := svc.GetQuest(ctx, "quest-42")
	if err != nil {
		t.Fatalf("GetQuest: %v", err)
	}
	if q.Preview.Title != "丸の内の秘密" || len(q.Payload.Spots) != 1 {
		t.Fatalf("unexpected stored quest: %#v", q)
	}

	events := em.events()
	if len(events) < 3 || events[0] != realtime.SSEEventQuestRunCreated || events[len(events)-1] != realtime.SSEEventQuestRunDone {
		t.Fatalf("unexpected event sequence: %v", events)
	}
	for _, m := range em.msgs {
		if m.Channel != realtime.RunChannel(run.ID) {
			t.Fatalf("event on wrong channel: %s", m.Channel)
		}
	}
}

func TestQuestServiceGenerateFailure(t *testing.T) {
	boom := errors.New("stop selection: no candidates")
	svc, em := newService(t, &fakeGenerator{err: boom}, nil, QuestServiceConfig{})
	run, _, err := svc.Generate(context.Background(), "", validRequest(), "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected generator error, got %v", err)
	}
	stored, err := svc.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Status != runs.StatusFailed || stored.Error != boom.Error() || stored.FinishedAt == nil || stored.Mode != "auto" {
		t.Fatalf("unexpected failed run: %#v", stored)
	}
	events := em.events()
	if events[len(events)-1] != realtime.SSEEventQuestRunFailed {
		t.Fatalf("expected failure event last, got %v", events)
	}
}

func TestQuestServiceArchiveFailureKeepsRun(t *testing.T) {
	svc, _ := newService(t, &fakeGenerator{}, &fakeArchive{err: errors.New("bucket gone")}, QuestServiceConfig{})
	run, _, err := svc.Generate(context.Background(), "", validRequest(), backend.ModeDirect)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stored, _ := svc.GetRun(context.Background(), run.ID)
	if stored.Status != runs.StatusSucceeded || stored.ArchiveURL != "" {
		t.Fatalf("unexpected run: %#v", stored)
	}
}

func TestQuestServiceRejectsInvalidRequest(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newService(t, gen, nil, QuestServiceConfig{})
	if _, err := svc.StartRun(context.Background(), "", quest.QuestGenerationRequest{}, ""); !errors.Is(err, quest.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, _, err := svc.Generate(context.Background(), "", quest.QuestGenerationRequest{Prompt: "x"}, ""); !errors.Is(err, quest.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator should not run for invalid requests")
	}
	runsList, err := svc.ListRuns(context.Background(), "", 10)
	if err != nil || len(runsList) != 0 {
		t.Fatalf("no runs should be stored: %d %v", len(runsList), err)
	}
}

func TestQuestServiceStartRunAsync(t *testing.T) {
	gen := &fakeGenerator{gate: make(chan struct{})}
	svc, _ := newService(t, gen, nil, QuestServiceConfig{MaxConcurrentRuns: 1})
	ctx := context.Background()

	run, err := svc.StartRun(ctx, "user-2", validRequest(), backend.ModeDirect)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.Status != runs.StatusQueued {
		t.Fatalf("snapshot should be queued, got %s", run.Status)
	}
	if _, err := svc.StartRun(ctx, "user-2", validRequest(), backend.ModeDirect); !errors.Is(err, ErrTooManyRuns) {
		t.Fatalf("expected ErrTooManyRuns, got %v", err)
	}
	if _, _, err := svc.Generate(ctx, "user-2", validRequest(), backend.ModeDirect); !errors.Is(err, ErrTooManyRuns) {
		t.Fatalf("sync Generate should share the run cap, got %v", err)
	}

	close(gen.gate)
	svc.wg.Wait()

	stored, err := svc.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Status != runs.StatusSucceeded || stored.QuestID != "quest-42" {
		t.Fatalf("unexpected run after completion: %#v", stored)
	}
	list, err := svc.ListRuns(ctx, "user-2", 5)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListRuns: %d %v", len(list), err)
	}
}

func TestQuestServiceShutdownCancelsRuns(t *testing.T) {
	gen := &fakeGenerator{gate: make(chan struct{})}
	svc, _ := newService(t, gen, nil, QuestServiceConfig{})
	run, err := svc.StartRun(context.Background(), "", validRequest(), "")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	stored, _ := svc.GetRun(context.Background(), run.ID)
	if stored.Status != runs.StatusFailed {
		t.Fatalf("cancelled run should be failed, got %s", stored.Status)
	}
}

func TestQuestServiceRecoverStale(t *testing.T) {
	svc, _ := newService(t, &fakeGenerator{}, nil, QuestServiceConfig{})
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	run, err := svc.createRun(context.Background(), "", validRequest(), backend.ModeDirect)
	if err != nil {
		t.Fatalf("createRun: %v", err)
	}
	n, err := svc.RecoverStale(context.Background(), time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("RecoverStale: %d %v", n, err)
	}
	stored, _ := svc.GetRun(context.Background(), run.ID)
	if stored.Status != runs.StatusFailed {
		t.Fatalf("stale run should be failed, got %s", stored.Status)
	}
}
