package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/questweaver/internal/data/repos/quests"
	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/domain/runs"
	httpH "github.com/yungbote/questweaver/internal/http/handlers"
	httpMW "github.com/yungbote/questweaver/internal/http/middleware"
	"github.com/yungbote/questweaver/internal/modules/quest/backend"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/realtime"
	"github.com/yungbote/questweaver/internal/services"
)

type fakeService struct {
	err      error
	subject  string
	mode     backend.Mode
	runs     map[string]*runs.QuestRun
	quests   map[string]*quest.QuestDualOutput
	lastReq  quest.QuestGenerationRequest
	listSize int
}

func (f *fakeService) Generate(ctx context.Context, subject string, req quest.QuestGenerationRequest, mode backend.Mode) (*runs.QuestRun, *quest.QuestDualOutput, error) {
	f.subject, f.mode, f.lastReq = subject, mode, req
	run := &runs.QuestRun{ID: "run-1", Status: runs.StatusSucceeded}
	if f.err != nil {
		return run, nil, f.err
	}
	out := quest.NewDualOutput(quest.QuestOutput{QuestID: "quest-1", Title: "赤レンガに眠る地図"}, string(req.Difficulty), quest.BackendDirect)
	return run, &out, nil
}

func (f *fakeService) StartRun(ctx context.Context, subject string, req quest.QuestGenerationRequest, mode backend.Mode) (*runs.QuestRun, error) {
	f.subject, f.mode, f.lastReq = subject, mode, req
	if f.err != nil {
		return nil, f.err
	}
	return &runs.QuestRun{ID: "run-2", Status: runs.StatusQueued, Stage: "queued", Mode: string(mode)}, nil
}

func (f *fakeService) GetRun(ctx context.Context, id string) (*runs.QuestRun, error) {
	if r, ok := f.runs[id]; ok {
		return r, nil
	}
	return nil, quests.ErrNotFound
}

func (f *fakeService) ListRuns(ctx context.Context, subject string, limit int) ([]*runs.QuestRun, error) {
	f.subject, f.listSize = subject, limit
	out := make([]*runs.QuestRun, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeService) GetQuest(ctx context.Context, questID string) (*quest.QuestDualOutput, error) {
	if q, ok := f.quests[questID]; ok {
		return q, nil
	}
	return nil, quests.ErrNotFound
}

func (f *fakeService) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeService) Shutdown(ctx context.Context) error { return nil }

var _ services.QuestService = (*fakeService)(nil)

const testSecret = "test-secret"

func newTestRouter(svc *fakeService, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	hub := realtime.NewSSEHub(log)
	return NewRouter(RouterConfig{
		Log:             log,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, secret, false),
		HealthHandler:   httpH.NewHealthHandler(map[string]httpH.Pinger{"db": func(ctx context.Context) error { return nil }}),
		QuestHandler:    httpH.NewQuestHandler(log, svc),
		QuestRunHandler: httpH.NewQuestRunHandler(log, svc),
		RealtimeHandler: httpH.NewRealtimeHandler(log, hub, svc),
	})
}

func do(t *testing.T, r *gin.Engine, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"role":  "authenticated",
		"email": "walker@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

const generateBody = `{"prompt":"丸の内の謎解き散歩","difficulty":"normal","spot_count":3}`

func TestGenerateReturnsQuest(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc, "")
	rec := do(t, r, stdhttp.MethodPost, "/api/quests/generate?mode=direct", generateBody, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var out quest.QuestDualOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.QuestID != "quest-1" || out.Preview.Difficulty != "normal" {
		t.Fatalf("unexpected output: %#v", out)
	}
	if rec.Header().Get("X-Quest-Run-Id") != "run-1" {
		t.Fatalf("missing run id header")
	}
	if svc.mode != backend.ModeDirect || svc.lastReq.SpotCount != 3 || svc.subject != "" {
		t.Fatalf("unexpected service call: mode=%s req=%#v subject=%q", svc.mode, svc.lastReq, svc.subject)
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: prompt required", quest.ErrInvalidRequest), stdhttp.StatusBadRequest, "invalid_request"},
		{services.ErrTooManyRuns, stdhttp.StatusTooManyRequests, "too_many_runs"},
		{fmt.Errorf("direct backend: %w", pipeline.ErrMissingCredential), stdhttp.StatusServiceUnavailable, "backend_unavailable"},
		{fmt.Errorf("puzzles: %w", context.DeadlineExceeded), stdhttp.StatusGatewayTimeout, "timeout"},
		{errors.New("boom"), stdhttp.StatusInternalServerError, "generation_failed"},
	}
	for _, tc := range cases {
		r := newTestRouter(&fakeService{err: tc.err}, "")
		rec := do(t, r, stdhttp.MethodPost, "/api/quests/generate", generateBody, nil)
		if rec.Code != tc.status || errorCode(t, rec) != tc.code {
			t.Fatalf("%v: got %d %s", tc.err, rec.Code, rec.Body.String())
		}
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	r := newTestRouter(&fakeService{}, "")
	rec := do(t, r, stdhttp.MethodPost, "/api/quests/generate", `{"prompt":`, nil)
	if rec.Code != stdhttp.StatusBadRequest || errorCode(t, rec) != "invalid_json" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, r, stdhttp.MethodPost, "/api/quests/generate", `{"prompt":"x","difficulty":"easy","spot_count":3,"mode":"carrier-pigeon"}`, nil)
	if rec.Code != stdhttp.StatusBadRequest || errorCode(t, rec) != "invalid_mode" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestQuestRunsEndpoints(t *testing.T) {
	svc := &fakeService{runs: map[string]*runs.QuestRun{
		"run-9": {ID: "run-9", Status: runs.StatusRunning, Stage: "puzzle_generation", Progress: 55},
	}}
	r := newTestRouter(svc, "")

	rec := do(t, r, stdhttp.MethodPost, "/api/quest-runs", `{"prompt":"x","difficulty":"hard","spot_count":4,"mode":"temporal"}`, nil)
	if rec.Code != stdhttp.StatusAccepted {
		t.Fatalf("start status %d: %s", rec.Code, rec.Body.String())
	}
	var started struct {
		Run struct {
			ID      string `json:"id"`
			Status  string `json:"status"`
			Channel string `json:"channel"`
			Mode    string `json:"mode"`
		} `json:"run"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.Run.ID != "run-2" || started.Run.Status != "queued" || started.Run.Channel != "quest_run:run-2" || started.Run.Mode != "temporal" {
		t.Fatalf("unexpected run: %#v", started.Run)
	}

	rec = do(t, r, stdhttp.MethodGet, "/api/quest-runs/run-9", "", nil)
	if rec.Code != stdhttp.StatusOK || !strings.Contains(rec.Body.String(), `"progress":55`) {
		t.Fatalf("get run: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, stdhttp.MethodGet, "/api/quest-runs/missing", "", nil)
	if rec.Code != stdhttp.StatusNotFound || errorCode(t, rec) != "not_found" {
		t.Fatalf("missing run: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, stdhttp.MethodGet, "/api/quest-runs?limit=7", "", nil)
	if rec.Code != stdhttp.StatusOK || svc.listSize != 7 || !strings.Contains(rec.Body.String(), "run-9") {
		t.Fatalf("list runs: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetQuest(t *testing.T) {
	out := quest.NewDualOutput(quest.QuestOutput{QuestID: "q-7", Title: "行幸通りの暗号"}, "easy", quest.BackendWorkflow)
	r := newTestRouter(&fakeService{quests: map[string]*quest.QuestDualOutput{"q-7": &out}}, "")
	rec := do(t, r, stdhttp.MethodGet, "/api/quests/q-7", "", nil)
	if rec.Code != stdhttp.StatusOK || !strings.Contains(rec.Body.String(), "行幸通りの暗号") {
		t.Fatalf("get quest: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, r, stdhttp.MethodGet, "/api/quests/q-8", "", nil)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAuthAttachesSubject(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc, testSecret)

	rec := do(t, r, stdhttp.MethodPost, "/api/quests/generate", generateBody, map[string]string{
		"Authorization": "Bearer " + signToken(t, "user-123"),
	})
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if svc.subject != "user-123" {
		t.Fatalf("subject not attached: %q", svc.subject)
	}

	rec = do(t, r, stdhttp.MethodPost, "/api/quests/generate", generateBody, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}

	svc.subject = "unchanged"
	rec = do(t, r, stdhttp.MethodPost, "/api/quests/generate", generateBody, nil)
	if rec.Code != stdhttp.StatusOK || svc.subject != "" {
		t.Fatalf("anonymous request: %d subject=%q", rec.Code, svc.subject)
	}
}

func TestAuthRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpMW.NewAuthMiddleware(nil, testSecret, true).Authenticate())
	r.GET("/x", func(c *gin.Context) { c.Status(stdhttp.StatusNoContent) })
	if rec := do(t, r, stdhttp.MethodGet, "/x", "", nil); rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := do(t, r, stdhttp.MethodGet, "/x?token="+signToken(t, "u"), "", nil); rec.Code != stdhttp.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestSSEStreamRejectsUnknownChannels(t *testing.T) {
	r := newTestRouter(&fakeService{}, "")
	rec := do(t, r, stdhttp.MethodGet, "/api/sse/stream?channel=user:1", "", nil)
	if rec.Code != stdhttp.StatusBadRequest || errorCode(t, rec) != "invalid_channel" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, r, stdhttp.MethodGet, "/api/sse/stream?run_id=nope", "", nil)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterConfig{
		HealthHandler: httpH.NewHealthHandler(map[string]httpH.Pinger{
			"db":    func(ctx context.Context) error { return nil },
			"redis": func(ctx context.Context) error { return errors.New("connection refused") },
		}),
	})
	if rec := do(t, r, stdhttp.MethodGet, "/healthcheck", "", nil); rec.Code != stdhttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", rec.Code, rec.Body.String())
	}
	rec := do(t, r, stdhttp.MethodGet, "/readyz", "", nil)
	if rec.Code != stdhttp.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("readyz: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}
