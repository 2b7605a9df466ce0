package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/platform/envutil"
	"github.com/yungbote/questweaver/internal/platform/gemini"
	"github.com/yungbote/questweaver/internal/platform/httpx"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

var (
	ErrWorkflowFailed     = errors.New("workflow run failed")
	ErrWorkflowIncomplete = errors.New("workflow stream ended without outputs")
)

type WorkflowConfig struct {
	BaseURL   string
	APIKey    string
	Streaming bool
	Timeout   time.Duration
	User      string

	HTTPClient *http.Client
}

func WorkflowConfigFromEnv() WorkflowConfig {
	return WorkflowConfig{
		BaseURL:   envutil.String("WORKFLOW_API_URL", ""),
		APIKey:    envutil.String("WORKFLOW_API_KEY", ""),
		Streaming: envutil.Bool("WORKFLOW_STREAMING", true),
		Timeout:   envutil.Millis("WORKFLOW_TIMEOUT_MS", gemini.DefaultTimeout),
		User:      envutil.String("WORKFLOW_USER", "questweaver"),
	}
}

// WorkflowClient delegates the whole pipeline to an external workflow engine
// exposing POST {base}/workflows/run.
type WorkflowClient struct {
	log  *logger.Logger
	cfg  WorkflowConfig
	http *http.Client
}

func NewWorkflowClient(log *logger.Logger, cfg WorkflowConfig) *WorkflowClient {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = gemini.DefaultTimeout
	}
	if strings.TrimSpace(cfg.User) == "" {
		cfg.User = "questweaver"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &WorkflowClient{log: log.With("component", "WorkflowClient"), cfg: cfg, http: hc}
}

func (c *WorkflowClient) Configured() bool {
	return c != nil && c.cfg.BaseURL != "" && strings.TrimSpace(c.cfg.APIKey) != ""
}

type workflowRunRequest struct {
	Inputs       map[string]any `json:"inputs"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

type workflowData struct {
	ID          string          `json:"id"`
	NodeID      string          `json:"node_id,omitempty"`
	NodeType    string          `json:"node_type,omitempty"`
	Title       string          `json:"title,omitempty"`
	Status      string          `json:"status,omitempty"`
	Outputs     json.RawMessage `json:"outputs,omitempty"`
	Error       string          `json:"error,omitempty"`
	ElapsedTime float64         `json:"elapsed_time,omitempty"`
	TotalTokens int             `json:"total_tokens,omitempty"`
}

type workflowRunResponse struct {
	Event         string       `json:"event,omitempty"`
	WorkflowRunID string       `json:"workflow_run_id"`
	TaskID        string       `json:"task_id"`
	Data          workflowData `json:"data"`
	Message       string       `json:"message,omitempty"`
}

func (c *WorkflowClient) Run(ctx context.Context, req quest.QuestGenerationRequest, rep *pipeline.Reporter) (*quest.QuestDualOutput, error) {
	if !c.Configured() {
		return nil, pipeline.ErrMissingCredential
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	mode := "blocking"
	if c.cfg.Streaming {
		mode = "streaming"
	}
	body, err := json.Marshal(workflowRunRequest{Inputs: workflowInputs(req), ResponseMode: mode, User: c.cfg.User})
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/workflows/run", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	hreq.Header.Set("Content-Type", "application/json")
	if c.cfg.Streaming {
		hreq.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("workflow request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &httpx.StatusError{Service: "workflow", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out *quest.QuestDualOutput
	if c.cfg.Streaming {
		out, err = c.readStream(resp.Body, rep)
	} else {
		out, err = c.readBlocking(resp.Body)
	}
	if err != nil {
		return nil, err
	}
	c.log.Info("workflow run finished", "mode", mode, "quest_id", out.QuestID, "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (c *WorkflowClient) readBlocking(r io.Reader) (*quest.QuestDualOutput, error) {
	var res workflowRunResponse
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("workflow decode: %w", err)
	}
	if st := strings.ToLower(res.Data.Status); st != "" && st != "succeeded" {
		return nil, fmt.Errorf("%w: status=%s error=%s", ErrWorkflowFailed, res.Data.Status, res.Data.Error)
	}
	if isNull(res.Data.Outputs) {
		return nil, pipeline.ErrEmptyOutput
	}
	c.log.Debug("workflow blocking result", "workflow_run_id", res.WorkflowRunID, "total_tokens", res.Data.TotalTokens)
	return ParseWorkflowOutput(res.Data.Outputs)
}

func (c *WorkflowClient) readStream(r io.Reader, rep *pipeline.Reporter) (*quest.QuestDualOutput, error) {
	var out *quest.QuestDualOutput
	errDone := errors.New("done")
	err := streamSSE(r, func(event, data string) error {
		var msg workflowRunResponse
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			c.log.Debug("skipping undecodable workflow event", "event", event, "error", err)
			return nil
		}
		if event == "" {
			event = msg.Event
		}
		switch event {
		case "workflow_started":
			rep.Update(quest.StepSpotSelection, 1, "ワークフローを開始しました")
		case "node_started", "node_finished":
			if step, pct, ok := nodeProgress(msg.Data.NodeID, msg.Data.Title, event == "node_finished"); ok {
				rep.Update(step, pct, msg.Data.Title)
			}
		case "workflow_finished":
			if msg.Data.Error != "" || (msg.Data.Status != "" && !strings.EqualFold(msg.Data.Status, "succeeded")) {
				return fmt.Errorf("%w: status=%s error=%s", ErrWorkflowFailed, msg.Data.Status, msg.Data.Error)
			}
			if isNull(msg.Data.Outputs) {
				return nil
			}
			parsed, err := ParseWorkflowOutput(msg.Data.Outputs)
			if err != nil {
				return err
			}
			out = parsed
			return errDone
		case "error":
			return fmt.Errorf("%w: %s", ErrWorkflowFailed, firstNonEmpty(msg.Message, msg.Data.Error, data))
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDone) {
		return nil, err
	}
	if out == nil {
		return nil, ErrWorkflowIncomplete
	}
	return out, nil
}

// nodeSteps maps workflow node names onto pipeline steps. The first match
// wins, so more specific fragments come first.
var nodeSteps = []struct {
	fragment string
	step     quest.Step
	start    int
	end      int
}{
	{"meta", quest.StepPuzzles, 80, 85},
	{"valid", quest.StepValidation, 85, 95},
	{"title", quest.StepValidation, 95, 98},
	{"puzzle", quest.StepPuzzles, 30, 80},
	{"plot", quest.StepMotifAndPlot, 20, 30},
	{"motif", quest.StepMotifAndPlot, 15, 20},
	{"spot", quest.StepSpotSelection, 2, 15},
	{"stop", quest.StepSpotSelection, 2, 15},
	{"evidence", quest.StepSpotSelection, 2, 15},
}

func nodeProgress(nodeID, title string, finished bool) (quest.Step, int, bool) {
	name := strings.ToLower(nodeID + " " + title)
	for _, n := range nodeSteps {
		if strings.Contains(name, n.fragment) {
			if finished {
				return n.step, n.end, true
			}
			return n.step, n.start, true
		}
	}
	return 0, 0, false
}

func workflowInputs(req quest.QuestGenerationRequest) map[string]any {
	raw, _ := json.Marshal(req)
	in := map[string]any{
		"prompt":       req.Prompt,
		"difficulty":   string(req.Difficulty),
		"spot_count":   req.SpotCount,
		"quest_theme":  req.QuestTheme(),
		"request_json": string(raw),
	}
	if req.CenterLocation != nil {
		in["center_lat"] = req.CenterLocation.Lat
		in["center_lng"] = req.CenterLocation.Lng
		in["radius_km"] = req.RadiusKm
	}
	return in
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
