package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/questweaver/internal/domain/runs"
	"github.com/yungbote/questweaver/internal/http/response"
	"github.com/yungbote/questweaver/internal/platform/ctxutil"
	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/realtime"
	"github.com/yungbote/questweaver/internal/services"
)

type QuestRunHandler struct {
	log *logger.Logger
	svc services.QuestService
}

func NewQuestRunHandler(log *logger.Logger, svc services.QuestService) *QuestRunHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &QuestRunHandler{log: log.With("handler", "QuestRunHandler"), svc: svc}
}

type runView struct {
	ID         string          `json:"id"`
	QuestID    string          `json:"quest_id,omitempty"`
	Status     runs.Status     `json:"status"`
	Stage      string          `json:"stage"`
	Progress   int             `json:"progress"`
	Mode       string          `json:"mode"`
	Backend    string          `json:"backend,omitempty"`
	FellBack   bool            `json:"fell_back"`
	Error      string          `json:"error,omitempty"`
	ArchiveURL string          `json:"archive_url,omitempty"`
	Validation json.RawMessage `json:"validation,omitempty"`
	Channel    string          `json:"channel"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

func viewOf(r *runs.QuestRun) runView {
	v := runView{
		ID:         r.ID,
		QuestID:    r.QuestID,
		Status:     r.Status,
		Stage:      r.Stage,
		Progress:   r.Progress,
		Mode:       r.Mode,
		Backend:    r.Backend,
		FellBack:   r.FellBack,
		Error:      r.Error,
		ArchiveURL: r.ArchiveURL,
		Channel:    realtime.RunChannel(r.ID),
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if len(r.Validation) > 0 {
		v.Validation = json.RawMessage(r.Validation)
	}
	return v
}

// POST /api/quest-runs
func (h *QuestRunHandler) StartRun(c *gin.Context) {
	req, mode, err := bindGenerate(c)
	if err != nil {
		writeError(c, err)
		return
	}
	run, err := h.svc.StartRun(c.Request.Context(), ctxutil.Subject(c.Request.Context()), req, mode)
	if err != nil {
		writeError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"run": viewOf(run)})
}

// GET /api/quest-runs/:id
func (h *QuestRunHandler) GetRun(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"run": viewOf(run)})
}

// GET /api/quest-runs?limit=
func (h *QuestRunHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.svc.ListRuns(c.Request.Context(), ctxutil.Subject(c.Request.Context()), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]runView, 0, len(list))
	for _, r := range list {
		views = append(views, viewOf(r))
	}
	response.RespondOK(c, gin.H{"runs": views})
}
