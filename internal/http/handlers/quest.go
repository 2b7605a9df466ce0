package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/http/response"
	"github.com/yungbote/questweaver/internal/modules/quest/backend"
	"github.com/yungbote/questweaver/internal/platform/apierr"
	"github.com/yungbote/questweaver/internal/platform/ctxutil"
	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/services"
)

type QuestHandler struct {
	log *logger.Logger
	svc services.QuestService
}

func NewQuestHandler(log *logger.Logger, svc services.QuestService) *QuestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &QuestHandler{log: log.With("handler", "QuestHandler"), svc: svc}
}

// generateBody is a generation request plus the optional backend mode.
type generateBody struct {
	quest.QuestGenerationRequest
	Mode string `json:"mode"`
}

func bindGenerate(c *gin.Context) (quest.QuestGenerationRequest, backend.Mode, error) {
	var body generateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return quest.QuestGenerationRequest{}, "", apierr.New(http.StatusBadRequest, "invalid_json", err)
	}
	mode := body.Mode
	if q := strings.TrimSpace(c.Query("mode")); q != "" {
		mode = q
	}
	m, err := backend.ParseMode(mode)
	if err != nil {
		return quest.QuestGenerationRequest{}, "", apierr.New(http.StatusBadRequest, "invalid_mode", err)
	}
	return body.QuestGenerationRequest, m, nil
}

// POST /api/quests/generate
func (h *QuestHandler) Generate(c *gin.Context) {
	req, mode, err := bindGenerate(c)
	if err != nil {
		writeError(c, err)
		return
	}
	run, out, err := h.svc.Generate(c.Request.Context(), ctxutil.Subject(c.Request.Context()), req, mode)
	if err != nil {
		if run != nil {
			c.Header("X-Quest-Run-Id", run.ID)
		}
		writeError(c, err)
		return
	}
	c.Header("X-Quest-Run-Id", run.ID)
	response.RespondOK(c, out)
}

// GET /api/quests/:id
func (h *QuestHandler) GetQuest(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		writeError(c, apierr.BadRequest("invalid_id", "quest id required"))
		return
	}
	out, err := h.svc.GetQuest(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.RespondOK(c, out)
}
