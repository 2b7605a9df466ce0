package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/questweaver/internal/platform/apierr"
	"github.com/yungbote/questweaver/internal/platform/ctxutil"
	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/realtime"
	"github.com/yungbote/questweaver/internal/services"
)

type RealtimeHandler struct {
	Log *logger.Logger
	Hub *realtime.SSEHub
	svc services.QuestService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, svc services.QuestService) *RealtimeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RealtimeHandler{Log: log.With("handler", "RealtimeHandler"), Hub: hub, svc: svc}
}

// SSEStream streams one run channel until the client disconnects.
// GET /api/sse/stream?channel=quest_run:<id>
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	channel := strings.TrimSpace(c.Query("channel"))
	if channel == "" && c.Query("run_id") != "" {
		channel = realtime.RunChannel(c.Query("run_id"))
	}
	if !realtime.IsRunChannel(channel) {
		writeError(c, apierr.BadRequest("invalid_channel", "unsupported channel %q", channel))
		return
	}
	if h.svc != nil {
		runID := strings.TrimPrefix(channel, realtime.RunChannel(""))
		if _, err := h.svc.GetRun(c.Request.Context(), runID); err != nil {
			writeError(c, err)
			return
		}
	}

	client := h.Hub.NewSSEClient(ctxutil.Subject(c.Request.Context()))
	client.Logger = h.Log.With("SSEClientID", client.ID, "channel", channel)
	client.Logger.Debug("SSEStream open")
	h.Hub.AddChannel(client, channel)

	h.Hub.ServeHTTP(c.Writer, c.Request, client)

	h.Hub.CloseClient(client)
}
