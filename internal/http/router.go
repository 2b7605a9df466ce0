package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/questweaver/internal/http/handlers"
	httpMW "github.com/yungbote/questweaver/internal/http/middleware"
	"github.com/yungbote/questweaver/internal/observability"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	CORSOrigins    []string
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler   *httpH.HealthHandler
	QuestHandler    *httpH.QuestHandler
	QuestRunHandler *httpH.QuestRunHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "questweaver"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.Authenticate())
	}
	{
		// Quests
		if cfg.QuestHandler != nil {
			api.POST("/quests/generate", cfg.QuestHandler.Generate)
			api.GET("/quests/:id", cfg.QuestHandler.GetQuest)
		}

		// Quest runs
		if cfg.QuestRunHandler != nil {
			api.POST("/quest-runs", cfg.QuestRunHandler.StartRun)
			api.GET("/quest-runs", cfg.QuestRunHandler.ListRuns)
			api.GET("/quest-runs/:id", cfg.QuestRunHandler.GetRun)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}
	}

	return r
}
