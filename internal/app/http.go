package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/questweaver/internal/http"
	httpH "github.com/yungbote/questweaver/internal/http/handlers"
	httpMW "github.com/yungbote/questweaver/internal/http/middleware"
	"github.com/yungbote/questweaver/internal/observability"
	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/realtime"
	"github.com/yungbote/questweaver/internal/services"
)

func wireServer(log *logger.Logger, cfg Config, theDB *gorm.DB, c *Clients, hub *realtime.SSEHub, svc services.QuestService) *http.Server {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.Pinger{
		"db": func(ctx context.Context) error {
			sqlDB, err := theDB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }
	}

	return http.NewServer(cfg.HTTPAddr, http.RouterConfig{
		Log:             log,
		Metrics:         observability.Current(),
		CORSOrigins:     cfg.CORSOrigins,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, cfg.AuthSecret, cfg.AuthRequired),
		HealthHandler:   httpH.NewHealthHandler(checks),
		QuestHandler:    httpH.NewQuestHandler(log, svc),
		QuestRunHandler: httpH.NewQuestRunHandler(log, svc),
		RealtimeHandler: httpH.NewRealtimeHandler(log, hub, svc),
	})
}
