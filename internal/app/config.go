package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/questweaver/internal/data/db"
	"github.com/yungbote/questweaver/internal/http/middleware"
	"github.com/yungbote/questweaver/internal/modules/quest/backend"
	"github.com/yungbote/questweaver/internal/modules/quest/evidence"
	"github.com/yungbote/questweaver/internal/modules/quest/geo"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/modules/quest/steps"
	"github.com/yungbote/questweaver/internal/platform/envutil"
	"github.com/yungbote/questweaver/internal/platform/gcp"
	"github.com/yungbote/questweaver/internal/platform/gemini"
	"github.com/yungbote/questweaver/internal/platform/geocode"
	"github.com/yungbote/questweaver/internal/realtime/bus"
	"github.com/yungbote/questweaver/internal/services"
	"github.com/yungbote/questweaver/internal/temporalx"
)

type Config struct {
	LogMode     string
	Environment string
	Version     string

	HTTPAddr    string
	MetricsAddr string

	AuthSecret   string
	AuthRequired bool
	CORSOrigins  []string

	DB    db.Config
	Redis bus.RedisConfig

	Gemini          gemini.Config
	Geocoder        geocode.Config
	GeocodeCacheTTL time.Duration
	Wiki            evidence.WikiConfig
	SourceTimeout   time.Duration
	MaxEvidences    int

	Pipeline    pipeline.Options
	BackendMode backend.Mode
	Workflow    backend.WorkflowConfig
	Temporal    temporalx.Config
	// TemporalWorker runs quest workflows in this process when Temporal is
	// configured.
	TemporalWorker bool

	Archive       gcp.ArchiveConfig
	Runs          services.QuestServiceConfig
	StaleRunAfter time.Duration
}

func LoadConfig() (Config, error) {
	archive, err := gcp.ArchiveConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("archive config: %w", err)
	}
	port := strings.TrimPrefix(envutil.String("PORT", "8080"), ":")
	return Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		HTTPAddr:    ":" + port,
		MetricsAddr: envutil.String("METRICS_ADDR", ":9090"),

		AuthSecret:   envutil.String("SUPABASE_JWT_SECRET", envutil.String("JWT_SECRET_KEY", "")),
		AuthRequired: envutil.Bool("AUTH_REQUIRED", false),
		CORSOrigins:  middleware.CORSOriginsFromEnv(),

		DB:    db.ConfigFromEnv(),
		Redis: bus.RedisConfigFromEnv(),

		Gemini:          gemini.ConfigFromEnv(),
		Geocoder:        geocode.ConfigFromEnv(),
		GeocodeCacheTTL: envutil.Millis("GEOCODE_CACHE_TTL_MS", 7*24*time.Hour),
		Wiki: evidence.WikiConfig{
			BaseURL:         envutil.String("WIKIPEDIA_BASE_URL", ""),
			UserAgent:       envutil.String("EVIDENCE_USER_AGENT", "questweaver/1.0"),
			GeoRadiusMeters: envutil.Int("WIKIPEDIA_GEO_RADIUS_M", 300),
		},
		SourceTimeout: envutil.Millis("EVIDENCE_SOURCE_TIMEOUT_MS", 15*time.Second),
		MaxEvidences:  envutil.Int("EVIDENCE_MAX_PER_SPOT", 10),

		Pipeline: pipeline.Options{
			MaxRegenerationTargets: envutil.Int("QUEST_MAX_REGENERATION_TARGETS", pipeline.DefaultMaxRegenerationTargets),
			ParallelPuzzles:        envutil.Bool("QUEST_PARALLEL_PUZZLES", false),
			MaxInterStopMeters:     envutil.Float("QUEST_MAX_INTER_STOP_METERS", geo.MaxInterStopMeters),
			EvidencePerSpot:        envutil.Int("QUEST_EVIDENCE_PER_SPOT", steps.DefaultEvidencePerSpot),
			StrictPlotKeyUsage:     envutil.Bool("QUEST_STRICT_PLOT_KEYS", false),
		},
		BackendMode:    backend.ModeFromEnv(),
		Workflow:       backend.WorkflowConfigFromEnv(),
		Temporal:       temporalx.LoadConfig(),
		TemporalWorker: envutil.Bool("TEMPORAL_WORKER_ENABLED", true),

		Archive: archive,
		Runs: services.QuestServiceConfig{
			MaxConcurrentRuns: int64(envutil.Int("QUEST_MAX_CONCURRENT_RUNS", 4)),
			RunTimeout:        envutil.Millis("QUEST_RUN_TIMEOUT_MS", 15*time.Minute),
		},
		StaleRunAfter: envutil.Millis("QUEST_STALE_RUN_AFTER_MS", 30*time.Minute),
	}, nil
}
