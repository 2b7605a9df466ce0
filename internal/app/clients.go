package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/questweaver/internal/platform/gcp"
	"github.com/yungbote/questweaver/internal/platform/gemini"
	"github.com/yungbote/questweaver/internal/platform/geocode"
	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/realtime/bus"
	"github.com/yungbote/questweaver/internal/temporalx"
)

// Clients are the external connections shared by the API and the CLI.
// Optional ones are nil when unconfigured.
type Clients struct {
	Redis    *goredis.Client
	SSEBus   bus.Bus
	LLM      gemini.Client
	Geocoder geocode.Geocoder
	Temporal temporalsdkclient.Client
	Archive  gcp.Archive
}

type clientOptions struct {
	bus     bool
	archive bool
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, opts clientOptions) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	// Redis
	if cfg.Redis.Addr != "" {
		b, rdb, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		c.Redis = rdb
		if opts.bus {
			c.SSEBus = b
		}
	}
	if opts.bus && c.SSEBus == nil {
		c.SSEBus = bus.NewLocalBus()
	}

	// Gemini
	llm, err := gemini.NewClient(log, cfg.Gemini)
	switch {
	case errors.Is(err, gemini.ErrMissingAPIKey):
		log.Warn("GEMINI_API_KEY not set; direct backend disabled")
	case err != nil:
		c.Close()
		return nil, fmt.Errorf("init gemini: %w", err)
	default:
		c.LLM = llm
	}

	// Geocoder
	var cache geocode.Cache
	if c.Redis != nil {
		cache = geocode.NewRedisCache(c.Redis, cfg.GeocodeCacheTTL)
	}
	c.Geocoder = geocode.New(log, cfg.Geocoder, cache)

	// Temporal
	tc, err := temporalx.NewClient(log, cfg.Temporal)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init temporal: %w", err)
	}
	c.Temporal = tc

	// Archive
	if opts.archive && cfg.Archive.Enabled() {
		a, err := gcp.NewArchive(ctx, log, cfg.Archive)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init quest archive: %w", err)
		}
		c.Archive = a
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Archive != nil {
		_ = c.Archive.Close()
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
