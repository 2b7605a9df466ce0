package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/observability"
	"github.com/yungbote/questweaver/internal/platform/envutil"
	"github.com/yungbote/questweaver/internal/platform/httpx"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

type Place struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Geocoder resolves a place name to a coordinate. A legitimately missing
// result is (nil, nil), not an error.
type Geocoder interface {
	Search(ctx context.Context, name string, near *quest.LatLng) (*Place, error)
}

// Cache stores resolved places keyed by query. Misses return (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*Place, error)
	Set(ctx context.Context, key string, p *Place) error
}

type Config struct {
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64
	Timeout           time.Duration
	Language          string
	HTTPClient        *http.Client
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:           envutil.String("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		UserAgent:         envutil.String("GEOCODER_USER_AGENT", "questweaver/1.0"),
		RequestsPerSecond: envutil.Float("GEOCODER_REQUESTS_PER_SECOND", 1),
		Timeout:           envutil.Millis("GEOCODER_TIMEOUT_MS", 10*time.Second),
		Language:          envutil.String("GEOCODER_LANGUAGE", "ja"),
	}
}

type nominatim struct {
	log        *logger.Logger
	baseURL    string
	userAgent  string
	language   string
	limiter    *rate.Limiter
	httpClient *http.Client
	cache      Cache
}

func New(log *logger.Logger, cfg Config, cache Cache) Geocoder {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &nominatim{
		log:        log.With("service", "Geocoder"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		language:   cfg.Language,
		limiter:    limiter,
		httpClient: httpClient,
		cache:      cache,
	}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
}

// viewbox half-width in degrees (~5km) used to bias toward the origin.
const nearBoxDegrees = 0.05

func (g *nominatim) Search(ctx context.Context, name string, near *quest.LatLng) (*Place, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	key := cacheKey(name, near)
	if g.cache != nil {
		if p, err := g.cache.Get(ctx, key); err != nil {
			g.log.Warn("geocode cache read failed", "error", err)
		} else if p != nil {
			observability.Current().IncGeocode("cache_hit")
			return p, nil
		}
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "json")
	q.Set("limit", "1")
	if g.language != "" {
		q.Set("accept-language", g.language)
	}
	if near != nil {
		q.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f",
			near.Lng-nearBoxDegrees, near.Lat+nearBoxDegrees, near.Lng+nearBoxDegrees, near.Lat-nearBoxDegrees))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		observability.Current().IncGeocode("error")
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.Current().IncGeocode("error")
		return nil, &httpx.StatusError{Service: "geocoder", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	var results []searchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("geocoder decode: %w", err)
	}
	if len(results) == 0 {
		observability.Current().IncGeocode("miss")
		return nil, nil
	}
	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lng, lngErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lngErr != nil {
		observability.Current().IncGeocode("miss")
		return nil, nil
	}
	p := &Place{Name: name, DisplayName: results[0].DisplayName, Lat: lat, Lng: lng}
	observability.Current().IncGeocode("hit")
	if g.cache != nil {
		if err := g.cache.Set(ctx, key, p); err != nil {
			g.log.Warn("geocode cache write failed", "error", err)
		}
	}
	return p, nil
}

func cacheKey(name string, near *quest.LatLng) string {
	if near == nil {
		return "geocode:" + strings.ToLower(name)
	}
	return fmt.Sprintf("geocode:%s@%.2f,%.2f", strings.ToLower(name), near.Lat, near.Lng)
}
