package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/questweaver/internal/platform/envutil"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *Gauge
	llmRequests   *CounterVec
	llmLatency    *HistogramVec
	stageDuration *HistogramVec
	fallbacks     *CounterVec
	validations   *CounterVec
	regenerations *CounterVec
	backendRuns   *CounterVec
	geocodes      *CounterVec
	evidence      *CounterVec
	redisUp       *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process-wide metrics, or nil when metrics are off.
// Every method is nil-safe.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// NewMetrics builds an unregistered metrics set.
func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("qw_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("qw_api_request_duration_seconds", "API latency by method/route/status.",
			[]string{"method", "route", "status"}, []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 300}),
		apiInflight:   NewGauge("qw_api_inflight_requests", "In-flight API requests."),
		llmRequests:   NewCounterVec("qw_llm_requests_total", "LLM requests by model/status.", []string{"model", "status"}),
		llmLatency:    NewHistogramVec("qw_llm_request_duration_seconds", "LLM latency by model/status.", []string{"model", "status"}, nil),
		stageDuration: NewHistogramVec("qw_quest_stage_duration_seconds", "Pipeline stage duration by stage/status.", []string{"stage", "status"}, nil),
		fallbacks:     NewCounterVec("qw_quest_fallback_total", "Deterministic fallbacks taken, by stage.", []string{"stage"}),
		validations:   NewCounterVec("qw_quest_validation_total", "Validation outcomes.", []string{"passed"}),
		regenerations: NewCounterVec("qw_quest_regenerated_spots_total", "Spots regenerated after validation.", []string{"result"}),
		backendRuns:   NewCounterVec("qw_quest_backend_runs_total", "Quest generations by backend/status.", []string{"backend", "status"}),
		geocodes:      NewCounterVec("qw_geocode_lookups_total", "Geocoder lookups by outcome.", []string{"outcome"}),
		evidence:      NewCounterVec("qw_evidence_items_total", "Evidence items collected by source.", []string{"source"}),
		redisUp:       NewGauge("qw_redis_up", "Redis reachability (1 up, 0 down)."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.stageDuration, m.fallbacks, m.validations, m.regenerations, m.backendRuns,
		m.geocodes, m.evidence, m.redisUp,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	s := strconv.Itoa(status)
	m.apiRequests.Inc(method, route, s)
	m.apiLatency.Observe(dur.Seconds(), method, route, s)
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveLLMRequest(model, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(model, status)
	m.llmLatency.Observe(dur.Seconds(), model, status)
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Observe(dur.Seconds(), stage, status)
}

func (m *Metrics) IncFallback(stage string) {
	if m != nil {
		m.fallbacks.Inc(stage)
	}
}

func (m *Metrics) FallbackCount(stage string) float64 {
	if m == nil {
		return 0
	}
	return m.fallbacks.Value(stage)
}

func (m *Metrics) IncValidation(passed bool) {
	if m != nil {
		m.validations.Inc(strconv.FormatBool(passed))
	}
}

func (m *Metrics) IncRegenerated(result string) {
	if m != nil {
		m.regenerations.Inc(result)
	}
}

func (m *Metrics) IncBackendRun(backend, status string) {
	if m != nil {
		m.backendRuns.Inc(backend, status)
	}
}

func (m *Metrics) IncGeocode(outcome string) {
	if m != nil {
		m.geocodes.Inc(outcome)
	}
}

func (m *Metrics) AddEvidence(source string, n int) {
	if m != nil && n > 0 {
		m.evidence.Add(float64(n), source)
	}
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client, interval time.Duration) {
	if m == nil || rdb == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
			}
		}
	}()
}
