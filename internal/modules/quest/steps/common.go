package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/evidence"
	"github.com/yungbote/questweaver/internal/modules/quest/llmjson"
	"github.com/yungbote/questweaver/internal/modules/quest/prompts"
	"github.com/yungbote/questweaver/internal/observability"
	"github.com/yungbote/questweaver/internal/platform/gemini"
	"github.com/yungbote/questweaver/internal/platform/geocode"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

// EvidenceRetriever is satisfied by *evidence.Retriever.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, q evidence.Query) quest.EvidencePack
}

type Deps struct {
	Log      *logger.Logger
	LLM      gemini.Client
	Geocoder geocode.Geocoder
	Evidence EvidenceRetriever
}

func (d Deps) log() *logger.Logger {
	if d.Log == nil {
		return logger.Nop()
	}
	return d.Log
}

var ErrNoLLM = errors.New("no language model configured")

// Outcome is a stage result: either generated by the model or built by the
// stage's deterministic fallback.
type Outcome[T any] struct {
	Value    T
	Fallback bool
	Reason   string
}

func Generated[T any](v T) Outcome[T] { return Outcome[T]{Value: v} }

func FellBack[T any](v T, cause error) Outcome[T] {
	o := Outcome[T]{Value: v, Fallback: true}
	if cause != nil {
		o.Reason = cause.Error()
	}
	return o
}

// generate builds the named prompt, calls the model and decodes the reply
// into out. Any error means the caller should take its fallback.
func generate(ctx context.Context, deps Deps, stage string, name prompts.PromptName, in prompts.Input, out any, fields map[string]any) (err error) {
	start := time.Now()
	done := llmTimer(deps.log(), string(name), fields)
	defer func() {
		done(err)
		status := "ok"
		if err != nil {
			status = "fallback"
		}
		observability.Current().ObserveStage(stage, status, time.Since(start))
	}()
	if deps.LLM == nil {
		return ErrNoLLM
	}
	p, err := prompts.Build(name, in)
	if err != nil {
		return err
	}
	text, err := deps.LLM.GenerateText(ctx, p.Text)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := llmjson.Decode(text, out); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func noteFallback(deps Deps, stage string, cause error, kv ...any) {
	observability.Current().IncFallback(stage)
	args := append([]any{"stage", stage, "reason", errString(cause)}, kv...)
	deps.log().Warn("stage fell back to deterministic output", args...)
}

func llmTimer(log *logger.Logger, name string, fields map[string]any) func(error) {
	start := time.Now()
	return func(err error) {
		kv := make([]any, 0, 4+len(fields)*2+2)
		kv = append(kv, "llm_call", name, "elapsed_ms", time.Since(start).Milliseconds())
		for k, v := range fields {
			kv = append(kv, k, v)
		}
		if err != nil {
			kv = append(kv, "error", err.Error())
			log.Warn("llm call finished", kv...)
			return
		}
		log.Info("llm call finished", kv...)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(b)
}

func dedupeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(strings.TrimSpace(s)) }

func firstRune(s string) string {
	s = strings.TrimSpace(s)
	for _, r := range s {
		return string(r)
	}
	return ""
}

func nonEmpty(fields map[string]string) error {
	var missing []string
	for k, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
