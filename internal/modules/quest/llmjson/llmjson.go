// Package llmjson pulls a JSON document out of free-form model output.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoJSON = errors.New("no JSON document found in model output")

// Validator is implemented by stage responses that check their own shape
// after decoding.
type Validator interface {
	Validate() error
}

// Candidates lists the substrings worth trying, most specific first:
// a ```json fence, any fence, the outermost object, the outermost array,
// then the trimmed text itself.
func Candidates(text string) []string {
	text = strings.TrimSpace(text)
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if idx := strings.Index(text, "```json"); idx >= 0 {
		after := text[idx+len("```json"):]
		if end := strings.Index(after, "```"); end >= 0 {
			add(after[:end])
		}
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		after := text[idx+3:]
		if nl := strings.Index(after, "\n"); nl >= 0 && !strings.ContainsAny(after[:nl], "{[") {
			after = after[nl+1:]
		}
		if end := strings.Index(after, "```"); end >= 0 {
			add(after[:end])
		}
	}
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			add(text[start : end+1])
		}
	}
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			add(text[start : end+1])
		}
	}
	add(text)
	return out
}

// Decode unmarshals the first candidate that parses into v. When v
// implements Validator, a candidate only counts if Validate passes.
func Decode(text string, v any) error {
	if strings.TrimSpace(text) == "" {
		return ErrNoJSON
	}
	var lastErr error = ErrNoJSON
	for _, c := range Candidates(text) {
		if err := json.Unmarshal([]byte(c), v); err != nil {
			lastErr = err
			continue
		}
		if val, ok := v.(Validator); ok {
			if err := val.Validate(); err != nil {
				lastErr = fmt.Errorf("schema: %w", err)
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("decode model output: %w (%.120s)", lastErr, text)
}
