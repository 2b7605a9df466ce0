package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

type Template struct {
	Name       PromptName
	Version    int
	SchemaName string
	Schema     func() map[string]any
	Render     func(Input) (string, error)
	Validate   Validator
}

type Prompt struct {
	Name       string
	Version    int
	SchemaName string
	Text       string
}

func (p Prompt) Fingerprint() string {
	h := sha256.Sum256([]byte(p.Name + "|" + strconv.Itoa(p.Version) + "|" + p.Text))
	return hex.EncodeToString(h[:])
}

var (
	mu       sync.RWMutex
	registry = map[PromptName]Template{}
	initOnce sync.Once
)

func Register(t Template) {
	mu.Lock()
	registry[t.Name] = t
	mu.Unlock()
}

// Build renders a registered prompt and appends its JSON response contract.
func Build(name PromptName, in Input) (Prompt, error) {
	initOnce.Do(RegisterAll)
	mu.RLock()
	t, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", name)
	}
	if t.Validate != nil {
		if err := t.Validate(in); err != nil {
			return Prompt{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	body, err := t.Render(in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s render: %w", name, err)
	}
	schema, err := json.MarshalIndent(t.Schema(), "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("%s schema: %w", name, err)
	}
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n\n# Output format\nRespond with a single ```json fenced block that matches this JSON schema (")
	b.WriteString(t.SchemaName)
	b.WriteString("). Do not add commentary outside the block.\n```json\n")
	b.Write(schema)
	b.WriteString("\n```")
	return Prompt{Name: string(t.Name), Version: t.Version, SchemaName: t.SchemaName, Text: b.String()}, nil
}
