package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed archetypes.yaml
var archetypesYAML []byte

type Archetype struct {
	Type    string `yaml:"type"`
	Label   string `yaml:"label"`
	Guide   string `yaml:"guide"`
	Example string `yaml:"example"`
}

var (
	archetypesOnce sync.Once
	archetypes     map[string]Archetype
	archetypesErr  error
)

func loadArchetypes() {
	var list []Archetype
	if err := yaml.Unmarshal(archetypesYAML, &list); err != nil {
		archetypesErr = fmt.Errorf("parse archetypes: %w", err)
		return
	}
	archetypes = make(map[string]Archetype, len(list))
	for _, a := range list {
		a.Guide = strings.TrimSpace(a.Guide)
		archetypes[a.Type] = a
	}
}

// ArchetypeFor returns the prompt guidance for a puzzle type.
func ArchetypeFor(puzzleType string) (Archetype, error) {
	archetypesOnce.Do(loadArchetypes)
	if archetypesErr != nil {
		return Archetype{}, archetypesErr
	}
	a, ok := archetypes[puzzleType]
	if !ok {
		return Archetype{}, fmt.Errorf("unknown puzzle archetype %q", puzzleType)
	}
	return a, nil
}
