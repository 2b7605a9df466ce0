package quest

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid quest request")

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyNormal, DifficultyHard:
		return true
	}
	return false
}

// PuzzleLevel maps the request difficulty onto the 1-5 puzzle scale.
func (d Difficulty) PuzzleLevel() int {
	switch d {
	case DifficultyEasy:
		return 2
	case DifficultyHard:
		return 4
	default:
		return 3
	}
}

type PromptSupport struct {
	Protagonist string `json:"protagonist,omitempty"`
	Objective   string `json:"objective,omitempty"`
	Ending      string `json:"ending,omitempty"`
	When        string `json:"when,omitempty"`
	Where       string `json:"where,omitempty"`
	Purpose     string `json:"purpose,omitempty"`
	WithWhom    string `json:"withWhom,omitempty"`
}

func (p *PromptSupport) Lines() []string {
	if p == nil {
		return nil
	}
	var out []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, label+": "+v)
		}
	}
	add("主人公", p.Protagonist)
	add("目的", p.Objective)
	add("結末", p.Ending)
	add("いつ", p.When)
	add("どこで", p.Where)
	add("遊ぶ目的", p.Purpose)
	add("誰と", p.WithWhom)
	return out
}

type QuestGenerationRequest struct {
	Prompt         string         `json:"prompt"`
	Difficulty     Difficulty     `json:"difficulty"`
	SpotCount      int            `json:"spot_count"`
	ThemeTags      []string       `json:"theme_tags,omitempty"`
	GenreSupport   string         `json:"genre_support,omitempty"`
	ToneSupport    string         `json:"tone_support,omitempty"`
	PromptSupport  *PromptSupport `json:"prompt_support,omitempty"`
	CenterLocation *LatLng        `json:"center_location,omitempty"`
	RadiusKm       float64        `json:"radius_km,omitempty"`
}

const (
	MinSpotCount = 1
	MaxSpotCount = 12
)

func (r QuestGenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt required", ErrInvalidRequest)
	}
	if !r.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, r.Difficulty)
	}
	if r.SpotCount < MinSpotCount || r.SpotCount > MaxSpotCount {
		return fmt.Errorf("%w: spot_count must be between %d and %d", ErrInvalidRequest, MinSpotCount, MaxSpotCount)
	}
	if r.CenterLocation != nil {
		if r.CenterLocation.Lat < -90 || r.CenterLocation.Lat > 90 || r.CenterLocation.Lng < -180 || r.CenterLocation.Lng > 180 {
			return fmt.Errorf("%w: center_location out of range", ErrInvalidRequest)
		}
		if r.RadiusKm < 0 {
			return fmt.Errorf("%w: radius_km must be positive", ErrInvalidRequest)
		}
	}
	return nil
}

// QuestTheme is the free-text theme handed to the narrative stages.
func (r QuestGenerationRequest) QuestTheme() string {
	parts := []string{strings.TrimSpace(r.Prompt)}
	if g := strings.TrimSpace(r.GenreSupport); g != "" {
		parts = append(parts, "ジャンル: "+g)
	}
	if t := strings.TrimSpace(r.ToneSupport); t != "" {
		parts = append(parts, "トーン: "+t)
	}
	if len(r.ThemeTags) > 0 {
		parts = append(parts, "テーマ: "+strings.Join(r.ThemeTags, "、"))
	}
	return strings.Join(parts, " / ")
}
