package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/prompts"
)

type motifEntry struct {
	SpotID           string   `json:"spot_id"`
	SelectedFacts    []string `json:"selected_facts"`
	SceneRole        string   `json:"scene_role"`
	PlotKeyType      string   `json:"plot_key_type"`
	SuggestedPuzzle  string   `json:"suggested_puzzle_type"`
	MotifDescription string   `json:"motif_description"`
}

type motifsResponse struct {
	Motifs []motifEntry `json:"motifs"`
}

func (r *motifsResponse) Validate() error {
	if len(r.Motifs) == 0 {
		return errors.New("motifs: empty")
	}
	for i, m := range r.Motifs {
		if strings.TrimSpace(m.SpotID) == "" {
			return fmt.Errorf("motifs[%d]: missing spot_id", i)
		}
		if !quest.SceneRole(m.SceneRole).Valid() {
			return fmt.Errorf("motifs[%d]: invalid scene_role %q", i, m.SceneRole)
		}
	}
	return nil
}

// SelectMotifs assigns one motif per spot, in spot order. On any failure
// the whole batch comes from FallbackMotifs.
func SelectMotifs(ctx context.Context, deps Deps, spots []quest.SpotInput, questTheme string) Outcome[[]quest.SpotMotif] {
	if len(spots) == 0 {
		return Generated([]quest.SpotMotif{})
	}
	var resp motifsResponse
	err := generate(ctx, deps, "motif", prompts.PromptSpotMotifs, prompts.Input{
		QuestTheme: questTheme,
		SpotsJSON:  mustJSON(spotsForPrompt(spots)),
		SpotCount:  len(spots),
	}, &resp, map[string]any{"spots": len(spots)})
	if err == nil {
		var motifs []quest.SpotMotif
		if motifs, err = coerceMotifs(resp, spots); err == nil {
			return Generated(motifs)
		}
	}
	noteFallback(deps, "motif", err)
	return FellBack(FallbackMotifs(spots), err)
}

// coerceMotifs aligns model output with the spot list. Every spot needs an
// entry; unknown puzzle or key types are replaced with positional defaults,
// and the first and last roles are pinned to intro and finale.
func coerceMotifs(resp motifsResponse, spots []quest.SpotInput) ([]quest.SpotMotif, error) {
	byID := make(map[string]motifEntry, len(resp.Motifs))
	for _, m := range resp.Motifs {
		byID[strings.TrimSpace(m.SpotID)] = m
	}
	out := make([]quest.SpotMotif, len(spots))
	for i, s := range spots {
		m, ok := byID[s.ID]
		if !ok {
			return nil, fmt.Errorf("motifs: no entry for %s", s.ID)
		}
		motif := quest.SpotMotif{
			SpotID:           s.ID,
			SpotName:         s.Name,
			SelectedFacts:    selectKnownFacts(m.SelectedFacts, s.Facts),
			SceneRole:        quest.SceneRole(m.SceneRole),
			PlotKeyType:      quest.PlotKeyType(m.PlotKeyType),
			SuggestedPuzzle:  quest.PuzzleType(m.SuggestedPuzzle),
			MotifDescription: strings.TrimSpace(m.MotifDescription),
		}
		if !motif.PlotKeyType.Valid() {
			motif.PlotKeyType = fallbackPlotKeyType(i)
		}
		if !motif.SuggestedPuzzle.Valid() {
			motif.SuggestedPuzzle = quest.PuzzleTypes[i%len(quest.PuzzleTypes)]
		}
		out[i] = motif
	}
	out[0].SceneRole = quest.RoleIntro
	if len(out) > 1 {
		out[len(out)-1].SceneRole = quest.RoleFinale
	}
	return out, nil
}

// selectKnownFacts keeps the model's choices that correspond to a real fact
// of the spot and falls back to the first two facts when none survive.
func selectKnownFacts(selected, facts []string) []string {
	var out []string
	for _, sel := range dedupeStrings(selected) {
		for _, f := range facts {
			if f == sel || strings.Contains(f, sel) || strings.Contains(sel, f) {
				out = append(out, f)
				break
			}
		}
	}
	out = dedupeStrings(out)
	if len(out) == 0 {
		return firstN(facts, 2)
	}
	return out
}

// FallbackMotifs assigns roles by position: first intro, last finale,
// midpoint turning point, the last 30% climax approach, otherwise rising.
// It takes the first two facts and rotates through the six puzzle types.
func FallbackMotifs(spots []quest.SpotInput) []quest.SpotMotif {
	n := len(spots)
	out := make([]quest.SpotMotif, n)
	for i, s := range spots {
		out[i] = quest.SpotMotif{
			SpotID:          s.ID,
			SpotName:        s.Name,
			SelectedFacts:   firstN(s.Facts, 2),
			SceneRole:       FallbackRole(i, n),
			PlotKeyType:     fallbackPlotKeyType(i),
			SuggestedPuzzle: quest.PuzzleTypes[i%len(quest.PuzzleTypes)],
		}
	}
	return out
}

func FallbackRole(i, n int) quest.SceneRole {
	switch {
	case i == 0:
		return quest.RoleIntro
	case i == n-1:
		return quest.RoleFinale
	case i == n/2:
		return quest.RoleTurningPoint
	case float64(i) >= float64(n)*0.7:
		return quest.RoleClimaxApproach
	default:
		return quest.RoleRising
	}
}

func fallbackPlotKeyType(i int) quest.PlotKeyType {
	if i%2 == 1 {
		return quest.PlotKeyNumber
	}
	return quest.PlotKeyKeyword
}

func firstN(in []string, n int) []string {
	in = dedupeStrings(in)
	if len(in) > n {
		in = in[:n]
	}
	return in
}

type promptSpot struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Summary string   `json:"summary"`
	Facts   []string `json:"facts"`
}

func spotsForPrompt(spots []quest.SpotInput) []promptSpot {
	out := make([]promptSpot, 0, len(spots))
	for _, s := range spots {
		out = append(out, promptSpot{ID: s.ID, Name: s.Name, Summary: s.Summary, Facts: s.Facts})
	}
	return out
}
