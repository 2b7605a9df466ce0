package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/prompts"
)

type spotPuzzleResponse struct {
	LoreCard struct {
		Narrative     string   `json:"narrative"`
		FactsUsed     []string `json:"facts_used"`
		PlayerHandout string   `json:"player_handout"`
	} `json:"lore_card"`
	Puzzle struct {
		Type          string   `json:"type"`
		Prompt        string   `json:"prompt"`
		Rules         string   `json:"rules"`
		Answer        string   `json:"answer"`
		SolutionSteps []string `json:"solution_steps"`
		Hints         []string `json:"hints"`
		Difficulty    int      `json:"difficulty"`
	} `json:"puzzle"`
	Reward struct {
		LoreReveal   string `json:"lore_reveal"`
		PlotKey      string `json:"plot_key"`
		NextSpotHook string `json:"next_spot_hook"`
	} `json:"reward"`
	LinkingRationale string `json:"linking_rationale"`
}

func (r *spotPuzzleResponse) Validate() error {
	if err := nonEmpty(map[string]string{
		"lore_card.player_handout": r.LoreCard.PlayerHandout,
		"puzzle.prompt":            r.Puzzle.Prompt,
		"puzzle.answer":            r.Puzzle.Answer,
	}); err != nil {
		return err
	}
	if len(dedupeStrings(r.Puzzle.SolutionSteps)) < 2 {
		return errors.New("puzzle.solution_steps: need at least 2")
	}
	if len(dedupeStrings(r.Puzzle.Hints)) < 2 {
		return errors.New("puzzle.hints: need at least 2")
	}
	return nil
}

type SpotPuzzleInput struct {
	Spot       quest.SpotInput
	Motif      quest.SpotMotif
	Plot       quest.MainPlot
	AllMotifs  []quest.SpotMotif
	SpotIndex  int
	Difficulty quest.Difficulty
	// PreviousIssues is set when regenerating a rejected stop.
	PreviousIssues []string
}

// GenerateSpotPuzzle produces the scene for one stop. Identity fields always
// come from the input, never from the model.
func GenerateSpotPuzzle(ctx context.Context, deps Deps, in SpotPuzzleInput) Outcome[quest.SpotScene] {
	puzzleType := in.Motif.SuggestedPuzzle
	if !puzzleType.Valid() {
		puzzleType = quest.PuzzleTypes[in.SpotIndex%len(quest.PuzzleTypes)]
	}
	arch, err := prompts.ArchetypeFor(string(puzzleType))
	if err == nil {
		facts := in.Motif.SelectedFacts
		if len(facts) == 0 {
			facts = in.Spot.Facts
		}
		var resp spotPuzzleResponse
		err = generate(ctx, deps, "puzzle", prompts.PromptSpotPuzzle, prompts.Input{
			PlotJSON:         mustJSON(in.Plot),
			SpotIndex:        in.SpotIndex,
			TotalSpots:       len(in.AllMotifs),
			SceneRole:        string(in.Motif.SceneRole),
			NarrativeContext: narrativeContext(in.AllMotifs, in.SpotIndex),
			SpotID:           in.Spot.ID,
			SpotName:         in.Spot.Name,
			SpotSummary:      in.Spot.Summary,
			FactsJSON:        mustJSON(facts),
			PuzzleType:       string(puzzleType),
			PuzzleGuide:      arch.Guide,
			PuzzleExample:    arch.Example,
			PuzzleLevel:      in.Difficulty.PuzzleLevel(),
			PlotKeyType:      string(in.Motif.PlotKeyType),
			PreviousIssues:   in.PreviousIssues,
		}, &resp, map[string]any{"spot_id": in.Spot.ID, "puzzle_type": puzzleType, "regeneration": len(in.PreviousIssues) > 0})
		if err == nil {
			return Generated(sceneFromResponse(resp, in, puzzleType))
		}
	}
	noteFallback(deps, "puzzle", err, "spot_id", in.Spot.ID)
	return FellBack(FallbackPuzzle(in.Spot, in.Motif, in.SpotIndex, len(in.AllMotifs)), err)
}

func sceneFromResponse(r spotPuzzleResponse, in SpotPuzzleInput, fallbackType quest.PuzzleType) quest.SpotScene {
	typ := quest.PuzzleType(strings.TrimSpace(r.Puzzle.Type))
	if !typ.Valid() {
		typ = fallbackType
	}
	difficulty := r.Puzzle.Difficulty
	if difficulty < quest.MinPuzzleDifficulty || difficulty > quest.MaxPuzzleDifficulty {
		difficulty = in.Difficulty.PuzzleLevel()
	}
	answer := strings.TrimSpace(r.Puzzle.Answer)
	plotKey := strings.TrimSpace(r.Reward.PlotKey)
	if plotKey == "" {
		plotKey = answer
	}
	return quest.SpotScene{
		SpotID:    in.Spot.ID,
		SpotName:  in.Spot.Name,
		Lat:       in.Spot.Lat,
		Lng:       in.Spot.Lng,
		SceneRole: in.Motif.SceneRole,
		LoreCard: quest.LoreCard{
			Narrative:     strings.TrimSpace(r.LoreCard.Narrative),
			FactsUsed:     dedupeStrings(r.LoreCard.FactsUsed),
			PlayerHandout: strings.TrimSpace(r.LoreCard.PlayerHandout),
		},
		Puzzle: quest.Puzzle{
			Type:          typ,
			Prompt:        strings.TrimSpace(r.Puzzle.Prompt),
			Rules:         strings.TrimSpace(r.Puzzle.Rules),
			Answer:        answer,
			SolutionSteps: dedupeStrings(r.Puzzle.SolutionSteps),
			Hints:         dedupeStrings(r.Puzzle.Hints),
			Difficulty:    difficulty,
		},
		Reward: quest.Reward{
			LoreReveal:   strings.TrimSpace(r.Reward.LoreReveal),
			PlotKey:      plotKey,
			NextSpotHook: strings.TrimSpace(r.Reward.NextSpotHook),
		},
		LinkingRationale: strings.TrimSpace(r.LinkingRationale),
	}
}

// narrativeContext describes the route by role only. Stage 3 never sees the
// generated content of other stops.
func narrativeContext(motifs []quest.SpotMotif, current int) string {
	var b strings.Builder
	b.WriteString("Route outline:")
	for i, m := range motifs {
		marker := ""
		if i == current {
			marker = "  <- this stop"
		}
		fmt.Fprintf(&b, "\n%d. %s (%s)%s", i+1, m.SpotName, m.SceneRole, marker)
	}
	return b.String()
}

// FallbackPuzzle builds an acrostic from the spot's own facts: the handout
// lists them and the answer is their first characters in order. Every
// required field is populated.
func FallbackPuzzle(spot quest.SpotInput, motif quest.SpotMotif, index, total int) quest.SpotScene {
	items := firstN(motif.SelectedFacts, 3)
	if len(items) < 2 {
		items = dedupeStrings(append(items, firstN(spot.Facts, 3)...))
	}
	if len(items) < 2 {
		items = dedupeStrings(append(items, spot.Name, spot.Summary))
	}
	if len(items) > 3 {
		items = items[:3]
	}
	if len(items) == 0 {
		items = []string{SpotLabel(spot)}
	}

	var handout strings.Builder
	fmt.Fprintf(&handout, "%sで見つけた古い手帳には、次の記録が書かれている。", SpotLabel(spot))
	var answer strings.Builder
	steps := make([]string, 0, len(items)+1)
	for i, it := range items {
		fmt.Fprintf(&handout, "\n記録%d：%s", i+1, it)
		r := firstRune(it)
		answer.WriteString(r)
		steps = append(steps, fmt.Sprintf("記録%dの最初の文字は「%s」。", i+1, r))
	}
	ans := answer.String()
	steps = append(steps, fmt.Sprintf("最初の文字を記録の順に並べると「%s」になる。", ans))

	role := motif.SceneRole
	if !role.Valid() {
		role = FallbackRole(index, total)
	}
	return quest.SpotScene{
		SpotID:    spot.ID,
		SpotName:  spot.Name,
		Lat:       spot.Lat,
		Lng:       spot.Lng,
		SceneRole: role,
		LoreCard: quest.LoreCard{
			Narrative:     fmt.Sprintf("%sに着いたあなたは、ベンチの上に置き忘れられた手帳を見つけた。", SpotLabel(spot)),
			FactsUsed:     items,
			PlayerHandout: handout.String(),
		},
		Puzzle: quest.Puzzle{
			Type:          quest.PuzzleWordplay,
			Prompt:        fmt.Sprintf("手帳の%dつの記録それぞれの最初の文字を、記録の順に並べてできる言葉を答えよ。", len(items)),
			Answer:        ans,
			SolutionSteps: steps,
			Hints: []string{
				"記録の内容よりも、書き出しに注目してみよう。",
				"それぞれの記録の最初の一文字だけを書き出してみよう。",
				fmt.Sprintf("答えは「%s」から始まる。", firstRune(ans)),
			},
			Difficulty: quest.MinPuzzleDifficulty,
		},
		Reward: quest.Reward{
			LoreReveal:   fmt.Sprintf("手帳の最後のページには、%sにまつわる記録が続いていた。", SpotLabel(spot)),
			PlotKey:      ans,
			NextSpotHook: "手帳の余白には、次の場所を示す矢印が描かれている。",
		},
		LinkingRationale: fmt.Sprintf("%sの記録そのものを手がかりにしているため、この場所でしか解けない。", SpotLabel(spot)),
	}
}

func SpotLabel(s quest.SpotInput) string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	return s.ID
}
