package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/prompts"
)

type metaPuzzleResponse struct {
	Inputs      []string `json:"inputs"`
	Prompt      string   `json:"prompt"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

func (r *metaPuzzleResponse) Validate() error {
	return nonEmpty(map[string]string{
		"prompt":      r.Prompt,
		"answer":      r.Answer,
		"explanation": r.Explanation,
	})
}

type sceneKey struct {
	SpotID   string `json:"spot_id"`
	SpotName string `json:"spot_name"`
	PlotKey  string `json:"plot_key"`
}

// GenerateMetaPuzzle combines every stop's plot key into the closing puzzle.
func GenerateMetaPuzzle(ctx context.Context, deps Deps, scenes []quest.SpotScene, plot quest.MainPlot) Outcome[quest.MetaPuzzle] {
	keys := make([]sceneKey, 0, len(scenes))
	plotKeys := make([]string, 0, len(scenes))
	for _, s := range scenes {
		keys = append(keys, sceneKey{SpotID: s.SpotID, SpotName: s.SpotName, PlotKey: s.Reward.PlotKey})
		plotKeys = append(plotKeys, s.Reward.PlotKey)
	}
	var resp metaPuzzleResponse
	err := generate(ctx, deps, "meta_puzzle", prompts.PromptMetaPuzzle, prompts.Input{
		PlotJSON:   mustJSON(plot),
		ScenesJSON: mustJSON(keys),
		PlotKeys:   plotKeys,
	}, &resp, map[string]any{"keys": len(keys)})
	if err == nil {
		return Generated(quest.MetaPuzzle{
			Inputs:      knownSpotIDs(resp.Inputs, scenes),
			Prompt:      strings.TrimSpace(resp.Prompt),
			Answer:      strings.TrimSpace(resp.Answer),
			Explanation: strings.TrimSpace(resp.Explanation),
		})
	}
	noteFallback(deps, "meta_puzzle", err)
	return FellBack(FallbackMetaPuzzle(scenes, plot), err)
}

// knownSpotIDs keeps inputs that name a real stop, preserving model order.
func knownSpotIDs(inputs []string, scenes []quest.SpotScene) []string {
	valid := map[string]bool{}
	for _, s := range scenes {
		valid[s.SpotID] = true
	}
	var out []string
	for _, id := range dedupeStrings(inputs) {
		if valid[id] {
			out = append(out, id)
		}
	}
	return out
}

// FallbackMetaPuzzle uses the literal concatenation of all plot keys as the
// answer, referencing every stop.
func FallbackMetaPuzzle(scenes []quest.SpotScene, plot quest.MainPlot) quest.MetaPuzzle {
	inputs := make([]string, 0, len(scenes))
	quoted := make([]string, 0, len(scenes))
	var answer strings.Builder
	for _, s := range scenes {
		inputs = append(inputs, s.SpotID)
		quoted = append(quoted, "「"+s.Reward.PlotKey+"」")
		answer.WriteString(s.Reward.PlotKey)
	}
	explanation := "各地点で手に入れた鍵を、めぐった順につなげた言葉が最後の答えとなる。"
	if outline := strings.TrimSpace(plot.FinalRevealOutline); outline != "" {
		explanation += outline
	}
	return quest.MetaPuzzle{
		Inputs:      inputs,
		Prompt:      fmt.Sprintf("これまでに集めた鍵 %s を、めぐった順につなげるとどんな言葉になるか。", strings.Join(quoted, "")),
		Answer:      answer.String(),
		Explanation: explanation,
	}
}
