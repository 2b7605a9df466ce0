package steps

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/prompts"
)

const maxTitleRunes = 40

type titleResponse struct {
	Title string `json:"title"`
}

func (r *titleResponse) Validate() error {
	r.Title = strings.Trim(strings.TrimSpace(r.Title), "「」『』\"")
	if r.Title == "" {
		return errors.New("title: empty")
	}
	if utf8.RuneCountInString(r.Title) > maxTitleRunes {
		return errors.New("title: too long")
	}
	return nil
}

func GenerateTitle(ctx context.Context, deps Deps, req quest.QuestGenerationRequest, plot quest.MainPlot, scenes []quest.SpotScene) Outcome[string] {
	var resp titleResponse
	err := generate(ctx, deps, "title", prompts.PromptQuestTitle, prompts.Input{
		Prompt:   req.Prompt,
		PlotJSON: mustJSON(plot),
	}, &resp, nil)
	if err == nil {
		return Generated(resp.Title)
	}
	noteFallback(deps, "title", err)
	return FellBack(FallbackTitle(req, scenes), err)
}

func FallbackTitle(req quest.QuestGenerationRequest, scenes []quest.SpotScene) string {
	if len(scenes) > 0 && strings.TrimSpace(scenes[0].SpotName) != "" {
		return scenes[0].SpotName + "に眠る謎"
	}
	p := []rune(strings.TrimSpace(req.Prompt))
	if len(p) > 20 {
		p = p[:20]
	}
	if len(p) == 0 {
		return "街に眠る謎"
	}
	return string(p)
}
