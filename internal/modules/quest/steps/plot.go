package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/prompts"
)

type mainPlotResponse struct {
	Premise            string `json:"premise"`
	Goal               string `json:"goal"`
	CentralMystery     string `json:"central_mystery"`
	FinalRevealOutline string `json:"final_reveal_outline"`
}

func (r *mainPlotResponse) Validate() error {
	return nonEmpty(map[string]string{
		"premise":              r.Premise,
		"goal":                 r.Goal,
		"central_mystery":      r.CentralMystery,
		"final_reveal_outline": r.FinalRevealOutline,
	})
}

type PlotInput struct {
	Spots      []quest.SpotInput
	Motifs     []quest.SpotMotif
	QuestTheme string
	// Context carries optional caller hints (protagonist, ending, ...).
	Context []string
}

// CreateMainPlot writes the single narrative shared by every stop. The
// fallback always yields a usable plot.
func CreateMainPlot(ctx context.Context, deps Deps, in PlotInput) Outcome[quest.MainPlot] {
	var resp mainPlotResponse
	err := generate(ctx, deps, "plot", prompts.PromptMainPlot, prompts.Input{
		QuestTheme:   in.QuestTheme,
		SupportLines: in.Context,
		MotifsJSON:   mustJSON(in.Motifs),
	}, &resp, map[string]any{"spots": len(in.Spots)})
	if err == nil {
		plot := quest.MainPlot{
			Premise:            strings.TrimSpace(resp.Premise),
			Goal:               strings.TrimSpace(resp.Goal),
			CentralMystery:     strings.TrimSpace(resp.CentralMystery),
			FinalRevealOutline: strings.TrimSpace(resp.FinalRevealOutline),
		}
		if n := plot.PremiseLength(); n < quest.PremiseMinChars || n > quest.PremiseMaxChars {
			deps.log().Warn("premise length outside target range", "chars", n)
		}
		return Generated(plot)
	}
	noteFallback(deps, "plot", err)
	return FellBack(FallbackPlot(in.Spots, in.QuestTheme), err)
}

// FallbackPlot builds a templated plot around the concatenated spot names.
func FallbackPlot(spots []quest.SpotInput, questTheme string) quest.MainPlot {
	names := make([]string, 0, len(spots))
	for _, s := range spots {
		names = append(names, s.Name)
	}
	route := strings.Join(names, "、")
	if route == "" {
		route = "この街"
	}
	theme := strings.TrimSpace(questTheme)
	if theme == "" {
		theme = "街に眠る謎"
	}
	first, last := route, route
	if len(names) > 0 {
		first, last = names[0], names[len(names)-1]
	}

	premise := strings.Join([]string{
		fmt.Sprintf("あなたは今、%sの入り口に立っている。手元に届いたのは差出人不明の一通の手紙。そこには「%sをめぐれ。答えは歩いた者にだけ見える」とだけ記されている。", first, route),
		fmt.Sprintf("手紙のテーマは「%s」。道ゆく人々は何も知らないふりをしているが、街の記録や石碑、看板の言葉の中に、確かに小さな手がかりが散りばめられている。ひとつの場所で謎を解くたびに、あなたは次の場所へ続く鍵を手に入れる。", theme),
		fmt.Sprintf("鍵はそれぞれ一見ばらばらで、意味をなさないように見える。しかし%sにたどり着いたとき、集めた鍵を正しく並べれば、手紙の差出人が本当に伝えたかったことが浮かび上がるはずだ。急ぐ必要はない。目の前の景色と、手渡された記録だけを頼りに考えればいい。", last),
		"この街は、あなたが最後の答えにたどり着くのを静かに待っている。さあ、最初の一歩を踏み出す準備はできているだろうか？",
	}, "\n\n")

	return quest.MainPlot{
		Premise:            premise,
		Goal:               fmt.Sprintf("%sをめぐって各地点の鍵を集め、最後の謎を解き明かす。", route),
		CentralMystery:     "差出人不明の手紙は、集めた鍵で何を伝えようとしているのか。",
		FinalRevealOutline: fmt.Sprintf("%sで得た鍵を順に組み合わせると、手紙の差出人が残した言葉になる。", route),
	}
}
