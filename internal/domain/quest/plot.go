package quest

import "unicode/utf8"

type MainPlot struct {
	Premise            string `json:"premise"`
	Goal               string `json:"goal"`
	CentralMystery     string `json:"central_mystery"`
	FinalRevealOutline string `json:"final_reveal_outline"`
}

const (
	PremiseMinChars = 500
	PremiseMaxChars = 800
)

// PremiseLength counts characters, not bytes.
func (p MainPlot) PremiseLength() int { return utf8.RuneCountInString(p.Premise) }
