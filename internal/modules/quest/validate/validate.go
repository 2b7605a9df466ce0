// Package validate scores generated stops and decides which must be
// regenerated. Everything here is pure: identical inputs give identical
// results.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/questweaver/internal/domain/quest"
)

const (
	MinSelfContainment = 0.5
	MinFactConnection  = 0.3
	MinNarrativeFit    = 0.3

	minHandoutRunes   = 40
	minRationaleRunes = 30
	minPromptRunes    = 15
)

type Options struct {
	// StrictPlotKeyUsage turns unused plot keys into warnings. Off by
	// default, which keeps the unused-key check permissive.
	StrictPlotKeyUsage bool
}

// triviaPatterns flag recall questions that outside knowledge answers.
var triviaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`何年に.*(建てられ|創建|建立|完成|開業|作られ)`),
	regexp.MustCompile(`(西暦|元号で)?何年(頃)?(に|の).*(できた|始まった|建て)`),
	regexp.MustCompile(`いつ.*(建てられ|創建され|建立され|作られ)`),
	regexp.MustCompile(`誰が.*(有名|知られ)`),
	regexp.MustCompile(`何で有名`),
	regexp.MustCompile(`(創建|建立|完成)(された)?年(は|を答え)`),
	regexp.MustCompile(`(?i)\bwho\s+is\s+.*\bfamous\s+for\b`),
	regexp.MustCompile(`(?i)\bwhat\s+is\s+.*\bfamous\s+for\b`),
	regexp.MustCompile(`(?i)\bwhat\s+year\s+was\s+.*\b(built|founded|constructed|opened)\b`),
	regexp.MustCompile(`(?i)\bwhen\s+was\s+.*\b(built|founded|constructed|opened)\b`),
}

var vagueTerms = []string{"なんとなく", "何となく", "様々な", "さまざまな", "いろいろ", "色々", "何か関係", "somehow", "various", "something"}

// IsTriviaQuestion reports whether a puzzle prompt reads like recall trivia.
func IsTriviaQuestion(prompt string) bool {
	for _, re := range triviaPatterns {
		if re.MatchString(prompt) {
			return true
		}
	}
	return false
}

func ScoreSpot(s quest.SpotScene) quest.SpotScores {
	return quest.SpotScores{
		SelfContainment: selfContainment(s),
		FactConnection:  factConnection(s),
		NarrativeFit:    narrativeFit(s),
		PuzzleQuality:   puzzleQuality(s),
	}
}

func selfContainment(s quest.SpotScene) float64 {
	score := 0.0
	switch n := runes(s.LoreCard.PlayerHandout); {
	case n >= minHandoutRunes:
		score += 0.3
	case n > 0:
		score += 0.15
	}
	score += countWeight(len(s.Puzzle.SolutionSteps), 2, 0.25, 0.1)
	if strings.TrimSpace(s.Puzzle.Answer) != "" {
		score += 0.25
	}
	score += countWeight(len(s.Puzzle.Hints), 2, 0.2, 0.1)
	return round(score)
}

func factConnection(s quest.SpotScene) float64 {
	score := 0.0
	if len(s.LoreCard.FactsUsed) > 0 {
		score += 0.4
	}
	if strings.TrimSpace(s.Reward.LoreReveal) != "" {
		score += 0.3
	}
	if strings.TrimSpace(s.LinkingRationale) != "" {
		score += 0.3
	}
	return round(score)
}

func narrativeFit(s quest.SpotScene) float64 {
	score := 0.0
	switch n := runes(s.LinkingRationale); {
	case n >= minRationaleRunes:
		score += 0.4
	case n > 0:
		score += 0.2
	}
	if name := strings.TrimSpace(s.SpotName); name != "" && strings.Contains(s.LinkingRationale, name) {
		score += 0.3
	}
	if strings.TrimSpace(s.LinkingRationale) != "" && !containsVague(s.LinkingRationale) {
		score += 0.3
	}
	return round(score)
}

func puzzleQuality(s quest.SpotScene) float64 {
	score := 0.0
	if runes(s.Puzzle.Prompt) >= minPromptRunes {
		score += 0.25
	}
	score += countWeight(len(s.Puzzle.SolutionSteps), 2, 0.2, 0.1)
	score += countWeight(len(s.Puzzle.Hints), 3, 0.2, 0.1)
	if s.Puzzle.Difficulty >= quest.MinPuzzleDifficulty && s.Puzzle.Difficulty <= quest.MaxPuzzleDifficulty {
		score += 0.15
	}
	if s.Puzzle.Type.Valid() {
		score += 0.2
	}
	return round(score)
}

// ValidateQuest scores every stop and checks the meta-puzzle.
func ValidateQuest(scenes []quest.SpotScene, plot quest.MainPlot, meta quest.MetaPuzzle, opts Options) quest.ValidationResult {
	res := quest.ValidationResult{
		Errors:     []quest.ValidationError{},
		Warnings:   []quest.ValidationWarning{},
		SpotScores: make(map[string]quest.SpotScores, len(scenes)),
	}
	addErr := func(id string, code quest.ErrorCode, msg string) {
		res.Errors = append(res.Errors, quest.ValidationError{SpotID: id, Code: code, Message: msg})
	}
	addWarn := func(id, msg string) {
		res.Warnings = append(res.Warnings, quest.ValidationWarning{SpotID: id, Message: msg})
	}

	for _, s := range scenes {
		sc := ScoreSpot(s)
		res.SpotScores[s.SpotID] = sc

		if sc.SelfContainment < MinSelfContainment {
			addErr(s.SpotID, quest.ErrNotSelfContained, fmt.Sprintf("self-containment score %.2f is below %.2f", sc.SelfContainment, MinSelfContainment))
		}
		if sc.FactConnection < MinFactConnection {
			addErr(s.SpotID, quest.ErrWeakFactConnection, fmt.Sprintf("fact-connection score %.2f is below %.2f", sc.FactConnection, MinFactConnection))
		}
		if sc.NarrativeFit < MinNarrativeFit {
			addErr(s.SpotID, quest.ErrWeakNarrative, fmt.Sprintf("narrative-fit score %.2f is below %.2f", sc.NarrativeFit, MinNarrativeFit))
		}
		if IsTriviaQuestion(s.Puzzle.Prompt) {
			addErr(s.SpotID, quest.ErrTriviaQuestion, "puzzle asks for recalled trivia instead of reasoning")
		}
		if isUnrelated(s) {
			addErr(s.SpotID, quest.ErrUnrelatedPuzzle, "puzzle is not tied to any fact of this spot")
		}

		if len(s.Puzzle.Hints) < 3 {
			addWarn(s.SpotID, "fewer than 3 hints; the near-answer rescue hint may be missing")
		}
		if strings.TrimSpace(s.Reward.PlotKey) == "" {
			addWarn(s.SpotID, "reward has no plot key")
		}
		if strings.TrimSpace(s.Reward.NextSpotHook) == "" {
			addWarn(s.SpotID, "reward has no hook into the next spot")
		}
	}

	if n := plot.PremiseLength(); n < quest.PremiseMinChars || n > quest.PremiseMaxChars {
		addWarn("PLOT", fmt.Sprintf("premise is %d characters, outside %d-%d", n, quest.PremiseMinChars, quest.PremiseMaxChars))
	}

	if unreferenced := unreferencedSpots(scenes, meta); len(scenes) > 0 && len(unreferenced)*2 > len(scenes) {
		addErr(quest.MetaSpotID, quest.ErrMetaPuzzleDisconnected,
			fmt.Sprintf("meta puzzle does not reference %s", strings.Join(unreferenced, ", ")))
	}
	if ok, unused := checkPlotKeyUsage(scenes, meta, opts); !ok {
		for _, id := range unused {
			addWarn(id, "plot key is not used by the meta puzzle")
		}
	}

	res.Passed = len(res.Errors) == 0
	return res
}

// GetRegenerationTargets returns distinct spot ids with a critical error, in
// first-seen order.
func GetRegenerationTargets(res quest.ValidationResult) []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range res.Errors {
		if !e.Code.IsCritical() || e.SpotID == quest.MetaSpotID || seen[e.SpotID] {
			continue
		}
		seen[e.SpotID] = true
		out = append(out, e.SpotID)
	}
	return out
}

// IssuesFor lists the messages of errors raised for one spot.
func IssuesFor(res quest.ValidationResult, spotID string) []string {
	var out []string
	for _, e := range res.Errors {
		if e.SpotID == spotID {
			out = append(out, string(e.Code)+": "+e.Message)
		}
	}
	return out
}

// isUnrelated is true when a puzzle cites no facts and its rationale does
// not even name the spot.
func isUnrelated(s quest.SpotScene) bool {
	if len(s.LoreCard.FactsUsed) > 0 {
		return false
	}
	name := strings.TrimSpace(s.SpotName)
	return name == "" || !strings.Contains(s.LinkingRationale, name)
}

func unreferencedSpots(scenes []quest.SpotScene, meta quest.MetaPuzzle) []string {
	ref := map[string]bool{}
	for _, id := range meta.Inputs {
		ref[strings.TrimSpace(id)] = true
	}
	var out []string
	for _, s := range scenes {
		if !ref[s.SpotID] {
			out = append(out, s.SpotID)
		}
	}
	sort.Strings(out)
	return out
}

// checkPlotKeyUsage finds plot keys that the meta puzzle neither lists nor
// mentions. Unless strict usage is requested it still reports ok.
func checkPlotKeyUsage(scenes []quest.SpotScene, meta quest.MetaPuzzle, opts Options) (bool, []string) {
	listed := map[string]bool{}
	for _, id := range meta.Inputs {
		listed[id] = true
	}
	text := meta.Prompt + "\n" + meta.Answer + "\n" + meta.Explanation
	var unused []string
	for _, s := range scenes {
		key := strings.TrimSpace(s.Reward.PlotKey)
		if listed[s.SpotID] || (key != "" && strings.Contains(text, key)) {
			continue
		}
		unused = append(unused, s.SpotID)
	}
	if !opts.StrictPlotKeyUsage {
		return true, unused
	}
	return len(unused) == 0, unused
}

func countWeight(n, want int, full, partial float64) float64 {
	switch {
	case n >= want:
		return full
	case n > 0:
		return partial
	}
	return 0
}

func containsVague(s string) bool {
	lower := strings.ToLower(s)
	for _, v := range vagueTerms {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

func runes(s string) int { return utf8.RuneCountInString(strings.TrimSpace(s)) }

func round(v float64) float64 { return math.Round(v*100) / 100 }
