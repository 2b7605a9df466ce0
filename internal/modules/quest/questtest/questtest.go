// Package questtest provides a scripted language model and canned replies
// for exercising the quest pipeline without network access.
package questtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/yungbote/questweaver/internal/domain/quest"
)

// Schema names that identify each prompt.
const (
	Stops  = "stop_candidates_v1"
	Motifs = "spot_motifs_v1"
	Plot   = "main_plot_v1"
	Puzzle = "spot_puzzle_v1"
	Meta   = "meta_puzzle_v1"
	Title  = "quest_title_v1"
)

var ErrUnscripted = errors.New("questtest: no scripted reply")

var stopLine = regexp.MustCompile(`(?m)^Stop: .* \((S\d+)\)$`)

// LLM replays queued replies per prompt. A reply is a string or an error;
// the last reply for a key repeats once the queue is drained.
type LLM struct {
	mu      sync.Mutex
	replies map[string][]any
	calls   map[string]int
}

func NewLLM() *LLM {
	return &LLM{replies: map[string][]any{}, calls: map[string]int{}}
}

// On queues replies for a schema name.
func (l *LLM) On(schema string, replies ...any) *LLM {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replies[schema] = append(l.replies[schema], replies...)
	return l
}

// OnSpot queues puzzle replies for one spot id. Spots without their own
// queue use the replies registered for Puzzle.
func (l *LLM) OnSpot(spotID string, replies ...any) *LLM {
	return l.On(Puzzle+"/"+spotID, replies...)
}

// Calls reports how many prompts were routed to key.
func (l *LLM) Calls(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[key]
}

func (l *LLM) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	schema := schemaOf(prompt)
	keys := []string{schema}
	if schema == Puzzle {
		if m := stopLine.FindStringSubmatch(prompt); m != nil {
			keys = []string{Puzzle + "/" + m[1], Puzzle}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		l.calls[k]++
	}
	for _, k := range keys {
		q := l.replies[k]
		if len(q) == 0 {
			continue
		}
		r := q[0]
		if len(q) > 1 {
			l.replies[k] = q[1:]
		}
		switch v := r.(type) {
		case error:
			return "", v
		case string:
			return v, nil
		default:
			return "", fmt.Errorf("questtest: unsupported reply %T", r)
		}
	}
	return "", fmt.Errorf("%w for %s", ErrUnscripted, schema)
}

func schemaOf(prompt string) string {
	for _, s := range []string{Stops, Motifs, Plot, Puzzle, Meta, Title} {
		if strings.Contains(prompt, "("+s+")") {
			return s
		}
	}
	return ""
}

func fenced(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return "```json\n" + string(b) + "\n```"
}

type Candidate struct {
	Name    string
	Summary string
	Facts   []string
	Lat     float64
	Lng     float64
}

func StopsReply(cands ...Candidate) string {
	spots := make([]map[string]any, 0, len(cands))
	for _, c := range cands {
		spots = append(spots, map[string]any{
			"name":       c.Name,
			"summary":    c.Summary,
			"facts":      c.Facts,
			"theme_tags": []string{"history"},
			"lat":        c.Lat,
			"lng":        c.Lng,
		})
	}
	return fenced(map[string]any{"spots": spots})
}

// MotifsReply assigns positional roles to the given spot ids.
func MotifsReply(ids ...string) string {
	motifs := make([]map[string]any, 0, len(ids))
	for i, id := range ids {
		role := quest.RoleRising
		switch {
		case i == 0:
			role = quest.RoleIntro
		case i == len(ids)-1:
			role = quest.RoleFinale
		}
		motifs = append(motifs, map[string]any{
			"spot_id":               id,
			"selected_facts":        []string{},
			"scene_role":            role,
			"plot_key_type":         quest.PlotKeyKeyword,
			"suggested_puzzle_type": quest.PuzzleTypes[i%len(quest.PuzzleTypes)],
			"motif_description":     "記録に残された印をたどる",
		})
	}
	return fenced(map[string]any{"motifs": motifs})
}

// Premise is a 600-character premise.
var Premise = strings.Repeat("古い地図の余白に、誰かが小さな印を残していた。", 25)

func PlotReply() string {
	return fenced(map[string]any{
		"premise":              Premise,
		"goal":                 "三つの印を集めて地図の持ち主を突き止める。",
		"central_mystery":      "地図に印を残したのは誰なのか。",
		"final_reveal_outline": "印を並べると持ち主の名前が現れる。",
	})
}

// PuzzleReply is a self-contained reasoning puzzle for spotName.
func PuzzleReply(spotName, prompt, answer string) string {
	return fenced(map[string]any{
		"lore_card": map[string]any{
			"narrative":      spotName + "に着くと、掲示板に一枚の紙が貼られていた。",
			"facts_used":     []string{spotName + "の記録"},
			"player_handout": "紙には三つの数字と一つの矢印が描かれている。数字は左から順に三、一、四。矢印は右を向いている。",
		},
		"puzzle": map[string]any{
			"type":           quest.PuzzleLogic,
			"prompt":         prompt,
			"answer":         answer,
			"solution_steps": []string{"数字を左から読む。", "矢印の向きに従って並べ替える。"},
			"hints":          []string{"並び順に注目しよう。", "矢印は読む向きを示している。", "答えは数字を並べたものだ。"},
			"difficulty":     3,
		},
		"reward": map[string]any{
			"lore_reveal":    "紙の裏には地図の一部が描かれていた。",
			"plot_key":       answer,
			"next_spot_hook": "矢印の先に次の目的地がある。",
		},
		"linking_rationale": spotName + "の掲示板に残る記録をそのまま謎の材料にしている。",
	})
}

func MetaReply(answer string, ids ...string) string {
	return fenced(map[string]any{
		"inputs":      ids,
		"prompt":      "集めた鍵を順に並べよ。",
		"answer":      answer,
		"explanation": "各地点の鍵を順につなげると答えになる。",
	})
}

func TitleReply(title string) string {
	return fenced(map[string]any{"title": title})
}

// Walk is a three-stop route around Tokyo Station, each stop well under
// 800 m from the next.
var Walk = []Candidate{
	{Name: "東京駅丸の内駅舎", Summary: "赤レンガの駅舎", Facts: []string{"赤レンガ造りの駅舎", "ドームの天井に干支の彫刻がある"}, Lat: 35.6812, Lng: 139.7671},
	{Name: "行幸通り", Summary: "皇居へ続く並木道", Facts: []string{"イチョウ並木が続く", "皇居へ一直線に伸びる"}, Lat: 35.6823, Lng: 139.7632},
	{Name: "和田倉噴水公園", Summary: "噴水のある公園", Facts: []string{"噴水が三つある", "濠に面している"}, Lat: 35.6836, Lng: 139.7606},
}

// ScriptWalk scripts a complete, passing generation over Walk.
func ScriptWalk(l *LLM) *LLM {
	ids := make([]string, len(Walk))
	for i := range Walk {
		ids[i] = quest.SpotID(i)
	}
	l.On(Stops, StopsReply(Walk...))
	l.On(Motifs, MotifsReply(ids...))
	l.On(Plot, PlotReply())
	for i, c := range Walk {
		l.OnSpot(ids[i], PuzzleReply(c.Name, "紙に描かれた数字を矢印の向きに並べると、どんな数になるか。", fmt.Sprintf("31%d", i+4)))
	}
	l.On(Meta, MetaReply("314315316", ids...))
	l.On(Title, TitleReply("赤レンガに眠る地図"))
	return l
}
