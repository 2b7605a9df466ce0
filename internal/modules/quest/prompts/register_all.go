package prompts

func RegisterAll() {
	RegisterSpec(Spec{
		Name:       PromptStopCandidates,
		Version:    1,
		SchemaName: "stop_candidates_v1",
		Schema:     StopCandidatesSchema,
		Validators: []Validator{
			RequireNonEmpty("prompt", func(in Input) string { return in.Prompt }),
			RequirePositive("spot_count", func(in Input) int { return in.SpotCount }),
		},
		Body: `You are a location scout for a real-world walking mystery game in Japan.
Propose {{.SpotCount}} real, publicly accessible places that fit the request below.
The places must be within walking distance of each other (ideally under 800 m between neighbours).

Request: {{.Prompt}}
Difficulty: {{.Difficulty}}
{{- if .QuestTheme}}
Theme: {{.QuestTheme}}{{end}}
{{- range .SupportLines}}
- {{.}}{{end}}
{{- if .CenterHint}}
Search area: {{.CenterHint}}{{end}}

For each place give: the official name in Japanese, a one or two sentence summary,
3 to 7 short independent facts that can each be verified on their own, theme tags,
an approximate latitude/longitude, and the official website URL if one exists
(leave it empty when unsure). Never invent places or facts; prefer well
documented landmarks.`,
	})

	RegisterSpec(Spec{
		Name:       PromptSpotMotifs,
		Version:    1,
		SchemaName: "spot_motifs_v1",
		Schema:     SpotMotifsSchema,
		Validators: []Validator{
			RequireNonEmpty("spots", func(in Input) string { return in.SpotsJSON }),
		},
		Body: `You are the story editor of a Layton-style mystery walk.
Quest theme: {{.QuestTheme}}

Stops, in walking order (do not reorder or skip any):
{{.SpotsJSON}}

For every stop choose:
- scene_role: the first stop MUST be "intro", the last stop MUST be "finale", and at
  least one interior stop should be "turning_point". Other allowed roles are "rising",
  "climax_approach" and "red_herring_resolution".
- selected_facts: 1-3 facts from that stop's list worth dramatising (copy them verbatim).
- plot_key_type: what kind of token the stop hands to the final puzzle.
- suggested_puzzle_type: vary the archetypes across the route.
- motif_description: one sentence on how the stop serves the story.
Return exactly one entry per stop using its id.`,
	})

	RegisterSpec(Spec{
		Name:       PromptMainPlot,
		Version:    1,
		SchemaName: "main_plot_v1",
		Schema:     MainPlotSchema,
		Validators: []Validator{
			RequireNonEmpty("motifs", func(in Input) string { return in.MotifsJSON }),
		},
		Body: `You are writing the single overarching story of a mystery walk.
Quest theme: {{.QuestTheme}}
{{- range .SupportLines}}
- {{.}}{{end}}

Stops and their assigned story roles:
{{.MotifsJSON}}

Write in Japanese:
- premise: 500-800 characters, 3-5 paragraphs separated by blank lines, present tense,
  addressed to the player as "あなた", ending with a rhetorical question. Never reveal
  the solution, the ending or any twist.
- goal: what the player must achieve, one sentence.
- central_mystery: the question the whole walk answers, one sentence.
- final_reveal_outline: how the collected clues resolve the mystery (hidden from players).`,
	})

	RegisterSpec(Spec{
		Name:       PromptSpotPuzzle,
		Version:    1,
		SchemaName: "spot_puzzle_v1",
		Schema:     SpotPuzzleSchema,
		Validators: []Validator{
			RequireNonEmpty("spot_name", func(in Input) string { return in.SpotName }),
			RequireNonEmpty("puzzle_type", func(in Input) string { return in.PuzzleType }),
			RequireNonEmpty("plot", func(in Input) string { return in.PlotJSON }),
		},
		Body: `You design one stop of a Layton-style mystery walk. Write all player-facing text in Japanese.

Story so far (fixed, do not contradict):
{{.PlotJSON}}

Route position: stop {{inc .SpotIndex}} of {{.TotalSpots}} ({{.SceneRole}}).
{{.NarrativeContext}}

Stop: {{.SpotName}} ({{.SpotID}})
Summary: {{.SpotSummary}}
Facts to dramatise:
{{.FactsJSON}}

Puzzle archetype: {{.PuzzleType}}
{{.PuzzleGuide}}
Example of the style: {{.PuzzleExample}}
Target difficulty: {{.PuzzleLevel}} on a 1-5 scale.
The stop's reward.plot_key must be a short {{.PlotKeyType}} token that will feed the final puzzle.

Hard rules:
1. The puzzle must be solvable using ONLY lore_card.player_handout and puzzle.rules. No outside knowledge.
2. Never ask trivia such as "何年に建てられたか" or "誰が有名か". The answer must be reasoned, not recalled.
3. The puzzle must grow out of the selected facts; explain the link in linking_rationale, naming {{.SpotName}}.
4. hints go from abstract to concrete: at least an abstract nudge, a concrete pointer and a near-answer rescue.
5. solution_steps list every reasoning step in order.
{{- if .PreviousIssues}}

A previous draft for this stop was rejected for:
{{- range .PreviousIssues}}
- {{.}}{{end}}
Fix these problems.{{end}}`,
	})

	RegisterSpec(Spec{
		Name:       PromptMetaPuzzle,
		Version:    1,
		SchemaName: "meta_puzzle_v1",
		Schema:     MetaPuzzleSchema,
		Validators: []Validator{
			RequireNonEmpty("scenes", func(in Input) string { return in.ScenesJSON }),
		},
		Body: `You design the final puzzle of a mystery walk. The player has collected one plot key per stop.

Story (including the hidden reveal outline):
{{.PlotJSON}}

Collected keys by stop:
{{.ScenesJSON}}

Write a closing puzzle in Japanese whose answer combines ALL of the keys
({{range $i, $k := .PlotKeys}}{{if $i}}, {{end}}{{$k}}{{end}}).
inputs must list every stop id. explanation must show how the combined answer
resolves the mystery according to the reveal outline.`,
	})

	RegisterSpec(Spec{
		Name:       PromptQuestTitle,
		Version:    1,
		SchemaName: "quest_title_v1",
		Schema:     QuestTitleSchema,
		Validators: []Validator{
			RequireNonEmpty("plot", func(in Input) string { return in.PlotJSON }),
		},
		Body: `Give this mystery walk a short, evocative Japanese title (at most 20 characters)
that hints at the mystery without spoiling it.

Request: {{.Prompt}}
Story:
{{.PlotJSON}}`,
	})
}

func StopCandidatesSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"spots": ArraySchema(ObjectSchema(map[string]any{
			"name":         StringSchema(),
			"summary":      StringSchema(),
			"facts":        StringArraySchema(),
			"theme_tags":   StringArraySchema(),
			"lat":          NumberSchema(),
			"lng":          NumberSchema(),
			"official_url": StringSchema(),
		}, "name", "summary", "facts", "lat", "lng")),
	}, "spots")
}

func SpotMotifsSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"motifs": ArraySchema(ObjectSchema(map[string]any{
			"spot_id":               StringSchema(),
			"selected_facts":        StringArraySchema(),
			"scene_role":            EnumSchema("intro", "rising", "turning_point", "climax_approach", "red_herring_resolution", "finale"),
			"plot_key_type":         EnumSchema("keyword", "number", "symbol", "name", "date"),
			"suggested_puzzle_type": EnumSchema("logic", "pattern", "cipher", "wordplay", "lateral", "arithmetic"),
			"motif_description":     StringSchema(),
		}, "spot_id", "selected_facts", "scene_role", "plot_key_type", "suggested_puzzle_type")),
	}, "motifs")
}

func MainPlotSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"premise":              StringSchema(),
		"goal":                 StringSchema(),
		"central_mystery":      StringSchema(),
		"final_reveal_outline": StringSchema(),
	}, "premise", "goal", "central_mystery", "final_reveal_outline")
}

func SpotPuzzleSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"lore_card": ObjectSchema(map[string]any{
			"narrative":      StringSchema(),
			"facts_used":     StringArraySchema(),
			"player_handout": StringSchema(),
		}, "narrative", "facts_used", "player_handout"),
		"puzzle": ObjectSchema(map[string]any{
			"type":           EnumSchema("logic", "pattern", "cipher", "wordplay", "lateral", "arithmetic"),
			"prompt":         StringSchema(),
			"rules":          StringSchema(),
			"answer":         StringSchema(),
			"solution_steps": StringArraySchema(),
			"hints":          StringArraySchema(),
			"difficulty":     IntRangeSchema(1, 5),
		}, "type", "prompt", "answer", "solution_steps", "hints", "difficulty"),
		"reward": ObjectSchema(map[string]any{
			"lore_reveal":    StringSchema(),
			"plot_key":       StringSchema(),
			"next_spot_hook": StringSchema(),
		}, "lore_reveal", "plot_key"),
		"linking_rationale": StringSchema(),
	}, "lore_card", "puzzle", "reward", "linking_rationale")
}

func MetaPuzzleSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"inputs":      StringArraySchema(),
		"prompt":      StringSchema(),
		"answer":      StringSchema(),
		"explanation": StringSchema(),
	}, "inputs", "prompt", "answer", "explanation")
}

func QuestTitleSchema() map[string]any {
	return ObjectSchema(map[string]any{"title": StringSchema()}, "title")
}
