package prompts

type PromptName string

const (
	PromptStopCandidates PromptName = "stop_candidates"
	PromptSpotMotifs     PromptName = "spot_motifs"
	PromptMainPlot       PromptName = "main_plot"
	PromptSpotPuzzle     PromptName = "spot_puzzle"
	PromptMetaPuzzle     PromptName = "meta_puzzle"
	PromptQuestTitle     PromptName = "quest_title"
)
