package realtime

import "strings"

type SSEEvent string

const (
	SSEEventQuestRunCreated  SSEEvent = "QuestRunCreated"
	SSEEventQuestRunProgress SSEEvent = "QuestRunProgress"
	SSEEventQuestPlotReady   SSEEvent = "QuestPlotReady"
	SSEEventQuestSpotReady   SSEEvent = "QuestSpotReady"
	SSEEventQuestRunDone     SSEEvent = "QuestRunDone"
	SSEEventQuestRunFailed   SSEEvent = "QuestRunFailed"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

const runChannelPrefix = "quest_run:"

// RunChannel is the channel carrying progress for one quest run.
func RunChannel(runID string) string { return runChannelPrefix + strings.TrimSpace(runID) }

func IsRunChannel(channel string) bool {
	return strings.HasPrefix(channel, runChannelPrefix) && len(channel) > len(runChannelPrefix)
}
