package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/validate"
)

// loadQuest reads either a bare quest or a preview/payload pair.
func loadQuest(path string) (quest.QuestOutput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return quest.QuestOutput{}, err
	}
	var dual quest.QuestDualOutput
	if err := json.Unmarshal(raw, &dual); err == nil && len(dual.Payload.Spots) > 0 {
		return dual.Payload, nil
	}
	var q quest.QuestOutput
	if err := json.Unmarshal(raw, &q); err != nil {
		return quest.QuestOutput{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(q.Spots) == 0 {
		return quest.QuestOutput{}, fmt.Errorf("%s: quest has no spots", path)
	}
	return q, nil
}

func newValidateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate <quest.json>",
		Short: "Score a generated quest and list the stops that would be regenerated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := loadQuest(args[0])
			if err != nil {
				return err
			}
			res := validate.ValidateQuest(q.Spots, q.MainPlot, q.MetaPuzzle, validate.Options{StrictPlotKeyUsage: strict})
			report := struct {
				quest.ValidationResult
				RegenerationTargets []string `json:"regeneration_targets"`
			}{res, validate.GetRegenerationTargets(res)}
			if err := writeJSON(cmd.OutOrStdout(), "", report); err != nil {
				return err
			}
			if !res.Passed {
				return fmt.Errorf("quest failed validation with %d error(s)", len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict-plot-keys", false, "warn about plot keys the meta puzzle ignores (env: QUESTGEN_STRICT_PLOT_KEYS)")
	bindEnv(cmd.Flags())
	return cmd
}
