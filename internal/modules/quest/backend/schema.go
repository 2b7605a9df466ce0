package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/llmjson"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
)

// textOutputKeys are output variables that may carry the result as a JSON
// string instead of an object.
var textOutputKeys = []string{"result", "text", "output", "quest"}

// ParseWorkflowOutput checks a workflow engine's outputs for the dual-output
// shape and decodes it. Missing preview, payload, spots or title is an
// ErrSchemaValidation.
func ParseWorkflowOutput(raw json.RawMessage) (*quest.QuestDualOutput, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: outputs are not an object: %v", pipeline.ErrSchemaValidation, err)
	}
	if _, ok := fields["payload"]; !ok {
		for _, k := range textOutputKeys {
			var text string
			if v, ok := fields[k]; ok && json.Unmarshal(v, &text) == nil && strings.TrimSpace(text) != "" {
				var inner json.RawMessage
				if err := llmjson.Decode(text, &inner); err != nil {
					return nil, fmt.Errorf("%w: %s is not JSON: %v", pipeline.ErrSchemaValidation, k, err)
				}
				return ParseWorkflowOutput(inner)
			}
		}
	}

	var shape struct {
		Preview *struct {
			Title string `json:"title"`
		} `json:"preview"`
		Payload *struct {
			Title string            `json:"title"`
			Spots []json.RawMessage `json:"spots"`
		} `json:"payload"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSchemaValidation, err)
	}
	switch {
	case shape.Preview == nil:
		return nil, fmt.Errorf("%w: missing preview", pipeline.ErrSchemaValidation)
	case shape.Payload == nil:
		return nil, fmt.Errorf("%w: missing payload", pipeline.ErrSchemaValidation)
	case len(shape.Payload.Spots) == 0:
		return nil, fmt.Errorf("%w: payload has no spots", pipeline.ErrSchemaValidation)
	}
	title := firstNonEmpty(shape.Title, shape.Preview.Title, shape.Payload.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: missing title", pipeline.ErrSchemaValidation)
	}

	var out quest.QuestDualOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSchemaValidation, err)
	}
	if out.Preview.Title == "" {
		out.Preview.Title = title
	}
	if out.Payload.Title == "" {
		out.Payload.Title = title
	}
	if out.QuestID == "" {
		out.QuestID = out.Payload.QuestID
	}
	if out.Payload.QuestID == "" {
		out.Payload.QuestID = out.QuestID
	}
	if len(out.Preview.SpotNames) == 0 {
		for _, s := range out.Payload.Spots {
			out.Preview.SpotNames = append(out.Preview.SpotNames, s.SpotName)
		}
	}
	return &out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
