package prompts

func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	req := make([]any, 0, len(required))
	for _, r := range required {
		req = append(req, r)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   req,
	}
}

func ArraySchema(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func StringSchema() map[string]any { return map[string]any{"type": "string"} }

func StringArraySchema() map[string]any { return ArraySchema(StringSchema()) }

func NumberSchema() map[string]any { return map[string]any{"type": "number"} }

func IntRangeSchema(min, max int) map[string]any {
	return map[string]any{"type": "integer", "minimum": min, "maximum": max}
}

func EnumSchema(values ...string) map[string]any {
	arr := make([]any, 0, len(values))
	for _, v := range values {
		arr = append(arr, v)
	}
	return map[string]any{"type": "string", "enum": arr}
}
