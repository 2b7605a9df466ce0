package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Spec is the declaration format for a prompt. Body is a text/template
// rendered against Input.
type Spec struct {
	Name       PromptName
	Version    int
	SchemaName string
	Schema     func() map[string]any
	Body       string
	Validators []Validator
}

func MakeTemplate(s Spec) (Template, error) {
	if strings.TrimSpace(string(s.Name)) == "" {
		return Template{}, fmt.Errorf("missing prompt name")
	}
	if s.Version <= 0 {
		return Template{}, fmt.Errorf("invalid version for %s", s.Name)
	}
	if s.Schema == nil {
		return Template{}, fmt.Errorf("missing schema func for %s", s.Name)
	}
	bodyT, err := template.New(string(s.Name)).Option("missingkey=zero").Funcs(funcs).Parse(s.Body)
	if err != nil {
		return Template{}, fmt.Errorf("%s template parse: %w", s.Name, err)
	}
	t := Template{
		Name:       s.Name,
		Version:    s.Version,
		SchemaName: s.SchemaName,
		Schema:     s.Schema,
		Render: func(in Input) (string, error) {
			var b bytes.Buffer
			if err := bodyT.Execute(&b, in); err != nil {
				return "", err
			}
			return strings.TrimSpace(b.String()), nil
		},
	}
	if len(s.Validators) > 0 {
		t.Validate = func(in Input) error {
			for _, v := range s.Validators {
				if err := v(in); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return t, nil
}

func RegisterSpec(s Spec) {
	t, err := MakeTemplate(s)
	if err != nil {
		panic(err)
	}
	Register(t)
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}
