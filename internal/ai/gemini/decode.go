package gemini

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/genai"
)

// ErrInvalidJSON is returned when a structured response cannot be decoded.
var ErrInvalidJSON = errors.New("Gemini response was not valid JSON.")

// decodeObject strips a markdown fence from raw and decodes the JSON object inside.
func decodeObject(raw string) (map[string]any, error) {
	cleaned := stripFence(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil || data == nil {
		return nil, ErrInvalidJSON
	}
	return data, nil
}

func stripFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}

	raw = strings.TrimSpace(strings.TrimPrefix(raw, "```"))
	if len(raw) >= 4 && strings.EqualFold(raw[:4], "json") {
		raw = strings.TrimSpace(raw[4:])
	}
	if idx := strings.LastIndex(raw, "```"); idx != -1 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}

// validator compiles the JSON Schema form of a response schema once.
type validator struct {
	name   string
	source *genai.Schema

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

func newValidator(name string, source *genai.Schema) *validator {
	return &validator{name: name, source: source}
}

func (v *validator) compile() {
	b, err := json.Marshal(jsonSchema(v.source))
	if err != nil {
		v.err = fmt.Errorf("marshal schema: %w", err)
		return
	}

	url := v.name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		v.err = fmt.Errorf("add schema: %w", err)
		return
	}
	v.compiled, v.err = compiler.Compile(url)
	if v.err != nil {
		v.err = fmt.Errorf("compile schema: %w", v.err)
	}
}

// Validate checks a decoded response against the schema.
func (v *validator) Validate(data map[string]any) error {
	v.once.Do(v.compile)
	if v.err != nil {
		return v.err
	}

	// round-trip so numbers carry the types the validator expects
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("%s response does not match schema: %w", v.name, err)
	}
	return nil
}

var (
	resumeValidator        = newValidator("resume", resumeSchema)
	projectReportValidator = newValidator("project_report", projectReportSchema)
	cvScoreValidator       = newValidator("cv_score", cvScoreSchema)
	projectScoreValidator  = newValidator("project_score", projectScoreSchema)
)
