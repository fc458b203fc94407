package gemini

import (
	"context"
	"strings"
	"testing"

	"github.com/spigell/cv-evaluator/internal/evaluation"
	"github.com/spigell/cv-evaluator/internal/scoring"

	"google.golang.org/genai"
)

const cvScoreResponse = `{
  "technical_skills_match": 4, "technical_skills_notes": "Go, SQL",
  "experience_level": 3, "experience_level_notes": "4 years",
  "relevant_achievements": 5, "relevant_achievements_notes": "scaled systems",
  "cultural_collaboration_fit": 4, "cultural_collaboration_fit_notes": "mentoring",
  "technical_skills_weight": 50, "experience_level_weight": null,
  "cv_match_rate": 0.8, "cv_feedback": "Strong backend profile."
}`

const projectScoreResponse = `{
  "correctness": 4, "correctness_notes": "ok",
  "code_quality_structure": 4, "code_quality_structure_notes": "ok",
  "resilience_error_handling": 3, "resilience_error_handling_notes": "ok",
  "documentation_explanation": 5, "documentation_explanation_notes": "ok",
  "creativity_bonus": 2, "creativity_bonus_notes": "ok",
  "project_score": 3.9, "project_feedback": "Solid."
}`

func TestScoreResume(t *testing.T) {
	stub := &stubGenerator{responses: []string{cvScoreResponse}}
	scorer := NewScorer(stub, nil, 0, nil, nil)

	got, err := scorer.ScoreResume(context.Background(), evaluation.ScoreInput{
		JobTitle:  "Backend Engineer",
		Rubric:    "CV rubric text",
		Reference: "Job description text",
		Document:  map[string]any{"summary": "Go developer"},
	})
	if err != nil {
		t.Fatalf("ScoreResume: %v", err)
	}

	// model hints win, missing and null hints take the defaults
	wantWeights := map[string]float64{
		"technical_skills_weight":           50,
		"experience_level_weight":           25,
		"relevant_achievements_weight":      20,
		"cultural_collaboration_fit_weight": 15,
	}
	for key, want := range wantWeights {
		if got := scoring.Number(got[key]); got != want {
			t.Fatalf("%s = %v, want %v", key, got, want)
		}
	}

	prompt := stub.requests[0].Prompt
	for _, part := range []string{`"Backend Engineer"`, "CV rubric text", "Job description text", `"summary": "Go developer"`} {
		if !strings.Contains(prompt, part) {
			t.Fatalf("prompt misses %q", part)
		}
	}
	if strings.Contains(prompt, "{{") {
		t.Fatalf("unrendered placeholder in prompt")
	}
	if stub.requests[0].Schema != cvScoreSchema {
		t.Fatalf("cv score schema not sent")
	}
}

func TestScoreProjectReportDefaultWeights(t *testing.T) {
	stub := &stubGenerator{responses: []string{projectScoreResponse}}
	scorer := NewScorer(stub, nil, 0, nil, nil)

	got, err := scorer.ScoreProjectReport(context.Background(), evaluation.ScoreInput{JobTitle: "Backend Engineer"})
	if err != nil {
		t.Fatalf("ScoreProjectReport: %v", err)
	}

	// 0.3*4 + 0.25*4 + 0.2*3 + 0.15*5 + 0.1*2 = 3.75
	if score := scoring.ProjectScore(got); score != 3.75 {
		t.Fatalf("ProjectScore = %v, want 3.75", score)
	}
	if !strings.Contains(stub.requests[0].Prompt, "(none provided)") {
		t.Fatalf("missing rubric should be marked as absent")
	}
}

func TestScoreRejectsOutOfSchema(t *testing.T) {
	stub := &stubGenerator{responses: []string{`{"correctness": "high"}`}}
	scorer := NewScorer(stub, nil, 0, nil, nil)

	if _, err := scorer.ScoreProjectReport(context.Background(), evaluation.ScoreInput{}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSummarize(t *testing.T) {
	stub := &stubGenerator{responses: []string{"Strong candidate. Hire."}}
	summarizer := NewSummarizer(stub, nil, 0)

	got, err := summarizer.Summarize(context.Background(),
		map[string]any{"cv_match_rate": 0.8},
		map[string]any{"project_score": 4.2},
	)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Strong candidate. Hire." {
		t.Fatalf("summary = %q", got)
	}

	req := stub.requests[0]
	if req.Schema != nil {
		t.Fatalf("summary must be plain text")
	}
	if !strings.Contains(req.Prompt, `"cv_match_rate": 0.8`) || !strings.Contains(req.Prompt, `"project_score": 4.2`) {
		t.Fatalf("prompt misses scored results: %q", req.Prompt)
	}
}

func TestJSONSchemaRendering(t *testing.T) {
	s := jsonSchema(object(map[string]*genai.Schema{
		"name": stringField(true),
		"tags": stringList(false),
	}, "name"))

	props := s["properties"].(map[string]any)
	name := props["name"].(map[string]any)
	if types, ok := name["type"].([]any); !ok || types[0] != "string" || types[1] != "null" {
		t.Fatalf("nullable string rendered as %v", name["type"])
	}
	tags := props["tags"].(map[string]any)
	if tags["type"] != "array" || tags["items"].(map[string]any)["type"] != "string" {
		t.Fatalf("list rendered as %v", tags)
	}
	if s["type"] != "object" || s["required"].([]any)[0] != "name" {
		t.Fatalf("object rendered as %v", s)
	}
}
