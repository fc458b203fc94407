package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spigell/cv-evaluator/internal/evaluation"
	"github.com/spigell/cv-evaluator/internal/scoring"

	"go.uber.org/zap"
)

// Weights are rubric weight hints in percent keyed by the dimension's weight key.
type Weights map[string]float64

func DefaultCVWeights() Weights {
	return Weights{
		"technical_skills_weight":           40,
		"experience_level_weight":           25,
		"relevant_achievements_weight":      20,
		"cultural_collaboration_fit_weight": 15,
	}
}

func DefaultProjectWeights() Weights {
	return Weights{
		"correctness_weight":               30,
		"code_quality_structure_weight":    25,
		"resilience_error_handling_weight": 20,
		"documentation_explanation_weight": 15,
		"creativity_bonus_weight":          10,
	}
}

// Scorer rates structured documents against rubric text.
type Scorer struct {
	caller
	cvWeights      Weights
	projectWeights Weights
}

var _ evaluation.Scorer = (*Scorer)(nil)

// NewScorer builds a scorer. Nil weights fall back to the defaults.
func NewScorer(gen generator, log *zap.Logger, maxLogLength int, cvWeights, projectWeights Weights) *Scorer {
	if cvWeights == nil {
		cvWeights = DefaultCVWeights()
	}
	if projectWeights == nil {
		projectWeights = DefaultProjectWeights()
	}
	return &Scorer{
		caller:         newCaller(gen, log, maxLogLength),
		cvWeights:      cvWeights,
		projectWeights: projectWeights,
	}
}

func (s *Scorer) ScoreResume(ctx context.Context, in evaluation.ScoreInput) (map[string]any, error) {
	prompt, err := scorePrompt(scoreCVTemplate, in)
	if err != nil {
		return nil, err
	}

	scored, err := s.object(ctx, "score_resume", Request{
		System: systemInstruction,
		Prompt: prompt,
		Schema: cvScoreSchema,
	}, cvScoreValidator)
	if err != nil {
		return nil, err
	}

	fillWeights(scored, scoring.CVDimensions, s.cvWeights)
	return scored, nil
}

func (s *Scorer) ScoreProjectReport(ctx context.Context, in evaluation.ScoreInput) (map[string]any, error) {
	prompt, err := scorePrompt(scoreProjectTemplate, in)
	if err != nil {
		return nil, err
	}

	scored, err := s.object(ctx, "score_project_report", Request{
		System: systemInstruction,
		Prompt: prompt,
		Schema: projectScoreSchema,
	}, projectScoreValidator)
	if err != nil {
		return nil, err
	}

	fillWeights(scored, scoring.ProjectDimensions, s.projectWeights)
	return scored, nil
}

func scorePrompt(template string, in evaluation.ScoreInput) (string, error) {
	document, err := json.MarshalIndent(in.Document, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal structured document: %w", err)
	}

	return render(template, map[string]string{
		"JOB_TITLE": in.JobTitle,
		"RUBRIC":    orNone(in.Rubric),
		"REFERENCE": orNone(in.Reference),
		"DOCUMENT":  string(document),
	}), nil
}

// fillWeights sets every weight hint the model left out or nulled.
func fillWeights(scored map[string]any, dims []scoring.Dimension, defaults Weights) {
	for _, dim := range dims {
		if scoring.Number(scored[dim.Weight]) > 0 {
			continue
		}
		if w, ok := defaults[dim.Weight]; ok {
			scored[dim.Weight] = w
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none provided)"
	}
	return s
}
