package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Summarizer writes the final free-text verdict over both scored results.
type Summarizer struct {
	caller
}

func NewSummarizer(gen generator, log *zap.Logger, maxLogLength int) *Summarizer {
	return &Summarizer{caller: newCaller(gen, log, maxLogLength)}
}

func (s *Summarizer) Summarize(ctx context.Context, scoredCV, scoredReport map[string]any) (string, error) {
	cv, err := json.MarshalIndent(scoredCV, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal cv result: %w", err)
	}
	project, err := json.MarshalIndent(scoredReport, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal project result: %w", err)
	}

	return s.text(ctx, "summarize", Request{
		System: systemInstruction,
		Prompt: render(summaryTemplate, map[string]string{
			"CV_RESULT":      string(cv),
			"PROJECT_RESULT": string(project),
		}),
	})
}
