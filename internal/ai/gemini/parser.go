package gemini

import (
	"context"

	"go.uber.org/zap"
)

// DefaultMaxResumeRunes bounds the résumé text sent for parsing.
const DefaultMaxResumeRunes = 18000

// Parser turns extracted document text into structured JSON objects.
type Parser struct {
	caller
	maxResumeRunes int
}

func NewParser(gen generator, log *zap.Logger, maxLogLength int) *Parser {
	return &Parser{
		caller:         newCaller(gen, log, maxLogLength),
		maxResumeRunes: DefaultMaxResumeRunes,
	}
}

func (p *Parser) ParseResume(ctx context.Context, text string) (map[string]any, error) {
	if runes := []rune(text); len(runes) > p.maxResumeRunes {
		p.logger.Debug("truncating resume text", zap.Int("runes", len(runes)), zap.Int("limit", p.maxResumeRunes))
		text = string(runes[:p.maxResumeRunes])
	}

	return p.object(ctx, "parse_resume", Request{
		System: systemInstruction,
		Prompt: buildResumePrompt(text),
		Schema: resumeSchema,
	}, resumeValidator)
}

func (p *Parser) ParseProjectReport(ctx context.Context, text string) (map[string]any, error) {
	return p.object(ctx, "parse_project_report", Request{
		System: systemInstruction,
		Prompt: buildProjectReportPrompt(text),
		Schema: projectReportSchema,
	}, projectReportValidator)
}
