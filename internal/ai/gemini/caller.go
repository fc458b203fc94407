package gemini

import (
	"context"
	"unicode/utf8"

	"github.com/spigell/cv-evaluator/internal/logger"
	"github.com/spigell/cv-evaluator/internal/utils"

	"go.uber.org/zap"
)

const defaultMaxLogLength = 200

type generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// caller logs a generation round trip and decodes its answer.
type caller struct {
	generator generator
	logger    *zap.Logger
	maxLogLen int
}

func newCaller(gen generator, log *zap.Logger, maxLogLength int) caller {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return caller{
		generator: gen,
		logger:    logger.WithAI(log, Provider, gen.Model()),
		maxLogLen: maxLogLength,
	}
}

func (c caller) text(ctx context.Context, op string, req Request) (string, error) {
	c.logger.Debug("gemini generate content request",
		zap.String("operation", op),
		zap.Int("prompt_length", utf8.RuneCountInString(req.Prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(req.Prompt, c.maxLogLen)),
	)

	raw, err := c.generator.Generate(ctx, req)
	if err != nil {
		return "", err
	}

	c.logger.Debug("gemini generate content response",
		zap.String("operation", op),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, c.maxLogLen)),
	)
	return raw, nil
}

func (c caller) object(ctx context.Context, op string, req Request, v *validator) (map[string]any, error) {
	raw, err := c.text(ctx, op, req)
	if err != nil {
		return nil, err
	}

	data, err := decodeObject(raw)
	if err != nil {
		c.logger.Warn("gemini returned malformed json",
			zap.String("operation", op),
			zap.String("response_preview", utils.TruncateForLog(raw, c.maxLogLen)),
		)
		return nil, err
	}

	if err := v.Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}
