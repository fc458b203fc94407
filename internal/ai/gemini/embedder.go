package gemini

import (
	"context"

	"github.com/spigell/cv-evaluator/internal/logger"

	"go.uber.org/zap"
)

const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"

	documentTitle = "ground_truth_chunk"
)

type embedder interface {
	Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	EmbeddingModel() string
}

// Embedder adapts a Generator to the retrieval index.
type Embedder struct {
	generator embedder
	logger    *zap.Logger
}

func NewEmbedder(generator embedder, log *zap.Logger) *Embedder {
	return &Embedder{
		generator: generator,
		logger:    logger.WithAI(log, Provider, generator.EmbeddingModel()),
	}
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("gemini embed documents", zap.Int("texts", len(texts)))
	return e.generator.Embed(ctx, texts, TaskRetrievalDocument)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.generator.Embed(ctx, []string{text}, TaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
