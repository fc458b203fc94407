// Package retrieval ranks embedded knowledge chunks against free-text queries.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spigell/cv-evaluator/internal/evaluation"
	"github.com/spigell/cv-evaluator/internal/logger"

	"go.uber.org/zap"
)

// FieldDocID is the log field carrying a knowledge document id.
const FieldDocID = "doc_id"

// Chunk is one stored piece of a reference document.
type Chunk struct {
	ID        string
	DocID     string
	Position  int
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

// Passage is an unembedded chunk waiting to be indexed.
type Passage struct {
	Text     string
	Metadata map[string]string
}

type Repository interface {
	ReplaceChunks(ctx context.Context, docID string, chunks []Chunk) error
	ListChunks(ctx context.Context) ([]Chunk, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Embedder turns text into vectors. Documents and queries may use different task types.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index embeds passages on write and ranks stored chunks by cosine similarity on read.
type Index struct {
	repo     Repository
	embedder Embedder
	logger   *zap.Logger
}

var _ evaluation.Retriever = (*Index)(nil)

func NewIndex(repo Repository, embedder Embedder, log *zap.Logger) (*Index, error) {
	if repo == nil {
		return nil, errors.New("chunk repository is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{repo: repo, embedder: embedder, logger: log}, nil
}

// Upsert embeds passages and replaces every stored chunk of docID with them.
// Chunk ids are "<docID>:<position>".
func (i *Index) Upsert(ctx context.Context, docID string, passages []Passage) error {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return errors.New("document id is required")
	}

	texts := make([]string, len(passages))
	for n, p := range passages {
		texts[n] = p.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = i.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed %s: %w", docID, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embed %s: got %d vectors for %d passages", docID, len(vectors), len(texts))
		}
	}

	chunks := make([]Chunk, len(passages))
	for n, p := range passages {
		metadata := map[string]string{"doc_id": docID, "ord": fmt.Sprint(n)}
		for k, v := range p.Metadata {
			metadata[k] = v
		}
		chunks[n] = Chunk{
			ID:        fmt.Sprintf("%s:%d", docID, n),
			DocID:     docID,
			Position:  n,
			Text:      p.Text,
			Metadata:  metadata,
			Embedding: vectors[n],
		}
	}

	if err := i.repo.ReplaceChunks(ctx, docID, chunks); err != nil {
		return err
	}

	logger.WithFields(i.logger, zap.String(FieldDocID, docID)).Info("indexed document", zap.Int("chunks", len(chunks)))
	return nil
}

// Query returns up to topK chunks ordered by descending similarity to query.
func (i *Index) Query(ctx context.Context, query string, topK int) ([]evaluation.Snippet, error) {
	if topK <= 0 {
		return nil, nil
	}

	chunks, err := i.repo.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		i.logger.Debug("knowledge base is empty", zap.String("query", query))
		return nil, nil
	}

	vector, err := i.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	snippets := make([]evaluation.Snippet, 0, len(chunks))
	for _, c := range chunks {
		snippets = append(snippets, evaluation.Snippet{
			ChunkID:  c.ID,
			Text:     c.Text,
			Metadata: c.Metadata,
			Score:    Cosine(vector, c.Embedding),
		})
	}

	sort.SliceStable(snippets, func(a, b int) bool {
		return snippets[a].Score > snippets[b].Score
	})
	if len(snippets) > topK {
		snippets = snippets[:topK]
	}
	return snippets, nil
}

// Reset drops every indexed chunk.
func (i *Index) Reset(ctx context.Context) (int64, error) {
	n, err := i.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	i.logger.Info("knowledge base cleared", zap.Int64("chunks", n))
	return n, nil
}

// Cosine is the cosine similarity of a and b, 0 when either is empty, zero or
// the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for n := range a {
		x, y := float64(a[n]), float64(b[n])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
