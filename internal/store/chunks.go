package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spigell/cv-evaluator/internal/retrieval"

	"go.uber.org/zap"
)

// ChunkRepository stores embedded knowledge chunks.
type ChunkRepository struct {
	db *DB
}

func (db *DB) Chunks() *ChunkRepository {
	return &ChunkRepository{db: db}
}

var _ retrieval.Repository = (*ChunkRepository)(nil)

// ReplaceChunks swaps every chunk of docID for chunks in one transaction.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, docID string, chunks []retrieval.Chunk) error {
	tx, err := r.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE doc_id = $1`, docID); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", docID, err)
	}

	now := r.db.now().UTC()
	for _, c := range chunks {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of chunk %s: %w", c.ID, err)
		}
		embedding, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding of chunk %s: %w", c.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO knowledge_chunks (id, doc_id, position, text, metadata, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, docID, c.Position, c.Text, string(metadata), string(embedding), now,
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks of %s: %w", docID, err)
	}

	r.db.logger.Debug("replaced knowledge chunks", zap.String("doc_id", docID), zap.Int("chunks", len(chunks)))
	return nil
}

// ListChunks returns every stored chunk ordered by document and position.
func (r *ChunkRepository) ListChunks(ctx context.Context) ([]retrieval.Chunk, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT id, doc_id, position, text, metadata, embedding
		FROM knowledge_chunks ORDER BY doc_id, position`)
	if err != nil {
		return nil, fmt.Errorf("select chunks: %w", err)
	}
	defer rows.Close()

	var chunks []retrieval.Chunk
	for rows.Next() {
		var (
			c         retrieval.Chunk
			metadata  string
			embedding string
		)
		if err := rows.Scan(&c.ID, &c.DocID, &c.Position, &c.Text, &metadata, &embedding); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of chunk %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(embedding), &c.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding of chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// DeleteAll removes every chunk and reports how many were dropped.
func (r *ChunkRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.sql.ExecContext(ctx, `DELETE FROM knowledge_chunks`)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return n, nil
}
