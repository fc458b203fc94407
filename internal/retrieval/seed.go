package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Extractor turns a stored document into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

var seedExtensions = map[string]string{
	".txt": "text",
	".md":  "markdown",
	".pdf": "pdf",
}

// SeedReport summarises one Seed run.
type SeedReport struct {
	Documents int
	Chunks    int
	Skipped   []string
}

// Seed indexes every supported file in dir. Each file becomes one document
// whose id is the file name without extension.
func Seed(ctx context.Context, index *Index, extractor Extractor, dir string, chunkSize int, log *zap.Logger) (SeedReport, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var report SeedReport

	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("read documents root %s: %w", dir, err)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name() < entries[b].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		kind, ok := seedExtensions[ext]
		if !ok {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return report, fmt.Errorf("read %s: %w", name, err)
		}

		text, err := extractor.Extract(ctx, data)
		if err != nil {
			return report, fmt.Errorf("extract %s: %w", name, err)
		}

		pieces := Split(text, chunkSize)
		if len(pieces) == 0 {
			log.Warn("document has no text, skipping", zap.String("file", name))
			report.Skipped = append(report.Skipped, name)
			continue
		}

		passages := make([]Passage, len(pieces))
		for n, piece := range pieces {
			passages[n] = Passage{Text: piece, Metadata: map[string]string{"kind": kind, "source": name}}
		}

		docID := strings.TrimSuffix(name, filepath.Ext(name))
		if err := index.Upsert(ctx, docID, passages); err != nil {
			return report, err
		}

		report.Documents++
		report.Chunks += len(passages)
	}

	return report, nil
}
