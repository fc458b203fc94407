// Package storage keeps uploaded documents on the local filesystem under
// content-addressed ids.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// IDLength is the number of hex characters in a document id.
const IDLength = 32

const defaultExt = ".bin"

var (
	ErrNotFound = errors.New("document not found")

	idPattern  = regexp.MustCompile(`^[0-9a-f]{32}$`)
	extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

// Store is a directory of documents named "<id><ext>".
type Store struct {
	root   string
	logger *zap.Logger
}

func New(root string, log *zap.Logger) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root, logger: log}, nil
}

// ValidID reports whether id has the shape Save produces.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Save stores the content of r and returns its id, the first 32 hex chars of
// its SHA-256. Saving identical content again returns the same id.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	id := hex.EncodeToString(hash.Sum(nil))[:IDLength]

	if existing, err := s.path(id); err == nil {
		s.logger.Debug("document already stored", zap.String("id", id), zap.String("path", existing))
		return id, nil
	}

	target := filepath.Join(s.root, id+extension(name))
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}

	s.logger.Info("document stored",
		zap.String("id", id),
		zap.String("name", filepath.Base(name)),
		zap.Int64("bytes", size),
	)
	return id, nil
}

// Open returns the content of the document with id.
func (s *Store) Open(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}
	return data, nil
}

// Exists reports whether a document with id is stored. Malformed ids never exist.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.path(id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) path(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	matches, err := filepath.Glob(filepath.Join(s.root, id+"*"))
	if err != nil {
		return "", fmt.Errorf("lookup document %s: %w", id, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return matches[0], nil
}

func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !extPattern.MatchString(ext) {
		return defaultExt
	}
	return ext
}
