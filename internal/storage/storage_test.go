package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "files")
	s, err := New(root, nil)
	require.NoError(t, err)
	return s, root
}

func TestSaveOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, root := newStore(t)

	content := []byte("%PDF-1.4 resume")
	id, err := s.Save(ctx, "Resume.PDF", bytes.NewReader(content))
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:])[:IDLength], id)
	assert.FileExists(t, filepath.Join(root, id+".pdf"))

	got, err := s.Open(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	ok, err := s.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, root := newStore(t)

	first, err := s.Save(ctx, "a.txt", strings.NewReader("same"))
	require.NoError(t, err)
	second, err := s.Save(ctx, "b.md", strings.NewReader("same"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must be cleaned up and content stored once")
	assert.Equal(t, first+".txt", entries[0].Name())
}

func TestSaveDefaultExtension(t *testing.T) {
	s, root := newStore(t)

	id, err := s.Save(context.Background(), "noext", strings.NewReader("x"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, id+".bin"))
}

func TestOpenMissing(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.Open(context.Background(), strings.Repeat("a", IDLength))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExistsRejectsMalformedIDs(t *testing.T) {
	ctx := context.Background()
	s, root := newStore(t)

	// a file that a glob on a crafted id could match
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600))

	for _, id := range []string{"", "*", "notes", "../files", strings.Repeat("A", IDLength), strings.Repeat("a", IDLength-1)} {
		ok, err := s.Exists(ctx, id)
		require.NoError(t, err, id)
		assert.False(t, ok, id)
	}
}

func TestCanceledContext(t *testing.T) {
	s, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
