package blob

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	content := []byte("hello blob")

	require.NoError(t, store.Put(ctx, "abc_notes.txt", bytes.NewReader(content), int64(len(content)), "text/plain"))

	got, err := store.Get(ctx, "abc_notes.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, store.Delete(ctx, "abc_notes.txt"))

	_, err = store.Get(ctx, "abc_notes.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStorePutOverwrites(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "doc", bytes.NewReader([]byte("first")), 5, ""))
	require.NoError(t, store.Put(ctx, "doc", bytes.NewReader([]byte("second")), 6, ""))

	got, err := store.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestFSStoreSanitizesLocator(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "../../etc/passwd", bytes.NewReader([]byte("x")), 1, ""))

	// The write lands inside the root under the base name.
	_, statErr := os.Stat(filepath.Join(root, "passwd"))
	assert.NoError(t, statErr)

	got, err := store.Get(ctx, "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestFSStoreDeleteMissingIsNoop(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete(context.Background(), "never-stored"))
}

func TestNewFSStoreCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "blobs")
	_, err := NewFSStore(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
