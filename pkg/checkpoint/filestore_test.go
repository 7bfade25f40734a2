package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCheckpoint(id string) *Checkpoint {
	return &Checkpoint{
		CheckpointID:  id,
		Agent:         "agent",
		CreatedAt:     time.Now().UTC(),
		TaskState:     "working",
		WorkingMemory: map[string]interface{}{},
		TTL:           DefaultTTL,
	}
}

func TestFileStoreSaveLoad(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	c := newTestCheckpoint("ckpt_one")
	require.NoError(t, store.Save(c))

	got, err := store.Load("ckpt_one")
	require.NoError(t, err)
	assert.Equal(t, c.CheckpointID, got.CheckpointID)
	assert.Equal(t, c.TaskState, got.TaskState)

	_, err = store.Load("ckpt_absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreOverwrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	c := newTestCheckpoint("ckpt_pin")
	require.NoError(t, store.Save(c))

	c.Pinned = true
	require.NoError(t, store.Save(c))

	got, err := store.Load("ckpt_pin")
	require.NoError(t, err)
	assert.True(t, got.Pinned)
}

func TestFileStoreLoadAllSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(newTestCheckpoint("ckpt_good")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ckpt_bad.json"), []byte("not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "ckpt_good", loaded[0].CheckpointID)
}

func TestFileStoreDeleteIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(newTestCheckpoint("ckpt_gone")))
	require.NoError(t, store.Delete("ckpt_gone"))
	require.NoError(t, store.Delete("ckpt_gone"))

	_, err = store.Load("ckpt_gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsBadIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := store.Load(id)
		assert.Error(t, err, "id %q", id)
	}
}
