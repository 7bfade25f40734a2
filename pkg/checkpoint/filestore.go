package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a checkpoint id has no file on disk.
var ErrNotFound = errors.New("checkpoint: not found")

// Store is the persistence interface the reaper writes through.
type Store interface {
	Save(c *Checkpoint) error
	Load(id string) (*Checkpoint, error)
	LoadAll() ([]*Checkpoint, error)
	Delete(id string) error
}

// FileStore persists one <checkpoint_id>.json per checkpoint in a single
// directory. Writes are atomic via a temporary file and rename; corrupt or
// unreadable files are skipped on load and never abort startup.
type FileStore struct {
	dir string
}

// NewFileStore creates the store, making the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("checkpoint: init directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// pathForID resolves a checkpoint id to its file path, rejecting ids that
// would escape the store directory.
func (fs *FileStore) pathForID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("checkpoint: invalid checkpoint id (empty)")
	}
	if strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("checkpoint: invalid checkpoint id %q (contains path separator)", id)
	}
	dir, err := filepath.Abs(fs.dir)
	if err != nil {
		return "", fmt.Errorf("checkpoint: abs dir: %w", err)
	}
	resolved := filepath.Join(dir, id+".json")
	if !strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("checkpoint: path traversal detected for id %q", id)
	}
	return resolved, nil
}

// Save writes (or overwrites) a checkpoint file atomically. Overwrite is
// allowed because the pinned flag may be toggled after creation.
func (fs *FileStore) Save(c *Checkpoint) error {
	b, err := Marshal(c)
	if err != nil {
		return err
	}
	path, err := fs.pathForID(c.CheckpointID)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("checkpoint: atomic rename %s: %w", path, err)
	}
	return nil
}

// Load reads a single checkpoint by id. Returns ErrNotFound if absent.
func (fs *FileStore) Load(id string) (*Checkpoint, error) {
	path, err := fs.pathForID(id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	return Unmarshal(b)
}

// LoadAll reads every checkpoint file in the directory. Corrupt or
// unreadable files are skipped, not treated as a startup error.
func (fs *FileStore) LoadAll() ([]*Checkpoint, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list %s: %w", fs.dir, err)
	}
	var out []*Checkpoint
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(fs.dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("checkpoint: skipping unreadable checkpoint file", "path", path, "err", err)
			continue
		}
		c, err := Unmarshal(b)
		if err != nil {
			slog.Debug("checkpoint: skipping corrupt checkpoint file", "path", path, "err", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete removes a checkpoint file. Deleting a missing file is not an error;
// reap retries must stay idempotent.
func (fs *FileStore) Delete(id string) error {
	path, err := fs.pathForID(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: delete %s: %w", path, err)
	}
	return nil
}
