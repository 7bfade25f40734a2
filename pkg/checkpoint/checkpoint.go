// Package checkpoint implements point-in-time snapshots of context logs with
// TTL/pin lifecycle, lineage chains, and optional file persistence.
package checkpoint

import (
	"time"

	"github.com/google/uuid"

	"github.com/kgang/chronicle/pkg/types"
)

// DefaultTTL is the lifetime a checkpoint gets when the caller does not
// specify one.
const DefaultTTL = time.Hour

// FocusFragment is one Preserved turn captured verbatim by a checkpoint.
type FocusFragment struct {
	FragmentID string
	Content    string
	Role       types.Role
	CreatedAt  time.Time
	Rationale  string
}

// Checkpoint is an immutable snapshot of a log's preserved content and a
// summary of its droppable history. Only the pinned flag may change after
// creation. A checkpoint owns copies of what it captured; it never references
// the live log.
type Checkpoint struct {
	CheckpointID       string
	Agent              string
	CreatedAt          time.Time
	TaskState          string
	WorkingMemory      map[string]interface{}
	HistorySummary     string
	FocusFragments     []FocusFragment
	ParentCheckpointID string
	BranchDepth        int
	TTL                time.Duration
	Pinned             bool
}

// NewCheckpointID generates a fresh checkpoint identifier.
func NewCheckpointID() string {
	return "ckpt_" + uuid.NewString()[:12]
}

// NewFragmentID generates a fresh focus fragment identifier.
func NewFragmentID() string {
	return "frag_" + uuid.NewString()[:12]
}

// ExpiresAt returns when the checkpoint's TTL runs out.
func (c *Checkpoint) ExpiresAt() time.Time {
	return c.CreatedAt.Add(c.TTL)
}

// ShouldReap reports whether the checkpoint is past its TTL and not pinned.
// Pinned checkpoints are immune regardless of age.
func (c *Checkpoint) ShouldReap(now time.Time) bool {
	return now.After(c.ExpiresAt()) && !c.Pinned
}

// Cherish pins the checkpoint, protecting it from the reaper.
func (c *Checkpoint) Cherish() {
	c.Pinned = true
}

// Uncherish unpins the checkpoint, making it reapable once expired.
func (c *Checkpoint) Uncherish() {
	c.Pinned = false
}
