package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/kgang/chronicle/pkg/contextlog"
	"github.com/kgang/chronicle/pkg/ledger"
	"github.com/kgang/chronicle/pkg/types"
)

// historySummaryCap is the maximum number of droppable turns summarized into
// a checkpoint's history.
const historySummaryCap = 20

// historyLineLimit is the per-turn truncation applied to history lines.
const historyLineLimit = 100

// preservedRationale is the rationale recorded on every captured fragment.
const preservedRationale = "Preserved resource class"

// Reaper tracks live checkpoints and evicts the expired, unpinned ones.
// It optionally persists checkpoints through a Store, and can protect whole
// agents by glob pattern: checkpoints whose agent matches a protect pattern
// are treated as pinned during a reap.
//
// Reaper is not safe for concurrent use; the core is single-threaded
// cooperative by design.
type Reaper struct {
	checkpoints map[string]*Checkpoint
	store       Store
	protected   []glob.Glob
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper) error

// WithStore attaches persistent storage. Existing checkpoints are loaded
// eagerly; corrupt files were already skipped by the store.
func WithStore(store Store) ReaperOption {
	return func(r *Reaper) error {
		r.store = store
		loaded, err := store.LoadAll()
		if err != nil {
			return err
		}
		for _, c := range loaded {
			r.checkpoints[c.CheckpointID] = c
		}
		return nil
	}
}

// WithProtectPatterns registers agent-name globs whose checkpoints the
// reaper never evicts.
func WithProtectPatterns(patterns ...string) ReaperOption {
	return func(r *Reaper) error {
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				return fmt.Errorf("checkpoint: invalid protect pattern %q: %w", p, err)
			}
			r.protected = append(r.protected, g)
		}
		return nil
	}
}

// NewReaper creates a reaper, applying options in order.
func NewReaper(opts ...ReaperOption) (*Reaper, error) {
	r := &Reaper{checkpoints: make(map[string]*Checkpoint)}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// CrystallizeOption configures a crystallize call.
type CrystallizeOption func(*Checkpoint)

// WithWorkingMemory attaches a working-memory map to the checkpoint.
func WithWorkingMemory(memory map[string]interface{}) CrystallizeOption {
	return func(c *Checkpoint) {
		c.WorkingMemory = memory
	}
}

// WithParent links the checkpoint to its predecessor in the lineage chain.
func WithParent(parentID string) CrystallizeOption {
	return func(c *Checkpoint) {
		c.ParentCheckpointID = parentID
	}
}

// WithTTL overrides the default checkpoint lifetime.
func WithTTL(ttl time.Duration) CrystallizeOption {
	return func(c *Checkpoint) {
		c.TTL = ttl
	}
}

// Crystallize snapshots a log into a new checkpoint and registers it.
//
// Preserved turns are copied verbatim into focus fragments. Droppable turns
// are summarized most-recent-first, capped and truncated, into the history
// summary. Required turns are neither preserved nor summarized: they remain
// in the live log only. On any failure the checkpoint is not registered;
// there is never a half-built checkpoint in the reaper.
func (r *Reaper) Crystallize(log *contextlog.ContextLog, taskState, agent string, opts ...CrystallizeOption) (*Checkpoint, error) {
	c := &Checkpoint{
		CheckpointID: NewCheckpointID(),
		Agent:        agent,
		CreatedAt:    time.Now(),
		TaskState:    taskState,
		TTL:          DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.WorkingMemory == nil {
		c.WorkingMemory = make(map[string]interface{})
	}

	if c.ParentCheckpointID != "" {
		parent, ok := r.checkpoints[c.ParentCheckpointID]
		if !ok {
			return nil, fmt.Errorf("checkpoint: parent %s not found", c.ParentCheckpointID)
		}
		c.BranchDepth = parent.BranchDepth + 1
	}

	for _, turn := range log.PreservedTurns() {
		c.FocusFragments = append(c.FocusFragments, FocusFragment{
			FragmentID: NewFragmentID(),
			Content:    turn.Content,
			Role:       turn.Role,
			CreatedAt:  turn.Timestamp,
			Rationale:  preservedRationale,
		})
	}
	c.HistorySummary = summarizeDroppable(log.DroppableTurns())

	if r.store != nil {
		if err := r.store.Save(c); err != nil {
			return nil, fmt.Errorf("checkpoint: persist %s: %w", c.CheckpointID, err)
		}
	}
	r.checkpoints[c.CheckpointID] = c
	return c, nil
}

// summarizeDroppable builds the history summary: most recent turns first,
// capped at historySummaryCap, each line truncated and tagged with its role.
func summarizeDroppable(turns []*types.Turn) string {
	var lines []string
	for i := len(turns) - 1; i >= 0 && len(lines) < historySummaryCap; i-- {
		turn := turns[i]
		content := strings.ReplaceAll(turn.Content, "\n", " ")
		if runes := []rune(content); len(runes) > historyLineLimit {
			// Rune boundary, not byte: truncation must not emit invalid UTF-8.
			content = string(runes[:historyLineLimit])
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", turn.Role, content))
	}
	return strings.Join(lines, "\n")
}

// Resume reconstructs a fresh log from a checkpoint. The history summary, if
// any, becomes a single system turn labeled with the source checkpoint id;
// every focus fragment is then replayed verbatim and immediately promoted to
// Preserved so a later compression cannot touch it.
func (r *Reaper) Resume(checkpointID string, maxTokens int, opts ...contextlog.Option) (*contextlog.ContextLog, error) {
	c, ok := r.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("checkpoint: %s not found", checkpointID)
	}

	log := contextlog.New(maxTokens, opts...)
	if c.HistorySummary != "" {
		log.Append(types.RoleSystem,
			fmt.Sprintf("History from checkpoint %s:\n%s", c.CheckpointID, c.HistorySummary),
			map[string]interface{}{"source_checkpoint": c.CheckpointID})
	}
	for _, frag := range c.FocusFragments {
		turn := log.Append(frag.Role, frag.Content, map[string]interface{}{
			"source_checkpoint": c.CheckpointID,
			"fragment_id":       frag.FragmentID,
		})
		log.Ledger().Promote(turn.ResourceID, ledger.ClassPreserved, "restored focus fragment")
	}
	return log, nil
}

// Get returns a tracked checkpoint by id.
func (r *Reaper) Get(checkpointID string) (*Checkpoint, bool) {
	c, ok := r.checkpoints[checkpointID]
	return c, ok
}

// List returns all tracked checkpoints in unspecified order.
func (r *Reaper) List() []*Checkpoint {
	out := make([]*Checkpoint, 0, len(r.checkpoints))
	for _, c := range r.checkpoints {
		out = append(out, c)
	}
	return out
}

// Cherish pins a tracked checkpoint and re-persists it. Returns false if the
// id is unknown.
func (r *Reaper) Cherish(checkpointID string) bool {
	return r.setPinned(checkpointID, true)
}

// Uncherish unpins a tracked checkpoint and re-persists it.
func (r *Reaper) Uncherish(checkpointID string) bool {
	return r.setPinned(checkpointID, false)
}

func (r *Reaper) setPinned(checkpointID string, pinned bool) bool {
	c, ok := r.checkpoints[checkpointID]
	if !ok {
		return false
	}
	c.Pinned = pinned
	if r.store != nil {
		// Pin state is advisory on disk: a failed rewrite only means the flag
		// reverts on the next load, so the in-memory toggle stands.
		_ = r.store.Save(c)
	}
	return true
}

// isProtected reports whether a checkpoint's agent matches a protect glob.
func (r *Reaper) isProtected(c *Checkpoint) bool {
	for _, g := range r.protected {
		if g.Match(c.Agent) {
			return true
		}
	}
	return false
}

// ReapResult reports what one reap pass did.
type ReapResult struct {
	ReapedCount      int
	SkippedPinned    int
	SkippedUnexpired int
	IDs              []string
}

// Reap evicts expired, unpinned checkpoints. The pass is two-phase: a scan
// partitions every tracked checkpoint into reap and skip sets, then a second
// pass deletes the reap set and its backing files. The tracked map is never
// mutated while being iterated.
func (r *Reaper) Reap() ReapResult {
	now := time.Now()
	var result ReapResult

	var toReap []*Checkpoint
	for _, c := range r.checkpoints {
		switch {
		case c.Pinned || r.isProtected(c):
			if now.After(c.ExpiresAt()) {
				result.SkippedPinned++
			} else {
				result.SkippedUnexpired++
			}
		case c.ShouldReap(now):
			toReap = append(toReap, c)
		default:
			result.SkippedUnexpired++
		}
	}

	for _, c := range toReap {
		delete(r.checkpoints, c.CheckpointID)
		if r.store != nil {
			_ = r.store.Delete(c.CheckpointID)
		}
		result.ReapedCount++
		result.IDs = append(result.IDs, c.CheckpointID)
	}
	return result
}

// GetLineage walks the parent chain from a checkpoint back toward its root.
// The walk stops silently when a parent id is missing; lineage may be
// truncated if an ancestor was already reaped.
func (r *Reaper) GetLineage(checkpointID string) []*Checkpoint {
	var lineage []*Checkpoint
	id := checkpointID
	for id != "" {
		c, ok := r.checkpoints[id]
		if !ok {
			break
		}
		lineage = append(lineage, c)
		id = c.ParentCheckpointID
	}
	return lineage
}
