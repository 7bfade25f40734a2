package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kgang/chronicle/pkg/types"
)

// fragmentJSON is the persisted shape of a focus fragment.
type fragmentJSON struct {
	FragmentID string `json:"fragment_id"`
	Content    string `json:"content"`
	Role       string `json:"role"`
	CreatedAt  string `json:"created_at"`
	Rationale  string `json:"rationale"`
}

// checkpointJSON is the persisted shape of a checkpoint. TTL serializes in
// seconds so the format stays language-neutral.
type checkpointJSON struct {
	CheckpointID       string                 `json:"checkpoint_id"`
	Agent              string                 `json:"agent"`
	CreatedAt          string                 `json:"created_at"`
	TaskState          string                 `json:"task_state"`
	WorkingMemory      map[string]interface{} `json:"working_memory"`
	HistorySummary     string                 `json:"history_summary"`
	FocusFragments     []fragmentJSON         `json:"focus_fragments"`
	ParentCheckpointID string                 `json:"parent_checkpoint_id,omitempty"`
	BranchDepth        int                    `json:"branch_depth"`
	TTLSeconds         float64                `json:"ttl_seconds"`
	Pinned             bool                   `json:"pinned"`
}

// Marshal encodes a checkpoint to its persisted JSON form.
func Marshal(c *Checkpoint) ([]byte, error) {
	out := checkpointJSON{
		CheckpointID:       c.CheckpointID,
		Agent:              c.Agent,
		CreatedAt:          c.CreatedAt.Format(time.RFC3339Nano),
		TaskState:          c.TaskState,
		WorkingMemory:      c.WorkingMemory,
		HistorySummary:     c.HistorySummary,
		ParentCheckpointID: c.ParentCheckpointID,
		BranchDepth:        c.BranchDepth,
		TTLSeconds:         c.TTL.Seconds(),
		Pinned:             c.Pinned,
	}
	for _, frag := range c.FocusFragments {
		out.FocusFragments = append(out.FocusFragments, fragmentJSON{
			FragmentID: frag.FragmentID,
			Content:    frag.Content,
			Role:       string(frag.Role),
			CreatedAt:  frag.CreatedAt.Format(time.RFC3339Nano),
			Rationale:  frag.Rationale,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// Unmarshal decodes a checkpoint from its persisted JSON form.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var in checkpointJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("checkpoint: decode: %w", err)
	}
	if in.CheckpointID == "" {
		return nil, fmt.Errorf("checkpoint: decode: missing checkpoint_id")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, in.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: decode created_at: %w", err)
	}
	c := &Checkpoint{
		CheckpointID:       in.CheckpointID,
		Agent:              in.Agent,
		CreatedAt:          createdAt,
		TaskState:          in.TaskState,
		WorkingMemory:      in.WorkingMemory,
		HistorySummary:     in.HistorySummary,
		ParentCheckpointID: in.ParentCheckpointID,
		BranchDepth:        in.BranchDepth,
		TTL:                time.Duration(in.TTLSeconds * float64(time.Second)),
		Pinned:             in.Pinned,
	}
	if c.WorkingMemory == nil {
		c.WorkingMemory = make(map[string]interface{})
	}
	for _, frag := range in.FocusFragments {
		fragCreated, err := time.Parse(time.RFC3339Nano, frag.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: decode fragment created_at: %w", err)
		}
		c.FocusFragments = append(c.FocusFragments, FocusFragment{
			FragmentID: frag.FragmentID,
			Content:    frag.Content,
			Role:       types.Role(frag.Role),
			CreatedAt:  fragCreated,
			Rationale:  frag.Rationale,
		})
	}
	return c, nil
}
