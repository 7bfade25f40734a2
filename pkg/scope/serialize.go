package scope

import (
	"fmt"
	"time"

	"github.com/kgang/chronicle/pkg/contextlog"
)

// ToDict returns the recursive JSON-compatible map form of the scope tree.
// Merged and discarded children were removed at merge/discard time, so only
// active children serialize; a round trip of a tree with terminal children
// yields zero children, not tombstones.
func (s *Scope) ToDict() map[string]interface{} {
	children := make(map[string]interface{}, len(s.children))
	for name, child := range s.children {
		children[name] = child.ToDict()
	}
	d := map[string]interface{}{
		"scope_id":             s.scopeID,
		"branch_name":          s.branchName,
		"created_at":           s.createdAt.Format(time.RFC3339Nano),
		"window":               s.window.ToDict(),
		"entropy_budget":       s.entropyBudget,
		"merge_strategy":       string(s.mergeStrategy),
		"is_merged":            s.state == StateMerged,
		"is_discarded":         s.state == StateDiscarded,
		"parent_token_count":   s.parentTokenCount,
		"turn_count_at_branch": s.turnCountAtBranch,
		"children":             children,
	}
	if s.parentScopeID != "" {
		d["parent_scope_id"] = s.parentScopeID
	}
	if s.commitMessage != "" {
		d["commit_message"] = s.commitMessage
	}
	return d
}

// FromDict reconstructs a scope tree from its map form.
func FromDict(d map[string]interface{}, opts ...contextlog.Option) (*Scope, error) {
	scopeID, _ := d["scope_id"].(string)
	if scopeID == "" {
		return nil, fmt.Errorf("scope: missing scope_id")
	}
	branchName, _ := d["branch_name"].(string)
	createdAt, err := parseTime(d["created_at"])
	if err != nil {
		return nil, fmt.Errorf("scope %s: created_at: %w", scopeID, err)
	}

	windowRaw, ok := d["window"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("scope %s: missing window", scopeID)
	}
	window, err := contextlog.FromDict(windowRaw, opts...)
	if err != nil {
		return nil, fmt.Errorf("scope %s: window: %w", scopeID, err)
	}

	s := &Scope{
		scopeID:           scopeID,
		branchName:        branchName,
		window:            window,
		entropyBudget:     asFloat(d["entropy_budget"]),
		mergeStrategy:     MergeStrategy(asString(d["merge_strategy"])),
		commitMessage:     asString(d["commit_message"]),
		createdAt:         createdAt,
		children:          make(map[string]*Scope),
		state:             StateActive,
		parentTokenCount:  asInt(d["parent_token_count"]),
		turnCountAtBranch: asInt(d["turn_count_at_branch"]),
	}
	s.parentScopeID = asString(d["parent_scope_id"])

	if merged, _ := d["is_merged"].(bool); merged {
		s.state = StateMerged
	} else if discarded, _ := d["is_discarded"].(bool); discarded {
		s.state = StateDiscarded
	}

	if children, ok := d["children"].(map[string]interface{}); ok {
		for name, raw := range children {
			childDict, ok := raw.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("scope %s: child %s is not a map", scopeID, name)
			}
			child, err := FromDict(childDict, opts...)
			if err != nil {
				return nil, err
			}
			s.children[name] = child
		}
	}
	return s, nil
}

func parseTime(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339Nano, v)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", raw)
	}
}

func asString(raw interface{}) string {
	s, _ := raw.(string)
	return s
}

func asInt(raw interface{}) int {
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func asFloat(raw interface{}) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
