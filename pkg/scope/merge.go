package scope

import (
	"fmt"
	"strings"

	"github.com/kgang/chronicle/pkg/types"
)

// MergeStrategy selects how a branch's new turns fold back into the parent.
type MergeStrategy string

const (
	// StrategySummarize appends one compact system turn describing the
	// branch's new turns.
	StrategySummarize MergeStrategy = "summarize"
	// StrategySquash concatenates the first assistant turns into a single
	// assistant turn.
	StrategySquash MergeStrategy = "squash"
	// StrategyRebase replays every new turn onto the parent verbatim.
	StrategyRebase MergeStrategy = "rebase"
	// StrategyCherryPick is documented as selective replay but currently
	// behaves exactly like StrategyRebase. The selection feature is
	// unimplemented; callers must not rely on it picking turns.
	StrategyCherryPick MergeStrategy = "cherry_pick"
)

// squashLimit caps how many assistant turns a squash merge concatenates.
const squashLimit = 3

// previewLimit caps per-turn previews in merge summaries.
const previewLimit = 100

// MergeResult reports the outcome of a merge. Merge never signals through
// errors: cross-scope races (merging an already-discarded branch) are
// expected in interactive use, so callers branch on Success.
type MergeResult struct {
	Success     bool
	MergedTurns int
	Summary     string
	TokensAdded int
	Error       string
}

// DiscardResult reports the outcome of a discard. Like merge, discard
// communicates failures through the result value.
type DiscardResult struct {
	Success         bool
	DiscardedTurns  int
	EntropyReturned float64
	Error           string
}

// Merge folds a child branch back into this scope using the child's own
// strategy.
func (s *Scope) Merge(child *Scope) MergeResult {
	return s.MergeWith(child, child.mergeStrategy)
}

// MergeWith folds a child branch back into this scope with an explicit
// strategy. On success the child transitions to Merged (terminal) and is
// removed from the children map. On failure nothing is mutated.
func (s *Scope) MergeWith(child *Scope, strategy MergeStrategy) MergeResult {
	if child.parentScopeID != s.scopeID {
		return MergeResult{Error: fmt.Sprintf("scope %s is not a child of %s", child.scopeID, s.scopeID)}
	}
	switch child.state {
	case StateMerged:
		return MergeResult{Error: fmt.Sprintf("scope %s is already merged", child.scopeID)}
	case StateDiscarded:
		return MergeResult{Error: fmt.Sprintf("scope %s is already discarded", child.scopeID)}
	}

	newTurns := child.window.Turns()[child.turnCountAtBranch:]
	if len(newTurns) == 0 {
		s.finalizeMerge(child)
		return MergeResult{Success: true}
	}

	result := MergeResult{Success: true, MergedTurns: len(newTurns)}
	switch strategy {
	case StrategySquash:
		result.Summary, result.TokensAdded = s.mergeSquash(child, newTurns)
	case StrategyRebase, StrategyCherryPick:
		// CherryPick is a placeholder: it replays everything, same as rebase.
		result.TokensAdded = s.mergeRebase(newTurns)
	default:
		result.Summary, result.TokensAdded = s.mergeSummarize(child, newTurns)
	}

	s.finalizeMerge(child)
	return result
}

// finalizeMerge transitions the child to its terminal state and detaches it.
func (s *Scope) finalizeMerge(child *Scope) {
	child.state = StateMerged
	delete(s.children, child.branchName)
}

// mergeSummarize appends one system turn: a header naming the branch (and
// its commit message, when set) followed by one preview line per new turn.
func (s *Scope) mergeSummarize(child *Scope, newTurns []*types.Turn) (string, int) {
	var b strings.Builder
	if child.commitMessage != "" {
		fmt.Fprintf(&b, "Merged branch '%s': %s\n", child.branchName, child.commitMessage)
	} else {
		fmt.Fprintf(&b, "Merged branch '%s'\n", child.branchName)
	}
	for _, turn := range newTurns {
		fmt.Fprintf(&b, "- [%s] %s\n", turn.Role, preview(turn.Content))
	}

	summary := b.String()
	turn := s.window.Append(types.RoleSystem, summary, map[string]interface{}{
		"merge_strategy": string(StrategySummarize),
		"merged_from":    child.scopeID,
	})
	return summary, s.window.TokenEstimate(turn)
}

// mergeSquash concatenates up to the first squashLimit assistant turns'
// full content into a single assistant turn.
func (s *Scope) mergeSquash(child *Scope, newTurns []*types.Turn) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "Squashed from %s\n", child.branchName)
	taken := 0
	for _, turn := range newTurns {
		if turn.Role != types.RoleAssistant {
			continue
		}
		b.WriteString("\n")
		b.WriteString(turn.Content)
		taken++
		if taken == squashLimit {
			break
		}
	}

	summary := b.String()
	turn := s.window.Append(types.RoleAssistant, summary, map[string]interface{}{
		"merge_strategy": string(StrategySquash),
		"merged_from":    child.scopeID,
	})
	return summary, s.window.TokenEstimate(turn)
}

// mergeRebase replays every new turn onto this scope verbatim, preserving
// role, content, and metadata.
func (s *Scope) mergeRebase(newTurns []*types.Turn) int {
	tokensAdded := 0
	for _, turn := range newTurns {
		replayed := s.window.Append(turn.Role, turn.Content, turn.Metadata)
		tokensAdded += s.window.TokenEstimate(replayed)
	}
	return tokensAdded
}

// Discard destroys a child branch without retaining any of its content.
// Unlike merge, which leaves at least a compressed trace, discard is true
// forgetting: the parent log is untouched. The preconditions mirror
// MergeWith and failures are reported the same way.
func (s *Scope) Discard(child *Scope) DiscardResult {
	if child.parentScopeID != s.scopeID {
		return DiscardResult{Error: fmt.Sprintf("scope %s is not a child of %s", child.scopeID, s.scopeID)}
	}
	switch child.state {
	case StateMerged:
		return DiscardResult{Error: fmt.Sprintf("scope %s is already merged", child.scopeID)}
	case StateDiscarded:
		return DiscardResult{Error: fmt.Sprintf("scope %s is already discarded", child.scopeID)}
	}

	parentTokens := s.window.TotalTokens()
	if parentTokens < 1 {
		parentTokens = 1
	}
	entropyReturned := child.entropyBudget * float64(child.window.TotalTokens()) / float64(parentTokens)

	discardedTurns := child.window.Len() - child.turnCountAtBranch
	if discardedTurns < 0 {
		discardedTurns = 0
	}

	child.state = StateDiscarded
	delete(s.children, child.branchName)
	return DiscardResult{
		Success:         true,
		DiscardedTurns:  discardedTurns,
		EntropyReturned: entropyReturned,
	}
}

// preview truncates content to previewLimit characters for summary lines,
// collapsing newlines so each turn stays on one line. The cut falls on a
// rune boundary so multibyte content stays valid UTF-8.
func preview(content string) string {
	flat := strings.ReplaceAll(content, "\n", " ")
	if runes := []rune(flat); len(runes) > previewLimit {
		return string(runes[:previewLimit])
	}
	return flat
}
