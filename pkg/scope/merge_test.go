package scope

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgang/chronicle/pkg/types"
)

func TestMergeSummarizeScenario(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "What are the options?", nil)

	child := mustBranch(t, root, "explore")
	child.Window().Append(types.RoleAssistant, "Option A is simple", nil)
	child.Window().Append(types.RoleAssistant, "Option B is fast", nil)
	child.Window().Append(types.RoleUser, "Tell me about B", nil)

	result := root.MergeWith(child, StrategySummarize)
	require.True(t, result.Success)
	assert.Equal(t, 3, result.MergedTurns)
	assert.Empty(t, result.Error)
	assert.Positive(t, result.TokensAdded)

	// Original turn plus exactly one summary turn.
	require.Equal(t, 2, root.Window().Len())
	summary := root.Window().TurnAt(1)
	assert.Equal(t, types.RoleSystem, summary.Role)
	assert.Contains(t, summary.Content, "Merged branch 'explore'")
	assert.Contains(t, summary.Content, "[assistant] Option A is simple")
	assert.Contains(t, summary.Content, "[user] Tell me about B")

	assert.Equal(t, StateMerged, child.State())
	assert.Empty(t, root.Children())
}

func TestMergeSummaryIncludesCommitMessage(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "q", nil)

	child := mustBranch(t, root, "fix", WithCommitMessage("try the cache route"))
	child.Window().Append(types.RoleAssistant, "done", nil)

	result := root.Merge(child)
	require.True(t, result.Success)
	assert.Contains(t, result.Summary, "Merged branch 'fix': try the cache route")
}

func TestMergeSummaryTruncatesPreviews(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "q", nil)

	child := mustBranch(t, root, "long")
	child.Window().Append(types.RoleAssistant, strings.Repeat("x", 300), nil)

	result := root.MergeWith(child, StrategySummarize)
	require.True(t, result.Success)
	for _, line := range strings.Split(result.Summary, "\n") {
		assert.LessOrEqual(t, len(line), previewLimit+len("- [assistant] "))
	}
}

func TestMergeSummaryPreviewMultibyteSafe(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "q", nil)

	// 150 three-byte runes: a byte-indexed cut at 100 would land mid-rune.
	child := mustBranch(t, root, "unicode")
	child.Window().Append(types.RoleAssistant, strings.Repeat("日", 150), nil)

	result := root.MergeWith(child, StrategySummarize)
	require.True(t, result.Success)
	assert.True(t, utf8.ValidString(result.Summary))

	lines := strings.Split(strings.TrimRight(result.Summary, "\n"), "\n")
	previewLine := lines[len(lines)-1]
	assert.Equal(t, previewLimit, strings.Count(previewLine, "日"))
}

func TestMergeSquash(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "q", nil)

	child := mustBranch(t, root, "work")
	child.Window().Append(types.RoleAssistant, "step one", nil)
	child.Window().Append(types.RoleUser, "interjection", nil)
	child.Window().Append(types.RoleAssistant, "step two", nil)
	child.Window().Append(types.RoleAssistant, "step three", nil)
	child.Window().Append(types.RoleAssistant, "step four", nil)

	result := root.MergeWith(child, StrategySquash)
	require.True(t, result.Success)
	assert.Equal(t, 5, result.MergedTurns)

	require.Equal(t, 2, root.Window().Len())
	squashed := root.Window().TurnAt(1)
	assert.Equal(t, types.RoleAssistant, squashed.Role)
	assert.Contains(t, squashed.Content, "Squashed from work")
	assert.Contains(t, squashed.Content, "step one")
	assert.Contains(t, squashed.Content, "step three")
	// Only the first three assistant turns are squashed.
	assert.NotContains(t, squashed.Content, "step four")
	assert.NotContains(t, squashed.Content, "interjection")
}

func TestMergeRebaseReplaysVerbatim(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "q", nil)

	child := mustBranch(t, root, "detail")
	child.Window().Append(types.RoleAssistant, "reply", map[string]interface{}{"tool": "search"})
	child.Window().Append(types.RoleTool, "tool output", nil)

	result := root.MergeWith(child, StrategyRebase)
	require.True(t, result.Success)
	assert.Equal(t, 2, result.MergedTurns)
	assert.Positive(t, result.TokensAdded)

	require.Equal(t, 3, root.Window().Len())
	assert.Equal(t, "reply", root.Window().TurnAt(1).Content)
	assert.Equal(t, "search", root.Window().TurnAt(1).Metadata["tool"])
	assert.Equal(t, types.RoleTool, root.Window().TurnAt(2).Role)
}

func TestMergeCherryPickBehavesAsRebase(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "q", nil)

	child := mustBranch(t, root, "pick")
	child.Window().Append(types.RoleAssistant, "a", nil)
	child.Window().Append(types.RoleAssistant, "b", nil)

	result := root.MergeWith(child, StrategyCherryPick)
	require.True(t, result.Success)
	// Placeholder semantics: everything is replayed, nothing is selected.
	assert.Equal(t, 2, result.MergedTurns)
	assert.Equal(t, 3, root.Window().Len())
}

func TestMergeZeroNewTurns(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "q", nil)

	child := mustBranch(t, root, "idle")
	lenBefore := root.Window().Len()

	result := root.Merge(child)
	require.True(t, result.Success)
	assert.Equal(t, 0, result.MergedTurns)
	assert.Equal(t, lenBefore, root.Window().Len())
	assert.Equal(t, StateMerged, child.State())
	assert.Empty(t, root.Children())
}

func TestMergeFailureCases(t *testing.T) {
	root := NewRoot(8000, "")
	other := NewRoot(8000, "")

	stranger := mustBranch(t, other, "stranger")
	result := root.Merge(stranger)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not a child")

	merged := mustBranch(t, root, "done")
	require.True(t, root.Merge(merged).Success)
	result = root.Merge(merged)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "already merged")

	discarded := mustBranch(t, root, "gone")
	require.True(t, root.Discard(discarded).Success)
	result = root.Merge(discarded)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "already discarded")
}

func TestDiscardIsDestructive(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "keep this exactly", nil)
	dictBefore, err := json.Marshal(root.Window().ToDict())
	require.NoError(t, err)

	child := mustBranch(t, root, "doomed")
	child.Window().Append(types.RoleAssistant, "wild speculation", nil)
	child.Window().Append(types.RoleAssistant, "more speculation", nil)

	result := root.Discard(child)
	require.True(t, result.Success)
	assert.Equal(t, 2, result.DiscardedTurns)
	assert.Positive(t, result.EntropyReturned)
	assert.Equal(t, StateDiscarded, child.State())
	assert.Empty(t, root.Children())

	// The parent is byte-identical to before the branch existed: discard
	// leaves no trace, unlike merge.
	dictAfter, err := json.Marshal(root.Window().ToDict())
	require.NoError(t, err)
	assert.Equal(t, string(dictBefore), string(dictAfter))
}

func TestDiscardFailureCases(t *testing.T) {
	root := NewRoot(8000, "")
	other := NewRoot(8000, "")

	stranger := mustBranch(t, other, "stranger")
	result := root.Discard(stranger)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not a child")

	merged := mustBranch(t, root, "done")
	require.True(t, root.Merge(merged).Success)
	result = root.Discard(merged)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "already merged")

	discarded := mustBranch(t, root, "gone")
	require.True(t, root.Discard(discarded).Success)
	result = root.Discard(discarded)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "already discarded")
}

func TestDictRoundTripDropsTerminalChildren(t *testing.T) {
	root := NewRoot(8000, "system setup")
	root.Window().Append(types.RoleUser, "q", nil)

	active := mustBranch(t, root, "active", WithBudget(0.2), WithStrategy(StrategyRebase))
	active.Window().Append(types.RoleAssistant, "work in progress", nil)

	merged := mustBranch(t, root, "merged")
	merged.Window().Append(types.RoleAssistant, "done", nil)
	require.True(t, root.Merge(merged).Success)

	discarded := mustBranch(t, root, "discarded")
	require.True(t, root.Discard(discarded).Success)

	raw, err := json.Marshal(root.ToDict())
	require.NoError(t, err)
	var d map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &d))

	restored, err := FromDict(d)
	require.NoError(t, err)

	assert.Equal(t, root.ID(), restored.ID())
	assert.Equal(t, root.Window().Len(), restored.Window().Len())
	// Merged and discarded children were removed at transition time; only
	// the active child survives the round trip.
	require.Len(t, restored.Children(), 1)

	child, ok := restored.Child("active")
	require.True(t, ok)
	assert.Equal(t, 0.2, child.EntropyBudget())
	assert.Equal(t, StrategyRebase, child.Strategy())
	assert.Equal(t, root.ID(), child.ParentID())
	assert.True(t, child.IsActive())

	// Budget math still works after the round trip.
	assert.Equal(t, active.AllowedGrowth(), child.AllowedGrowth())
	assert.Equal(t, active.Growth(), child.Growth())
}
