package scope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgang/chronicle/pkg/ledger"
	"github.com/kgang/chronicle/pkg/types"
)

func TestNewRootDefaults(t *testing.T) {
	root := NewRoot(8000, "")

	assert.Equal(t, RootBranchName, root.BranchName())
	assert.Empty(t, root.ParentID())
	assert.Equal(t, 1.0, root.EntropyBudget())
	assert.Equal(t, 0, root.Depth())
	assert.True(t, root.IsActive())
	assert.Equal(t, 0, root.Window().Len())
}

func TestNewRootPromotesSystemMessage(t *testing.T) {
	root := NewRoot(8000, "you are a careful agent")

	require.Equal(t, 1, root.Window().Len())
	turn := root.Window().TurnAt(0)
	assert.Equal(t, types.RoleSystem, turn.Role)

	class, ok := root.Window().ClassOf(turn)
	require.True(t, ok)
	assert.Equal(t, ledger.ClassPreserved, class)
}

func TestBranchIDsAndDepth(t *testing.T) {
	root := NewRoot(8000, "sys")

	child, err := root.Branch("explore")
	require.NoError(t, err)
	assert.Equal(t, root.ID()+":explore", child.ID())
	assert.Equal(t, root.ID(), child.ParentID())
	assert.Equal(t, 1, child.Depth())

	grandchild, err := child.Branch("deeper")
	require.NoError(t, err)
	assert.Equal(t, 2, grandchild.Depth())
}

func TestBranchPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, root *Scope)
		branch  string
		opts    []BranchOption
		wantErr string
	}{
		{
			name:    "duplicate name",
			setup:   func(t *testing.T, root *Scope) { mustBranch(t, root, "taken") },
			branch:  "taken",
			wantErr: "already exists",
		},
		{
			name:    "zero budget",
			branch:  "bad",
			opts:    []BranchOption{WithBudget(0)},
			wantErr: "entropy budget must be in (0, 1]",
		},
		{
			name:    "budget above one",
			branch:  "bad",
			opts:    []BranchOption{WithBudget(1.5)},
			wantErr: "entropy budget must be in (0, 1]",
		},
		{
			name:    "negative budget",
			branch:  "bad",
			opts:    []BranchOption{WithBudget(-0.1)},
			wantErr: "entropy budget must be in (0, 1]",
		},
		{
			name:    "NaN budget",
			branch:  "bad",
			opts:    []BranchOption{WithBudget(math.NaN())},
			wantErr: "entropy budget must be in (0, 1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewRoot(8000, "sys")
			if tt.setup != nil {
				tt.setup(t, root)
			}
			before := len(root.Children())

			child, err := root.Branch(tt.branch, tt.opts...)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Nil(t, child)
			// Failed branch creates no child.
			assert.Len(t, root.Children(), before)
		})
	}
}

func TestBranchFromTerminalScopeFails(t *testing.T) {
	root := NewRoot(8000, "sys")
	child := mustBranch(t, root, "explore")
	require.True(t, root.Merge(child).Success)

	_, err := child.Branch("too-late")
	require.Error(t, err)
	assert.ErrorContains(t, err, "cannot branch from merged")

	discarded := mustBranch(t, root, "doomed")
	require.True(t, root.Discard(discarded).Success)
	_, err = discarded.Branch("also-too-late")
	assert.ErrorContains(t, err, "cannot branch from discarded")
}

func TestBranchIsolation(t *testing.T) {
	root := NewRoot(8000, "")
	root.Window().Append(types.RoleUser, "question", nil)
	root.Window().Append(types.RoleAssistant, "first answer", nil)
	rootLen := root.Window().Len()

	child := mustBranch(t, root, "explore")
	assert.Equal(t, rootLen, child.Window().Len())

	for i := 0; i < 3; i++ {
		child.Window().Append(types.RoleAssistant, "exploring", nil)
	}

	assert.Equal(t, rootLen, root.Window().Len())
	assert.Equal(t, rootLen+3, child.Window().Len())

	// Ledger state is isolated too: promote a shared turn in the child.
	shared := child.Window().TurnAt(1)
	require.True(t, child.Window().Ledger().Promote(shared.ResourceID, ledger.ClassPreserved, "child only"))
	class, _ := root.Window().ClassOf(root.Window().TurnAt(1))
	assert.Equal(t, ledger.ClassDroppable, class)
}

func TestBudgetAccounting(t *testing.T) {
	root := NewRoot(8000, "")
	// 400 chars -> 101 tokens in the parent.
	root.Window().Append(types.RoleUser, string(make([]byte, 400)), nil)
	parentTokens := root.Window().TotalTokens()

	child := mustBranch(t, root, "explore", WithBudget(0.1))
	allowed := child.AllowedGrowth()
	assert.Equal(t, parentTokens/10, allowed)

	// No growth yet: full budget.
	assert.Equal(t, 1.0, child.BudgetRemaining())
	assert.False(t, child.IsOverBudget())
	assert.Equal(t, allowed, child.TokensRemaining())

	// Grow past the allowance.
	child.Window().Append(types.RoleAssistant, string(make([]byte, 200)), nil)
	assert.Equal(t, 0.0, child.BudgetRemaining())
	assert.True(t, child.IsOverBudget())
	assert.Equal(t, 0, child.TokensRemaining())
}

func TestBudgetZeroAllowance(t *testing.T) {
	// An empty parent gives every branch a zero allowance.
	root := NewRoot(8000, "")
	child := mustBranch(t, root, "explore")

	assert.Equal(t, 0, child.AllowedGrowth())
	assert.Equal(t, 1.0, child.BudgetRemaining()) // no growth yet

	child.Window().Append(types.RoleAssistant, "any growth at all", nil)
	assert.Equal(t, 0.0, child.BudgetRemaining())
	assert.True(t, child.IsOverBudget())
}

func mustBranch(t *testing.T, parent *Scope, name string, opts ...BranchOption) *Scope {
	t.Helper()
	child, err := parent.Branch(name, opts...)
	require.NoError(t, err)
	return child
}
