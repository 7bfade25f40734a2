// Package scope implements git-like branch, merge, and discard semantics over
// context logs. Each scope exclusively owns a deep copy of its parent's log,
// so exploration in a branch can never corrupt the parent.
package scope

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kgang/chronicle/pkg/contextlog"
	"github.com/kgang/chronicle/pkg/ledger"
	"github.com/kgang/chronicle/pkg/types"
)

// State is the lifecycle state of a scope. Merged and Discarded are terminal.
type State string

const (
	StateActive    State = "active"
	StateMerged    State = "merged"
	StateDiscarded State = "discarded"
)

// DefaultBranchBudget is the entropy budget a branch gets when the caller
// does not specify one.
const DefaultBranchBudget = 0.05

// RootBranchName is the branch name of every root scope.
const RootBranchName = "main"

// Scope is one node in the branch tree. A root scope has no parent, carries
// the name "main", and a full entropy budget.
type Scope struct {
	scopeID       string
	parentScopeID string
	branchName    string
	window        *contextlog.ContextLog
	entropyBudget float64
	mergeStrategy MergeStrategy
	commitMessage string
	createdAt     time.Time
	children      map[string]*Scope
	state         State

	// parentTokenCount and turnCountAtBranch freeze the parent's size at the
	// moment this scope branched; budget math and merge accounting both key
	// off them.
	parentTokenCount  int
	turnCountAtBranch int
}

// NewRoot creates a root scope with a fresh log. If systemMessage is
// non-empty it is appended and immediately promoted to Preserved: root
// context is sacrosanct and must survive every compression.
func NewRoot(maxTokens int, systemMessage string, opts ...contextlog.Option) *Scope {
	window := contextlog.New(maxTokens, opts...)
	s := &Scope{
		scopeID:       "scope_" + uuid.NewString()[:8],
		branchName:    RootBranchName,
		window:        window,
		entropyBudget: 1.0,
		mergeStrategy: StrategySummarize,
		createdAt:     time.Now(),
		children:      make(map[string]*Scope),
		state:         StateActive,
	}
	if systemMessage != "" {
		turn := window.Append(types.RoleSystem, systemMessage, nil)
		window.Ledger().Promote(turn.ResourceID, ledger.ClassPreserved, "root system context")
	}
	return s
}

// BranchOption configures a branch at creation time.
type BranchOption func(*Scope)

// WithBudget sets the branch's entropy budget. Validation happens in Branch.
func WithBudget(budget float64) BranchOption {
	return func(s *Scope) {
		s.entropyBudget = budget
	}
}

// WithStrategy sets the branch's default merge strategy.
func WithStrategy(strategy MergeStrategy) BranchOption {
	return func(s *Scope) {
		s.mergeStrategy = strategy
	}
}

// WithCommitMessage attaches a commit message recorded in merge summaries.
func WithCommitMessage(message string) BranchOption {
	return func(s *Scope) {
		s.commitMessage = message
	}
}

// Branch creates a child scope whose log is a deep copy of this scope's log,
// ledger included. It fails fast, before any mutation, when the scope is not
// active, the name is taken, or the budget is outside (0, 1]. These are
// programmer errors, not expected runtime conditions.
func (s *Scope) Branch(name string, opts ...BranchOption) (*Scope, error) {
	if s.state != StateActive {
		return nil, fmt.Errorf("scope: cannot branch from %s scope %s", s.state, s.scopeID)
	}
	if _, exists := s.children[name]; exists {
		return nil, fmt.Errorf("scope: branch %q already exists under %s", name, s.scopeID)
	}

	child := &Scope{
		scopeID:           s.scopeID + ":" + name,
		parentScopeID:     s.scopeID,
		branchName:        name,
		entropyBudget:     DefaultBranchBudget,
		mergeStrategy:     StrategySummarize,
		createdAt:         time.Now(),
		children:          make(map[string]*Scope),
		state:             StateActive,
		parentTokenCount:  s.window.TotalTokens(),
		turnCountAtBranch: s.window.Len(),
	}
	for _, opt := range opts {
		opt(child)
	}
	// NaN fails neither comparison, so it needs its own check.
	if math.IsNaN(child.entropyBudget) || child.entropyBudget <= 0 || child.entropyBudget > 1 {
		return nil, fmt.Errorf("scope: entropy budget must be in (0, 1], got %g", child.entropyBudget)
	}

	// Deep structural clone: parent and child never alias mutable state.
	child.window = s.window.Clone()
	s.children[name] = child
	return child, nil
}

// ID returns the scope's identifier. Child ids are parent id + ":" + name.
func (s *Scope) ID() string {
	return s.scopeID
}

// ParentID returns the parent scope's id, or "" for a root.
func (s *Scope) ParentID() string {
	return s.parentScopeID
}

// BranchName returns the scope's branch name.
func (s *Scope) BranchName() string {
	return s.branchName
}

// Window returns the scope's exclusively owned log.
func (s *Scope) Window() *contextlog.ContextLog {
	return s.window
}

// State returns the scope's lifecycle state.
func (s *Scope) State() State {
	return s.state
}

// IsActive reports whether the scope can still branch, merge, and discard.
func (s *Scope) IsActive() bool {
	return s.state == StateActive
}

// EntropyBudget returns the branch's growth allowance as a fraction of the
// parent's token count at branch time.
func (s *Scope) EntropyBudget() float64 {
	return s.entropyBudget
}

// Strategy returns the branch's default merge strategy.
func (s *Scope) Strategy() MergeStrategy {
	return s.mergeStrategy
}

// CommitMessage returns the branch's commit message, if any.
func (s *Scope) CommitMessage() string {
	return s.commitMessage
}

// CreatedAt returns when the scope was created.
func (s *Scope) CreatedAt() time.Time {
	return s.createdAt
}

// Depth returns how many branches separate this scope from its root.
func (s *Scope) Depth() int {
	return strings.Count(s.scopeID, ":")
}

// Child returns the active child with the given branch name, if present.
func (s *Scope) Child(name string) (*Scope, bool) {
	child, ok := s.children[name]
	return child, ok
}

// Children returns the branch names of all active children.
func (s *Scope) Children() []string {
	names := make([]string, 0, len(s.children))
	for name := range s.children {
		names = append(names, name)
	}
	return names
}

// AllowedGrowth returns the absolute token growth this branch is budgeted
// for: floor(parent tokens at branch time * entropy budget).
func (s *Scope) AllowedGrowth() int {
	return int(math.Floor(float64(s.parentTokenCount) * s.entropyBudget))
}

// Growth returns how many tokens the branch has grown since it was created.
func (s *Scope) Growth() int {
	growth := s.window.TotalTokens() - s.parentTokenCount
	if growth < 0 {
		return 0
	}
	return growth
}

// BudgetRemaining returns the unconsumed fraction of the growth budget.
// A branch that has not grown has its full budget; a branch with a zero
// allowance and any growth has none.
func (s *Scope) BudgetRemaining() float64 {
	growth := s.Growth()
	if growth == 0 {
		return 1.0
	}
	allowed := s.AllowedGrowth()
	if allowed == 0 {
		return 0.0
	}
	remaining := 1 - float64(growth)/float64(allowed)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsOverBudget reports whether the branch has exhausted its growth budget.
func (s *Scope) IsOverBudget() bool {
	return s.BudgetRemaining() <= 0
}

// TokensRemaining returns how many more tokens the branch may grow by.
func (s *Scope) TokensRemaining() int {
	remaining := s.AllowedGrowth() - s.Growth()
	if remaining < 0 {
		return 0
	}
	return remaining
}
