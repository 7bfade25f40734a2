// Package contextlog implements a bounded, append-mostly conversation log
// with a movable focus position and comonadic traversal operations.
//
// The log owns a resource ledger that classifies every appended turn; the
// classification gates what compression and checkpointing may later discard.
package contextlog

import (
	"time"

	"github.com/kgang/chronicle/pkg/ledger"
	"github.com/kgang/chronicle/pkg/tokenizer"
	"github.com/kgang/chronicle/pkg/types"
)

// NeedsCompressionThreshold is the pressure above which callers should
// compact the log.
const NeedsCompressionThreshold = 0.7

// ContextLog is an append-only ordered sequence of turns plus a movable
// focus position. Position 0 means "no focus"; position k (1 <= k <= len)
// focuses the turn at index k-1.
//
// ContextLog is not safe for concurrent use. Scope branching deep-copies the
// whole log, so parent and child never share mutable state.
type ContextLog struct {
	maxTokens int
	turns     []*types.Turn
	position  int
	ledger    *ledger.Ledger
	estimator tokenizer.Estimator

	totalTokens      int
	compressionCount int
	lastCompression  *time.Time
}

// Option configures a ContextLog at construction time.
type Option func(*ContextLog)

// WithEstimator replaces the default heuristic token estimator. A log must
// use a single estimator for its whole lifetime; budget math assumes counts
// are comparable across appends.
func WithEstimator(e tokenizer.Estimator) Option {
	return func(log *ContextLog) {
		log.estimator = e
	}
}

// New creates an empty log with the given token budget.
func New(maxTokens int, opts ...Option) *ContextLog {
	log := &ContextLog{
		maxTokens: maxTokens,
		ledger:    ledger.New(),
		estimator: tokenizer.Heuristic{},
	}
	for _, opt := range opts {
		opt(log)
	}
	return log
}

// Append creates a turn, classifies it, tags it in the ledger, and moves the
// focus to the new end of the log. Classification takes the stronger of the
// role-based and content-based class.
func (log *ContextLog) Append(role types.Role, content string, metadata map[string]interface{}) *types.Turn {
	turn := types.NewTurn(role, content)
	for k, v := range metadata {
		turn.Metadata[k] = v
	}

	class := ClassifyByRole(role)
	if byContent := ClassifyByContent(content); byContent > class {
		class = byContent
	}
	turn.ResourceID = log.ledger.Tag(content, class, "contextlog.append",
		"classified on append as "+class.String())

	log.turns = append(log.turns, turn)
	log.position = len(log.turns)
	log.totalTokens += log.estimator.Estimate(content)
	return turn
}

// Adopt appends an already-classified turn without reclassifying it, tagging
// the ledger with the given class. The compactor and resume paths use this to
// carry a turn's earned class into a fresh log; normal callers should use
// Append.
func (log *ContextLog) Adopt(turn *types.Turn, class ledger.Class, provenance, rationale string) *types.Turn {
	adopted := turn.Clone()
	adopted.ResourceID = log.ledger.Tag(adopted.Content, class, provenance, rationale)
	log.turns = append(log.turns, adopted)
	log.position = len(log.turns)
	log.totalTokens += log.estimator.Estimate(adopted.Content)
	return adopted
}

// Extract returns the turn under the focus, or nil when the log is empty or
// unfocused. Extract is a pure read: repeated calls at the same position
// always return the same turn.
func (log *ContextLog) Extract() *types.Turn {
	if log.position == 0 || len(log.turns) == 0 {
		return nil
	}
	return log.turns[log.position-1]
}

// Seek moves the focus to pos, clamped to [0, len].
func (log *ContextLog) Seek(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(log.turns) {
		pos = len(log.turns)
	}
	log.position = pos
}

// Seeks moves the focus to f(current position), clamped to [0, len].
func (log *ContextLog) Seeks(f func(int) int) {
	log.Seek(f(log.position))
}

// Extend runs f at every position 0..len and collects the results. The focus
// is restored to its original position on every exit path, including a panic
// inside f.
func Extend[B any](log *ContextLog, f func(*ContextLog) B) []B {
	original := log.position
	defer func() {
		log.position = original
	}()

	results := make([]B, 0, len(log.turns)+1)
	for pos := 0; pos <= len(log.turns); pos++ {
		log.position = pos
		results = append(results, f(log))
	}
	return results
}

// Snapshot is one entry of Duplicate: the focused value at a position, the
// position itself, and a shared reference to the log's ledger.
type Snapshot struct {
	Value     *types.Turn
	Position  int
	Timestamp time.Time
	Ledger    *ledger.Ledger
}

// Duplicate returns one snapshot per position 0..len, each carrying the turn
// Extract would return at that position. The focus is restored afterwards.
func (log *ContextLog) Duplicate() []Snapshot {
	now := time.Now()
	return Extend(log, func(w *ContextLog) Snapshot {
		return Snapshot{
			Value:     w.Extract(),
			Position:  w.position,
			Timestamp: now,
			Ledger:    w.ledger,
		}
	})
}

// Position returns the current focus position.
func (log *ContextLog) Position() int {
	return log.position
}

// Len returns the number of turns in the log.
func (log *ContextLog) Len() int {
	return len(log.turns)
}

// Turns returns the ordered turn sequence. The returned slice is a copy;
// the turns themselves are shared and must not be mutated.
func (log *ContextLog) Turns() []*types.Turn {
	out := make([]*types.Turn, len(log.turns))
	copy(out, log.turns)
	return out
}

// TurnAt returns the turn at index i, or nil when out of range.
func (log *ContextLog) TurnAt(i int) *types.Turn {
	if i < 0 || i >= len(log.turns) {
		return nil
	}
	return log.turns[i]
}

// Ledger returns the log's resource ledger. Callers may promote through it;
// the ledger's own API enforces monotonicity.
func (log *ContextLog) Ledger() *ledger.Ledger {
	return log.ledger
}

// MaxTokens returns the log's token budget.
func (log *ContextLog) MaxTokens() int {
	return log.maxTokens
}

// TotalTokens returns the running token total across all turns.
func (log *ContextLog) TotalTokens() int {
	return log.totalTokens
}

// TokenEstimate returns the token count the log's estimator assigns to a
// turn's content.
func (log *ContextLog) TokenEstimate(turn *types.Turn) int {
	return log.estimator.Estimate(turn.Content)
}

// Pressure returns total/max clamped to [0, 1].
func (log *ContextLog) Pressure() float64 {
	if log.maxTokens <= 0 {
		return 1
	}
	p := float64(log.totalTokens) / float64(log.maxTokens)
	if p > 1 {
		return 1
	}
	return p
}

// NeedsCompression reports whether pressure has crossed the compaction
// threshold.
func (log *ContextLog) NeedsCompression() bool {
	return log.Pressure() > NeedsCompressionThreshold
}

// CompressionCount returns how many times this log has been compacted.
func (log *ContextLog) CompressionCount() int {
	return log.compressionCount
}

// LastCompression returns the time of the most recent compaction, or nil.
func (log *ContextLog) LastCompression() *time.Time {
	return log.lastCompression
}

// RecordCompression increments the compaction counter and stamps the time.
// The compactor calls this on the log it assembles.
func (log *ContextLog) RecordCompression(count int, at time.Time) {
	log.compressionCount = count
	log.lastCompression = &at
}

// ClassOf returns the current resource class of a turn, looked up through
// the ledger.
func (log *ContextLog) ClassOf(turn *types.Turn) (ledger.Class, bool) {
	return log.ledger.ClassOf(turn.ResourceID)
}

// DroppableTurns returns the turns currently classed Droppable, in log order.
func (log *ContextLog) DroppableTurns() []*types.Turn {
	return log.turnsByClass(ledger.ClassDroppable)
}

// RequiredTurns returns the turns currently classed Required, in log order.
func (log *ContextLog) RequiredTurns() []*types.Turn {
	return log.turnsByClass(ledger.ClassRequired)
}

// PreservedTurns returns the turns currently classed Preserved, in log order.
func (log *ContextLog) PreservedTurns() []*types.Turn {
	return log.turnsByClass(ledger.ClassPreserved)
}

func (log *ContextLog) turnsByClass(class ledger.Class) []*types.Turn {
	var out []*types.Turn
	for _, turn := range log.turns {
		if c, ok := log.ledger.ClassOf(turn.ResourceID); ok && c == class {
			out = append(out, turn)
		}
	}
	return out
}

// Clone returns a deep structural copy of the log: turns, ledger, focus, and
// meta state. The clone shares no mutable state with the original. This is a
// proper structural clone, not a serialization round trip, so every field is
// covered by construction.
func (log *ContextLog) Clone() *ContextLog {
	clone := &ContextLog{
		maxTokens:        log.maxTokens,
		position:         log.position,
		ledger:           log.ledger.Clone(),
		estimator:        log.estimator,
		totalTokens:      log.totalTokens,
		compressionCount: log.compressionCount,
	}
	if log.lastCompression != nil {
		t := *log.lastCompression
		clone.lastCompression = &t
	}
	clone.turns = make([]*types.Turn, len(log.turns))
	for i, turn := range log.turns {
		clone.turns[i] = turn.Clone()
	}
	return clone
}

// CloneEmpty returns a fresh log with the same budget, estimator, and
// compaction meta state, but no turns and an empty ledger.
func (log *ContextLog) CloneEmpty() *ContextLog {
	clone := New(log.maxTokens, WithEstimator(log.estimator))
	clone.compressionCount = log.compressionCount
	if log.lastCompression != nil {
		t := *log.lastCompression
		clone.lastCompression = &t
	}
	return clone
}
