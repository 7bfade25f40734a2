// Package compactor implements lossy, class-respecting compression of
// context logs. Compression is not invertible: expanding a compressed log
// never recovers more than was kept. Preserved content is the one region
// guaranteed byte-identical before and after.
package compactor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kgang/chronicle/pkg/contextlog"
	"github.com/kgang/chronicle/pkg/ledger"
	"github.com/kgang/chronicle/pkg/logging"
	"github.com/kgang/chronicle/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("compactor")
	if err != nil {
		debugLog.Warnf("Failed to initialize compactor logger, using stderr fallback: %v", err)
	}
}

// DefaultTargetPressure is the pressure Compress aims for when the caller
// does not specify one.
const DefaultTargetPressure = 0.5

// DefaultSummaryBudget is the per-turn token budget for summarizing
// oversized Required turns.
const DefaultSummaryBudget = 100

// summarizedPrefix marks replacement content produced by summarization.
const summarizedPrefix = "[summarized] "

// Compactor compresses context logs while honoring resource classes:
// Droppable turns go first, Required turns shrink to summaries, Preserved
// turns are never inspected.
type Compactor struct {
	summarizer    Summarizer
	summaryBudget int
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithSummarizer injects the summarization capability. Without it the
// compactor falls back to plain truncation.
func WithSummarizer(s Summarizer) Option {
	return func(c *Compactor) {
		c.summarizer = s
	}
}

// WithSummaryBudget sets the per-turn token budget for Required-turn
// summaries.
func WithSummaryBudget(budget int) Option {
	return func(c *Compactor) {
		if budget > 0 {
			c.summaryBudget = budget
		}
	}
}

// New creates a compactor with the truncating summarizer and default budget.
func New(opts ...Option) *Compactor {
	c := &Compactor{
		summarizer:    Truncating{},
		summaryBudget: DefaultSummaryBudget,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompressionResult reports what one compression pass produced.
type CompressionResult struct {
	CompressedLog    *contextlog.ContextLog
	OriginalTokens   int
	CompressedTokens int
	DroppedCount     int
	SummarizedCount  int
	PreservedCount   int
}

// Compress builds a compressed copy of the log aiming for the target
// pressure. The source log is never mutated; on error no result log exists.
//
// Removal order: oldest Droppable turns are dropped first until the deficit
// is met, then oversized Required turns are summarized. Preserved turns are
// never inspected. Surviving turns reassemble into a fresh log sorted by
// their original timestamps.
func (c *Compactor) Compress(ctx context.Context, log *contextlog.ContextLog, targetPressure float64) (CompressionResult, error) {
	if targetPressure <= 0 || targetPressure > 1 {
		targetPressure = DefaultTargetPressure
	}

	originalTokens := log.TotalTokens()
	targetTokens := int(float64(log.MaxTokens()) * targetPressure)
	tokensToRemove := originalTokens - targetTokens
	if tokensToRemove < 0 {
		tokensToRemove = 0
	}
	debugLog.Debugf("compress: original=%d target=%d to_remove=%d", originalTokens, targetTokens, tokensToRemove)

	// Phase 1: drop oldest droppable turns until the deficit is met.
	droppable := log.DroppableTurns()
	sort.SliceStable(droppable, func(i, j int) bool {
		return droppable[i].Timestamp.Before(droppable[j].Timestamp)
	})
	dropped := make(map[*types.Turn]bool)
	removed := 0
	for _, turn := range droppable {
		if removed >= tokensToRemove {
			break
		}
		dropped[turn] = true
		removed += log.TokenEstimate(turn)
	}

	// Phase 2: if tokens still need removing, summarize oversized Required
	// turns. Turns at or under the budget are left untouched.
	replacements := make(map[*types.Turn]*types.Turn)
	if removed < tokensToRemove {
		for _, turn := range log.RequiredTurns() {
			if removed >= tokensToRemove {
				break
			}
			estimate := log.TokenEstimate(turn)
			if estimate <= c.summaryBudget {
				continue
			}
			summary, err := c.summarizer.Summarize(ctx, turn.Content, c.summaryBudget)
			if err != nil {
				return CompressionResult{}, fmt.Errorf("compactor: summarize required turn: %w", err)
			}
			replacement := types.NewTurn(turn.Role, summarizedPrefix+summary)
			replacement.Timestamp = turn.Timestamp
			for k, v := range turn.Metadata {
				replacement.Metadata[k] = v
			}
			replacement.Metadata["summarized"] = true
			replacement.Metadata["original_length"] = len(turn.Content)
			replacements[turn] = replacement
			removed += estimate - log.TokenEstimate(replacement)
		}
	}

	// Phase 3: reassemble the survivors, sorted by original timestamp, into
	// a fresh log carrying each turn's earned class.
	survivors := make([]*types.Turn, 0, log.Len())
	classes := make(map[*types.Turn]ledger.Class)
	result := CompressionResult{OriginalTokens: originalTokens}
	for _, turn := range log.Turns() {
		class, ok := log.ClassOf(turn)
		if !ok {
			class = ledger.ClassDroppable
		}
		if class == ledger.ClassPreserved {
			result.PreservedCount++
		}
		if dropped[turn] {
			result.DroppedCount++
			continue
		}
		if replacement, ok := replacements[turn]; ok {
			result.SummarizedCount++
			survivors = append(survivors, replacement)
			classes[replacement] = class
			continue
		}
		survivors = append(survivors, turn)
		classes[turn] = class
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Timestamp.Before(survivors[j].Timestamp)
	})

	compressed := log.CloneEmpty()
	for _, turn := range survivors {
		compressed.Adopt(turn, classes[turn], "compactor.compress", "carried through compression")
	}
	compressed.RecordCompression(log.CompressionCount()+1, time.Now())

	result.CompressedLog = compressed
	result.CompressedTokens = compressed.TotalTokens()
	debugLog.Debugf("compress: dropped=%d summarized=%d preserved=%d tokens %d -> %d",
		result.DroppedCount, result.SummarizedCount, result.PreservedCount,
		result.OriginalTokens, result.CompressedTokens)
	return result, nil
}

// SelectivePolicy configures SelectiveCompress.
type SelectivePolicy struct {
	// KeepRoles are the roles always kept. Defaults to user and system.
	KeepRoles []types.Role
	// KeepRecent is how many of the most recent turns survive regardless of
	// role. Defaults to 5.
	KeepRecent int
}

// DefaultSelectivePolicy returns the standard keep set.
func DefaultSelectivePolicy() SelectivePolicy {
	return SelectivePolicy{
		KeepRoles:  []types.Role{types.RoleUser, types.RoleSystem},
		KeepRecent: 5,
	}
}

// SelectiveCompress is the alternate policy: keep turns whose role is in the
// keep set, the most recent turns by position, and every Preserved turn;
// drop everything else outright with no summarization.
func (c *Compactor) SelectiveCompress(log *contextlog.ContextLog, policy SelectivePolicy) CompressionResult {
	if policy.KeepRoles == nil && policy.KeepRecent == 0 {
		policy = DefaultSelectivePolicy()
	}
	keepRole := make(map[types.Role]bool, len(policy.KeepRoles))
	for _, role := range policy.KeepRoles {
		keepRole[role] = true
	}

	turns := log.Turns()
	recentFrom := len(turns) - policy.KeepRecent
	if recentFrom < 0 {
		recentFrom = 0
	}

	result := CompressionResult{OriginalTokens: log.TotalTokens()}
	compressed := log.CloneEmpty()
	for i, turn := range turns {
		class, ok := log.ClassOf(turn)
		if !ok {
			class = ledger.ClassDroppable
		}
		if class == ledger.ClassPreserved {
			result.PreservedCount++
		}
		keep := keepRole[turn.Role] || i >= recentFrom || class == ledger.ClassPreserved
		if !keep {
			result.DroppedCount++
			continue
		}
		compressed.Adopt(turn, class, "compactor.selective", "kept by selective policy")
	}
	compressed.RecordCompression(log.CompressionCount()+1, time.Now())

	result.CompressedLog = compressed
	result.CompressedTokens = compressed.TotalTokens()
	return result
}
