// Package tokenizer provides token estimation for conversation content.
//
// The heuristic estimator is the default and defines the token accounting
// used throughout the log's budget math. The tiktoken-backed estimator is an
// optional drop-in for callers that want model-accurate counts.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator converts text to an estimated token count.
type Estimator interface {
	Estimate(text string) int
}

// Heuristic estimates tokens as len(text)/4 + 1. It is cheap, deterministic,
// and always returns at least 1, which keeps budget arithmetic free of
// zero-division cases.
type Heuristic struct{}

// Estimate returns the heuristic token count for the text.
func (Heuristic) Estimate(text string) int {
	return len(text)/4 + 1
}

// DefaultEncoding is the tiktoken encoding used by the accurate estimator.
const DefaultEncoding = "cl100k_base"

// Tiktoken estimates tokens with a real BPE encoding. Counts from this
// estimator differ from the heuristic, so a log must use one estimator for
// its whole lifetime; mixing them skews the pressure calculation.
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktoken creates a tiktoken-backed estimator using DefaultEncoding.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %s: %w", DefaultEncoding, err)
	}
	return &Tiktoken{encoding: enc}, nil
}

// Estimate returns the encoded token count, never less than 1.
func (t *Tiktoken) Estimate(text string) int {
	n := len(t.encoding.Encode(text, nil, nil))
	if n < 1 {
		return 1
	}
	return n
}
