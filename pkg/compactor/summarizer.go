package compactor

import "context"

// Summarizer is the injected capability that condenses text into a token
// budget. Summarization quality is outside this core's correctness surface;
// the compactor only requires that the result fits the budget it asked for.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxTokens int) (string, error)
}

// SummarizerFunc adapts a plain function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, text string, maxTokens int) (string, error)

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, text string, maxTokens int) (string, error) {
	return f(ctx, text, maxTokens)
}

// Truncating is a degenerate Summarizer that cuts text to roughly the token
// budget using the heuristic 4-characters-per-token ratio. It is the default
// when no LLM-backed summarizer is injected and keeps compression usable
// offline.
type Truncating struct{}

// Summarize truncates text to maxTokens*4 characters, cutting on a rune
// boundary so multibyte text stays valid UTF-8.
func (Truncating) Summarize(_ context.Context, text string, maxTokens int) (string, error) {
	limit := maxTokens * 4
	if limit <= 0 || len(text) <= limit {
		return text, nil
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text, nil
	}
	return string(runes[:limit]), nil
}
