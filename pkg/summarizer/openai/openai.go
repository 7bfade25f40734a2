// Package openai provides an OpenAI-backed implementation of the
// compactor's Summarizer capability.
//
// Example usage:
//
//	sum, err := openai.NewSummarizer(os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o-mini"))
//	if err != nil {
//	    panic(err)
//	}
//	comp := compactor.New(compactor.WithSummarizer(sum))
package openai

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the model used when none is configured. Summarization is
// a high-volume, low-stakes call, so the default favors cost over quality.
const DefaultModel = "gpt-4o-mini"

const systemPrompt = "You are a technical memory encoder for an AI agent. " +
	"Your summary replaces a section of the agent's conversation history, so " +
	"it must let the agent continue its work from the summary alone. " +
	"Preserve file paths, names, error messages, and decisions verbatim. " +
	"No filler, no hedging, no offers of help."

// Summarizer condenses text through an OpenAI-compatible chat completions
// endpoint.
type Summarizer struct {
	client openai.Client
	model  string
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithModel sets the model used for summarization calls.
func WithModel(model string) Option {
	return func(s *Summarizer) {
		s.model = model
	}
}

// NewSummarizer creates an OpenAI-backed summarizer. If apiKey is empty the
// OPENAI_API_KEY environment variable is used.
func NewSummarizer(apiKey string, opts ...Option) (*Summarizer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required (provide via parameter or OPENAI_API_KEY)")
	}

	s := &Summarizer{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Summarize condenses text to at most maxTokens tokens.
func (s *Summarizer) Summarize(ctx context.Context, text string, maxTokens int) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf("Summarize the following in at most %d tokens:\n\n%s", maxTokens, text)),
		},
		MaxTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai: summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: summarize: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
