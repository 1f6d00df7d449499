// Package utils provides token counting and tool-argument helpers shared across packages.
package utils

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates token counts for conversation content.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter for the given model name.
// OpenAI o-series, gpt-4o and gpt-5 models use o200k; everything else (Claude, Gemini, local
// models) is approximated with the GPT-4 encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	var (
		codec tokenizer.Codec
		err   error
	)

	name := strings.ToLower(model)
	switch {
	case strings.HasPrefix(name, "gpt-4o"), strings.HasPrefix(name, "gpt-5"),
		strings.HasPrefix(name, "o1"), strings.HasPrefix(name, "o3"), strings.HasPrefix(name, "o4"):
		codec, err = tokenizer.Get(tokenizer.O200kBase)
	default:
		codec, err = tokenizer.ForModel(tokenizer.GPT4)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in text, falling back to 4 chars per token.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}
