package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Embedding inputs above this many tokens are rejected by the API.
const maxEmbedTokens = 8191

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// encoding returns the cl100k_base encoder, or nil when the BPE data
// cannot be loaded. Callers fall back to a character heuristic.
func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	})
	return enc
}

// CountTokens estimates the token count of text. Without the encoder it
// approximates four characters per token.
func CountTokens(text string) int {
	if e := encoding(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// TruncateToBudget cuts text down to at most budget tokens. Text within
// budget is returned unchanged.
func TruncateToBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if e := encoding(); e != nil {
		tokens := e.Encode(text, nil, nil)
		if len(tokens) <= budget {
			return text
		}
		return e.Decode(tokens[:budget])
	}
	max := budget * 4
	if len(text) <= max {
		return text
	}
	return text[:max]
}

// FitForEmbedding truncates text to the embedding model's input limit.
func FitForEmbedding(text string) string {
	return TruncateToBudget(text, maxEmbedTokens)
}
