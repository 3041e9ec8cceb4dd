// Package budget estimates token usage and trims chat history to fit a model
// context window. docchat talks to multiple LLM backends with different
// tokenizers, so a conservative character heuristic is used instead of a
// model-specific tokenizer: 1 token ≈ 4 characters of English prose or code,
// deliberately over-counting to leave headroom for backend overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget. It fits
	// 8k-context models with room for the answer; override via
	// MODEL_MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Non-empty strings always count
// as at least one token.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a message
// slice, counting role and content plus a small per-message envelope.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Most chat APIs add roughly 4 tokens of framing per message.
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest messages from history until fixed + history
// fits within maxTokens. fixed holds the messages that must survive intact
// (system prompt, retrieved context, the current question); history holds
// prior turns that may be sacrificed oldest-first.
//
// If fixed alone exceeds the budget the returned history is empty; the fixed
// messages are never touched here.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}
