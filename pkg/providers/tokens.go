package providers

import "strings"

// Per-message and per-conversation formatting overhead, in tokens.
const (
	messageOverheadTokens      = 4
	conversationOverheadTokens = 3
)

// EstimateTokens estimates the token count of text as a blend of word and
// character counts (about four characters per token). Non-empty text is at
// least one token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := len(text)

	tokens := (words + chars/4) / 2
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateMessageTokens estimates the prompt tokens of a conversation,
// including role and formatting overhead.
func EstimateMessageTokens(messages []Message) int {
	if len(messages) == 0 {
		return 0
	}
	total := conversationOverheadTokens
	for _, m := range messages {
		total += messageOverheadTokens + EstimateTokens(m.Content)
	}
	return total
}

// CompletionTokens returns the completion budget to price an estimate with:
// maxTokens when set, otherwise three times the prompt. The result is bounded
// by maxOutput when maxOutput is positive.
func CompletionTokens(promptTokens, maxTokens, maxOutput int) int {
	n := maxTokens
	if n <= 0 {
		n = promptTokens * 3
	}
	if maxOutput > 0 && n > maxOutput {
		n = maxOutput
	}
	return n
}
