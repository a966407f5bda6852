package askrouter

// EstimateTokens provides a rough token count estimate for a prompt, used
// for the pre-dispatch check against a configured daily token ceiling.
// Uses the approximation: ~4 chars per token + request overhead.
func EstimateTokens(prompt string) int64 {
	return int64(len(prompt))/4 + 7
}
