package driven

// TokenCounter maps text to a token count.
// Counts must be identical across runs for chunk IDs to stay stable.
type TokenCounter interface {
	// Name identifies the counting scheme in the settings fingerprint.
	Name() string

	// Count returns the number of tokens in text.
	Count(text string) int
}
