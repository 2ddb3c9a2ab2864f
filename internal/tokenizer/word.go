package tokenizer

import (
	"regexp"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Word implements the interface.
var _ driven.TokenCounter = (*Word)(nil)

// wordToken matches a run of letters, digits or underscores, or a single
// symbol. Matches never span whitespace, so counts add up across any
// whitespace split of the text.
var wordToken = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)

// Word counts words and punctuation marks.
type Word struct{}

// NewWord creates a word counter.
func NewWord() *Word {
	return &Word{}
}

// Name returns the counter identity used in the settings fingerprint.
func (w *Word) Name() string {
	return "word-v1"
}

// Count returns the number of tokens in text.
func (w *Word) Count(text string) int {
	return len(wordToken.FindAllStringIndex(text, -1))
}
