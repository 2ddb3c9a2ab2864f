// Package tokenizer provides the token counters shared by the chunker and
// the quality scorer. Counters are deterministic: the same text always
// yields the same count, which keeps chunk boundaries and IDs stable.
package tokenizer

import (
	"fmt"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// New returns the counter for a tokenizer setting.
func New(kind domain.Tokenizer) (driven.TokenCounter, error) {
	switch kind {
	case domain.TokenizerWord, "":
		return NewWord(), nil
	case domain.TokenizerCL100K:
		return NewBPE(string(kind))
	default:
		return nil, &domain.ConfigurationError{
			Field:  "tokenizer",
			Reason: fmt.Sprintf("unknown tokenizer %q", kind),
		}
	}
}
