package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure BPE implements the interface.
var _ driven.TokenCounter = (*BPE)(nil)

// The offline loader embeds the rank files so counting never hits the network.
var loaderOnce sync.Once

// BPE counts tokens with a tiktoken byte-pair encoding.
type BPE struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewBPE loads the named encoding (e.g., "cl100k_base").
func NewBPE(encoding string) (*BPE, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &BPE{encoding: encoding, enc: enc}, nil
}

// Name returns the counter identity used in the settings fingerprint.
func (b *BPE) Name() string {
	return "tiktoken:" + b.encoding
}

// Count returns the number of BPE tokens in text.
// Special-token markers are counted as ordinary text.
func (b *BPE) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.EncodeOrdinary(text))
}
