// Package dedup removes duplicate chunks within a document and flags
// near-duplicates across documents.
package dedup

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// DefaultMaxDistance is the largest simhash Hamming distance treated as a
// near-duplicate.
const DefaultMaxDistance = 3

// Processor drops exact and near-duplicate chunks within one document,
// keeping the first occurrence. It implements the PostProcessor interface.
type Processor struct {
	maxDistance int
}

// Option configures the dedup processor.
type Option func(*Processor)

// WithMaxDistance sets the near-duplicate threshold in bits.
func WithMaxDistance(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.maxDistance = n
		}
	}
}

// New creates a dedup processor.
func New(opts ...Option) *Processor {
	p := &Processor{maxDistance: DefaultMaxDistance}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "dedup"
}

// Process drops later duplicates and records the count on the document.
// Surviving chunks keep their index, ID and total.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if len(chunks) < 2 {
		return chunks, nil
	}

	seen := make(map[string]struct{}, len(chunks))
	idx := NewIndex(p.maxDistance)
	kept := chunks[:0]
	dropped := 0

	for _, c := range chunks {
		if _, ok := seen[c.ContentHash]; ok {
			dropped++
			continue
		}
		if c.SimHash != 0 && len(idx.Matches(c.SimHash)) > 0 {
			dropped++
			continue
		}
		seen[c.ContentHash] = struct{}{}
		if c.SimHash != 0 {
			idx.Add(c.SimHash)
		}
		kept = append(kept, c)
	}

	if dropped > 0 {
		doc.Diagnostics.DroppedDuplicates += dropped
		logger.Debug("dedup: dropped %d duplicate chunks from %s", dropped, doc.URI)
	}
	return kept, nil
}

// FlagAcross marks chunks whose fingerprints are within maxDistance of a
// chunk in a different document. Both chunks are flagged and the later one
// records the earlier one's ID. Sets are visited in order and modified in
// place. It returns the number of chunks flagged.
func FlagAcross(sets [][]domain.Chunk, maxDistance int) int {
	type ref struct {
		set, pos int
	}

	idx := NewIndex(maxDistance)
	var refs []ref
	flagged := 0

	mark := func(c *domain.Chunk) {
		if !c.IsNearDuplicate {
			c.IsNearDuplicate = true
			flagged++
		}
	}

	for s := range sets {
		for i := range sets[s] {
			c := &sets[s][i]
			if c.SimHash == 0 {
				continue
			}
			for _, m := range idx.Matches(c.SimHash) {
				r := refs[m]
				earlier := &sets[r.set][r.pos]
				if earlier.DocID == c.DocID {
					continue
				}
				mark(earlier)
				mark(c)
				if c.DuplicateOf == "" {
					c.DuplicateOf = earlier.ID
				}
			}
			idx.Add(c.SimHash)
			refs = append(refs, ref{set: s, pos: i})
		}
	}
	return flagged
}
