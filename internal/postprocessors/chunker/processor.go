// Package chunker provides a structure-aware, token-budgeted chunking processor.
//
// Each structural node is chunked independently, so a heading always forces
// a hard break and overlap never crosses into another section. Within a node
// the processor fills a window greedily, preferring to close it at a sentence
// end and falling back to the last whole word that fits.
package chunker

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Default token budgets.
const (
	DefaultMaxTokens     = 700
	DefaultOverlapTokens = 80
	DefaultMinTokens     = 40
)

// boundaryWindowPercent is the tail of the window, in percent of max
// tokens, searched for a sentence end before falling back to a word break.
const boundaryWindowPercent = 15

// mergeSlackPercent bounds a merged chunk at max tokens plus this percentage.
const mergeSlackPercent = 10

// Processor splits structural nodes into token-bounded chunks.
// It implements the PostProcessor interface.
type Processor struct {
	counter       driven.TokenCounter
	maxTokens     int
	overlapTokens int
	minTokens     int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithMaxTokens sets the token budget per chunk.
func WithMaxTokens(n int) Option {
	return func(p *Processor) {
		p.maxTokens = n
	}
}

// WithOverlap sets the number of tokens re-included from the previous chunk.
func WithOverlap(n int) Option {
	return func(p *Processor) {
		p.overlapTokens = n
	}
}

// WithMinTokens sets the size below which a chunk is merged or flagged.
func WithMinTokens(n int) Option {
	return func(p *Processor) {
		p.minTokens = n
	}
}

// New creates a chunker. It fails with a *domain.ConfigurationError when
// overlap is not below max tokens or min tokens exceeds max tokens.
func New(counter driven.TokenCounter, opts ...Option) (*Processor, error) {
	p := &Processor{
		counter:       counter,
		maxTokens:     DefaultMaxTokens,
		overlapTokens: DefaultOverlapTokens,
		minTokens:     DefaultMinTokens,
	}
	for _, opt := range opts {
		opt(p)
	}

	switch {
	case counter == nil:
		return nil, &domain.ConfigurationError{Field: "tokenizer", Reason: "token counter is required"}
	case p.maxTokens <= 0:
		return nil, &domain.ConfigurationError{Field: "max_tokens", Reason: "must be positive"}
	case p.overlapTokens < 0 || p.overlapTokens >= p.maxTokens:
		return nil, &domain.ConfigurationError{Field: "overlap_tokens", Reason: "must be in [0, max_tokens)"}
	case p.minTokens < 0 || p.minTokens > p.maxTokens:
		return nil, &domain.ConfigurationError{Field: "min_tokens", Reason: "must be in [0, max_tokens]"}
	}
	return p, nil
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// word is a whitespace-delimited span of the document text.
type word struct {
	start, end  int
	tokens      int
	sentenceEnd bool
}

// span is an inclusive range of word indices with its token count.
type span struct {
	first, last int
	tokens      int
}

// Process chunks doc.Nodes. Input chunks are ignored; this processor
// creates new chunks. Chunk IDs are assigned by a later stage.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	var (
		chunks []domain.Chunk
		nodeOf []int
	)

	for ni, node := range doc.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		words := p.words(doc.Text, node)
		for _, s := range p.split(doc.Text, words) {
			start, end := words[s.first].start, words[s.last].end
			chunks = append(chunks, domain.Chunk{
				SourceID:    doc.SourceID,
				Text:        doc.Text[start:end],
				CharStart:   start,
				CharEnd:     end,
				TokenCount:  s.tokens,
				HeadingPath: append([]string(nil), node.HeadingPath...),
			})
			nodeOf = append(nodeOf, ni)
		}
	}

	chunks = p.mergeUndersized(doc.Text, chunks, nodeOf)

	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks, nil
}

// words splits a node into words with absolute offsets and token counts.
// A word ends a sentence when it ends with terminal punctuation or is
// followed by a line break.
func (p *Processor) words(text string, node domain.StructuralNode) []word {
	var words []word
	i := node.CharStart
	for i < node.CharEnd {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if r == '\n' && len(words) > 0 {
				words[len(words)-1].sentenceEnd = true
			}
			i += size
			continue
		}

		start := i
		for i < node.CharEnd {
			r, size = utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		w := text[start:i]
		words = append(words, word{
			start:       start,
			end:         i,
			tokens:      p.counter.Count(w),
			sentenceEnd: endsSentence(w),
		})
	}
	if len(words) > 0 {
		words[len(words)-1].sentenceEnd = true
	}
	return words
}

// endsSentence reports whether w ends with terminal punctuation, allowing
// trailing closing quotes and brackets.
func endsSentence(w string) bool {
	w = strings.TrimRight(w, `"')]}»`)
	return strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") ||
		strings.HasSuffix(w, "?") || strings.HasSuffix(w, "。")
}

// split partitions the words of one node into overlapping windows.
func (p *Processor) split(text string, words []word) []span {
	n := len(words)
	if n == 0 {
		return nil
	}

	cum := make([]int, n+1)
	for i, w := range words {
		cum[i+1] = cum[i] + w.tokens
	}
	tokensIn := func(a, b int) int { return cum[b+1] - cum[a] }
	threshold := p.maxTokens - p.maxTokens*boundaryWindowPercent/100

	var spans []span
	s := 0
	for s < n {
		e := s
		for e+1 < n && tokensIn(s, e+1) <= p.maxTokens {
			e++
		}

		closeAt := e
		if e < n-1 {
			for k := e; k >= s && tokensIn(s, k) >= threshold; k-- {
				if words[k].sentenceEnd {
					closeAt = k
					break
				}
			}
		}

		// Counters that are not additive over words can exceed the budget
		// on the joined text; back off a word at a time.
		count := p.counter.Count(text[words[s].start:words[closeAt].end])
		for count > p.maxTokens && closeAt > s {
			closeAt--
			count = p.counter.Count(text[words[s].start:words[closeAt].end])
		}
		spans = append(spans, span{first: s, last: closeAt, tokens: count})

		if closeAt == n-1 {
			break
		}

		next := p.overlapStart(words, s, closeAt, tokensIn)
		if next <= s || tokensIn(next, closeAt+1) > p.maxTokens {
			next = closeAt + 1
		}
		s = next
	}
	return spans
}

// overlapStart picks where the next window begins: the earliest sentence
// start whose tail fits in the overlap budget, else the earliest word that
// fits, else right after the closed window.
func (p *Processor) overlapStart(words []word, s, c int, tokensIn func(a, b int) int) int {
	if p.overlapTokens == 0 {
		return c + 1
	}
	for b := s + 1; b <= c; b++ {
		if words[b-1].sentenceEnd && tokensIn(b, c) <= p.overlapTokens {
			return b
		}
	}
	for b := s + 1; b <= c; b++ {
		if tokensIn(b, c) <= p.overlapTokens {
			return b
		}
	}
	return c + 1
}

// mergeUndersized folds chunks below min tokens into the previous chunk of
// the same node when the result stays within the merge slack. Chunks that
// cannot be merged are kept and flagged. The sole chunk of a document is
// never flagged.
func (p *Processor) mergeUndersized(text string, chunks []domain.Chunk, nodeOf []int) []domain.Chunk {
	if len(chunks) < 2 {
		return chunks
	}

	limit := p.maxTokens + p.maxTokens*mergeSlackPercent/100
	out := make([]domain.Chunk, 0, len(chunks))
	outNode := make([]int, 0, len(chunks))

	for i, c := range chunks {
		if c.TokenCount >= p.minTokens {
			out = append(out, c)
			outNode = append(outNode, nodeOf[i])
			continue
		}

		if last := len(out) - 1; last >= 0 && outNode[last] == nodeOf[i] {
			prev := out[last]
			merged := text[prev.CharStart:c.CharEnd]
			if count := p.counter.Count(merged); count <= limit {
				prev.Text = merged
				prev.CharEnd = c.CharEnd
				prev.TokenCount = count
				out[last] = prev
				continue
			}
		}

		c.Undersized = true
		out = append(out, c)
		outNode = append(outNode, nodeOf[i])
	}
	return out
}
