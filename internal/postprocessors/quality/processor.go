// Package quality scores chunks for retrieval usefulness.
//
// Every chunk gets a low-signal verdict with a reason, a retrieval weight
// multiplier and a section type. Scoring looks only at the chunk's own text,
// heading path and position, so it is deterministic per chunk.
package quality

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// DefaultMinTokens matches the chunker's default.
const DefaultMinTokens = 40

// Thresholds.
const (
	symbolRatioLimit     = 0.30
	navigationRatioLimit = 0.50
	shortTextChars       = 100
	codeShare            = 0.80
	referenceURLCount    = 10
	maxWeight            = 1.5
)

// Processor computes quality fields for each chunk.
// It implements the PostProcessor interface.
type Processor struct {
	minTokens int
}

// Option configures the quality processor.
type Option func(*Processor)

// WithMinTokens sets the token count below which a chunk is too short.
func WithMinTokens(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.minTokens = n
		}
	}
}

// New creates a quality processor.
func New(opts ...Option) *Processor {
	p := &Processor{minTokens: DefaultMinTokens}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "quality"
}

// Process sets IsLowSignal, LowSignalReason, RetrievalWeight and
// SectionType on every chunk.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := &chunks[i]
		c.LowSignalReason = p.lowSignal(c, len(chunks))
		c.IsLowSignal = c.LowSignalReason != domain.LowSignalNone
		c.SectionType = sectionType(c)
		c.RetrievalWeight = retrievalWeight(c, doc.Title)
	}
	return chunks, nil
}

// lowSignal returns the first reason that applies, or LowSignalNone.
func (p *Processor) lowSignal(c *domain.Chunk, siblings int) domain.LowSignalReason {
	switch {
	case c.Undersized, siblings > 1 && c.TokenCount < p.minTokens:
		return domain.LowSignalTooShort
	case linksOnly(c.Text):
		return domain.LowSignalLinksOnly
	case navigationRatio(c.Text) > navigationRatioLimit:
		return domain.LowSignalNavigation
	case symbolRatio(c.Text) > symbolRatioLimit:
		return domain.LowSignalSymbolHeavy
	}
	return domain.LowSignalNone
}

// symbolRatio is the share of all characters, whitespace included, that
// are digits or punctuation.
func symbolRatio(text string) float64 {
	var total, symbols int
	for _, r := range text {
		total++
		if unicode.IsDigit(r) || unicode.IsPunct(r) {
			symbols++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(symbols) / float64(total)
}

var (
	navLine = regexp.MustCompile(`^(home|menu|search|log ?in|log ?out|sign ?in|sign ?up|register|` +
		`skip to (main )?content|next|previous|prev|back to top|top|navigation|breadcrumbs?|` +
		`share( this)?( on \w+)?|follow us.*|cookie.*|privacy( policy)?|terms( of (use|service))?|` +
		`contact( us)?|about( us)?|.*all rights reserved.*|(©|copyright|\(c\)) .*)$`)

	menuSeparators = regexp.MustCompile(`\s+[|·>»/]\s+`)
	bulletPrefix   = regexp.MustCompile(`^(- |\d+[.)] )`)
)

// navigationRatio is the share of non-blank lines that look like menus,
// footers or sharing widgets.
func navigationRatio(text string) float64 {
	var total, nav int
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		if isNavigationLine(line) {
			nav++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(nav) / float64(total)
}

func isNavigationLine(line string) bool {
	line = strings.ToLower(bulletPrefix.ReplaceAllString(line, ""))
	line = strings.TrimRight(line, ".:")
	if navLine.MatchString(line) {
		return true
	}
	// Menus rendered on one line: "Home | Docs | Blog".
	parts := menuSeparators.Split(line, -1)
	if len(parts) < 3 {
		return false
	}
	for _, part := range parts {
		if len(strings.Fields(part)) > 3 {
			return false
		}
	}
	return true
}

var (
	markdownLink = regexp.MustCompile(`!?\[[^\]]*\]\([^)]*\)`)
	bareURL      = regexp.MustCompile(`https?://[^\s<>"]+|www\.[^\s<>"]+`)
	proseWord    = regexp.MustCompile(`\p{L}{2,}`)
)

// linksOnly reports whether the text is links with no surrounding prose.
func linksOnly(text string) bool {
	links := len(markdownLink.FindAllStringIndex(text, -1))
	rest := markdownLink.ReplaceAllString(text, " ")
	links += len(bareURL.FindAllStringIndex(rest, -1))
	if links == 0 {
		return false
	}
	rest = bareURL.ReplaceAllString(rest, " ")
	return len(proseWord.FindAllString(rest, -1)) < 3
}

var (
	fencedBlock = regexp.MustCompile("(?s)```.*?```")
	dotLeaders  = regexp.MustCompile(`(\.\s*){3,}\d+`)
	urlPattern  = regexp.MustCompile(`https?://`)

	tocHeading       = regexp.MustCompile(`\b(table of contents|contents|index)\b`)
	referenceHeading = regexp.MustCompile(`\b(references|bibliography|citations|sources|further reading|see also|appendix)\b`)
)

// sectionType classifies a chunk. Content detectors win over structure.
func sectionType(c *domain.Chunk) domain.SectionType {
	heading := lastHeading(c.HeadingPath)
	switch {
	case isCode(c.Text):
		return domain.SectionCode
	case dotLeaders.MatchString(c.Text), tocHeading.MatchString(heading):
		return domain.SectionTOC
	case len(urlPattern.FindAllStringIndex(c.Text, -1)) > referenceURLCount,
		referenceHeading.MatchString(heading):
		return domain.SectionReferences
	case len(c.HeadingPath) > 0:
		return domain.SectionStructured
	case !c.IsLowSignal:
		return domain.SectionSimple
	}
	return domain.SectionContent
}

func isCode(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	var code int
	for _, block := range fencedBlock.FindAllString(trimmed, -1) {
		code += len(block)
	}
	return float64(code) > float64(len(trimmed))*codeShare
}

func lastHeading(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return strings.ToLower(path[len(path)-1])
}

var (
	introHeading   = regexp.MustCompile(`\b(overview|introduction|summary|abstract)\b`)
	faqHeading     = regexp.MustCompile(`\b(faqs?|frequently asked|q&a|questions)\b`)
	exampleHeading = regexp.MustCompile(`\b(examples?|tutorials?|getting started|how to|quick ?start)\b`)
	footerText     = regexp.MustCompile(`copyright|all rights reserved|terms of service|©`)
)

// retrievalWeight multiplies role adjustments, clamped to [0, 1.5] and
// rounded to four decimals.
func retrievalWeight(c *domain.Chunk, title string) float64 {
	weight := 1.0
	heading := strings.ToLower(strings.Join(c.HeadingPath, " / "))
	lower := strings.ToLower(c.Text)

	if c.ChunkIndex == 0 && title != "" {
		weight *= 1.1
	}

	switch {
	case faqHeading.MatchString(heading):
		weight *= 1.3
	case introHeading.MatchString(heading):
		weight *= 1.2
	case exampleHeading.MatchString(heading):
		weight *= 1.15
	}

	switch c.SectionType {
	case domain.SectionReferences:
		weight *= 0.5
	case domain.SectionTOC:
		weight *= 0.4
	}

	if footerText.MatchString(lower) {
		weight *= 0.3
	}
	if len(strings.TrimSpace(c.Text)) < shortTextChars {
		weight *= 0.7
	}
	if c.IsLowSignal {
		weight *= 0.7
	}

	weight = math.Max(0, math.Min(maxWeight, weight))
	return math.Round(weight*10000) / 10000
}
