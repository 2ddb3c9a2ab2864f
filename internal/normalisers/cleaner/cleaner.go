// Package cleaner normalises extracted text before structure detection.
//
// Cleaning is a pure function of its input: Unicode composition, ligature
// and punctuation folding, boilerplate line removal, bullet unification and
// whitespace collapse. Malformed bytes never cause a failure; they are
// replaced with U+FFFD and counted.
package cleaner

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// RuleVersion identifies the cleaning rules. Bump it whenever output for
// the same input may change, so cached chunks are invalidated.
const RuleVersion = "clean-v2"

// Ensure Normaliser implements the interface.
var _ driven.TextNormaliser = (*Normaliser)(nil)

const (
	// pageBreak separates pages in extracted text.
	pageBreak = "\f"

	defaultMinRepeats    = 3
	defaultMaxLineLength = 120
	replacementCharacter = '\ufffd'
)

var folding = strings.NewReplacer(
	// Ligatures.
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"ﬅ", "st",
	"ﬆ", "st",
	// Quotes.
	"‘", "'",
	"’", "'",
	"‚", "'",
	"‛", "'",
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"‟", `"`,
	// Dashes.
	"–", "-",
	"—", "-",
	"―", "-",
	"−", "-",
	// Ellipsis and spaces.
	"\u2026", "...",
	"\u00a0", " ",
	"\u2002", " ",
	"\u2003", " ",
	"\u2009", " ",
	"\u202f", " ",
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\v]+`)
	blockSplit      = regexp.MustCompile(`\n[ \t]*\n`)
	pageNumberLine  = regexp.MustCompile(`(?i)^(?:page\s+)?\d{1,4}(?:\s*(?:of|/)\s*\d{1,4})?$|^-\s*\d{1,4}\s*-$`)
	horizontalRule  = regexp.MustCompile(`^[-=_*]{3,}$`)
	headingLine     = regexp.MustCompile(`^#{1,6}\s`)
	listItemLine    = regexp.MustCompile(`^(?:- |\d{1,3}[.)]\s|[a-zA-Z][.)]\s)`)
	letter          = regexp.MustCompile(`\pL`)
)

// bulletGlyphs are converted to "- " at the start of a line.
// '*' and '+' count only when followed by a space.
const bulletGlyphs = "•▪●◦▫■□○◆◇‣⁃∙➤➢·→"

// Normaliser cleans extracted text.
type Normaliser struct {
	minRepeats    int
	maxLineLength int
}

// Option configures a Normaliser.
type Option func(*Normaliser)

// WithMinRepeats sets how many distinct pages a line must appear on to be
// treated as a running header or footer.
func WithMinRepeats(n int) Option {
	return func(c *Normaliser) {
		if n > 1 {
			c.minRepeats = n
		}
	}
}

// New creates a normaliser with the given options.
func New(opts ...Option) *Normaliser {
	n := &Normaliser{
		minRepeats:    defaultMinRepeats,
		maxLineLength: defaultMaxLineLength,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// RuleVersion returns the version of the cleaning rules.
func (n *Normaliser) RuleVersion() string {
	return RuleVersion
}

// Normalise cleans raw extracted text. Lines matching one of headings are
// never removed as boilerplate, however often they recur.
func (n *Normaliser) Normalise(raw string, headings ...string) driven.NormaliseResult {
	text, replaced := sanitise(raw)
	text = norm.NFC.String(text)
	text = folding.Replace(text)

	sections := splitSections(text)
	boilerplate := n.repeatedLines(sections)
	for _, h := range headings {
		h, _ = sanitise(h)
		delete(boilerplate, n.boilerplateKey(folding.Replace(norm.NFC.String(h))))
	}

	var (
		pages    []string
		stripped int
	)
	for _, section := range sections {
		page, removed := n.cleanSection(section, boilerplate)
		stripped += removed
		if page != "" {
			pages = append(pages, page)
		}
	}

	return driven.NormaliseResult{
		Text:          strings.Join(pages, "\n\n"),
		Replaced:      replaced,
		StrippedLines: stripped,
	}
}

// sanitise replaces invalid UTF-8 with U+FFFD, folds line endings to \n and
// drops control and zero-width characters other than tab, newline and form
// feed.
func sanitise(s string) (string, int) {
	var (
		b        strings.Builder
		replaced int
	)
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == utf8.RuneError && size == 1:
			b.WriteRune(replacementCharacter)
			replaced++
		case r == '\r':
			if i < len(s) && s[i] == '\n' {
				continue
			}
			b.WriteByte('\n')
		case r == '\n' || r == '\t' || r == '\f':
			b.WriteRune(r)
		case r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\ufeff' || r == '\u00ad':
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), replaced
}

// splitSections splits text into pages, or into blank-line separated blocks
// when the text has no page breaks.
func splitSections(text string) []string {
	if strings.Contains(text, pageBreak) {
		return strings.Split(text, pageBreak)
	}
	return []string{text}
}

// boilerplateKey returns the comparison key for a line, or "" when the
// line is never considered boilerplate.
func (n *Normaliser) boilerplateKey(line string) string {
	line = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	if line == "" || len(line) > n.maxLineLength {
		return ""
	}
	if headingLine.MatchString(line) || strings.HasPrefix(line, "```") || !letter.MatchString(line) {
		return ""
	}
	return strings.ToLower(line)
}

// repeatedLines returns the keys of lines appearing on at least minRepeats
// distinct pages. Without page breaks, blank-line separated blocks stand in
// for pages.
func (n *Normaliser) repeatedLines(sections []string) map[string]bool {
	units := sections
	if len(units) < n.minRepeats {
		units = nil
		for _, section := range sections {
			units = append(units, blockSplit.Split(section, -1)...)
		}
	}
	if len(units) < n.minRepeats {
		return nil
	}

	counts := make(map[string]int)
	for _, unit := range units {
		seen := make(map[string]bool)
		for _, line := range strings.Split(unit, "\n") {
			key := n.boilerplateKey(line)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			counts[key]++
		}
	}

	repeated := make(map[string]bool)
	for key, count := range counts {
		if count >= n.minRepeats {
			repeated[key] = true
		}
	}
	return repeated
}

// cleanSection removes boilerplate, unifies bullets and collapses
// whitespace in one page. It returns the cleaned page and the number of
// lines stripped.
func (n *Normaliser) cleanSection(section string, boilerplate map[string]bool) (string, int) {
	var (
		out      strings.Builder
		prev     string
		inFence  bool
		blank    bool
		stripped int
	)

	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			prev = writeLine(&out, trimmed, prev, blank, false)
			blank = false
			continue
		}
		if inFence {
			// Code keeps its indentation.
			prev = writeLine(&out, strings.TrimRight(line, " \t"), prev, false, false)
			continue
		}

		trimmed = strings.TrimSpace(horizontalSpace.ReplaceAllString(trimmed, " "))
		if trimmed == "" {
			blank = true
			continue
		}
		if pageNumberLine.MatchString(trimmed) || horizontalRule.MatchString(trimmed) ||
			boilerplate[n.boilerplateKey(trimmed)] {
			stripped++
			continue
		}

		trimmed = normaliseBullet(trimmed)
		prev = writeLine(&out, trimmed, prev, blank, canJoin(prev, trimmed))
		blank = false
	}

	return strings.TrimSpace(out.String()), stripped
}

// writeLine appends line to out and returns it as the new previous line.
// Soft-wrapped lines are joined with a space; a pending blank line becomes
// a paragraph break.
func writeLine(out *strings.Builder, line, prev string, blank, join bool) string {
	switch {
	case out.Len() == 0:
	case blank:
		out.WriteString("\n\n")
	case join:
		out.WriteByte(' ')
	default:
		out.WriteByte('\n')
	}
	out.WriteString(line)
	return line
}

// canJoin reports whether line continues the soft-wrapped prev line.
func canJoin(prev, line string) bool {
	if prev == "" {
		return false
	}
	if headingLine.MatchString(prev) || headingLine.MatchString(line) {
		return false
	}
	if listItemLine.MatchString(line) || strings.HasPrefix(line, "|") || strings.HasPrefix(prev, "|") {
		return false
	}
	return !strings.HasPrefix(prev, "```")
}

// normaliseBullet rewrites a leading bullet glyph as "- ".
func normaliseBullet(line string) string {
	r, size := utf8.DecodeRuneInString(line)
	rest := line[size:]
	switch {
	case strings.ContainsRune(bulletGlyphs, r):
		return "- " + strings.TrimLeft(rest, " ")
	case (r == '*' || r == '+') && strings.HasPrefix(rest, " "):
		return "- " + strings.TrimLeft(rest, " ")
	default:
		return line
	}
}
