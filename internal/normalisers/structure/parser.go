// Package structure detects heading hierarchy in cleaned text and splits
// it into structural nodes, each carrying the heading path that governs it.
package structure

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.StructureParser = (*Parser)(nil)

var markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)

// Parser builds structural nodes from markdown markers and extractor hints.
type Parser struct{}

// New creates a parser.
func New() *Parser {
	return &Parser{}
}

type heading struct {
	level int
	title string
}

type line struct {
	text       string
	start, end int
}

// Parse splits text into nodes in reading order. Each heading opens a new
// node; text before the first heading forms a node with an empty path.
// Without any heading the whole text is a single node.
func (p *Parser) Parse(text string, hints []domain.StructuralHint) []domain.StructuralNode {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		nodes   []domain.StructuralNode
		stack   []heading
		current *domain.StructuralNode
		pending = hints
	)

	flush := func(end int) {
		if current == nil {
			return
		}
		start, stop := trimRange(text, current.CharStart, end)
		if start < stop {
			current.CharStart, current.CharEnd = start, stop
			current.Text = text[start:stop]
			nodes = append(nodes, *current)
		}
		current = nil
	}

	current = &domain.StructuralNode{CharStart: 0}
	inFence := false
	for _, ln := range splitLines(text) {
		if strings.HasPrefix(strings.TrimSpace(ln.text), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		h, ok := detectHeading(ln.text, &pending)
		if !ok {
			continue
		}
		flush(ln.start)

		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)

		current = &domain.StructuralNode{
			HeadingPath: headingPath(stack),
			Heading:     h.title,
			Level:       h.level,
			CharStart:   ln.start,
		}
	}
	flush(len(text))

	return nodes
}

// detectHeading reports whether a line is a heading, either by markdown
// marker or by matching a pending extractor hint. Hints are consumed in
// order; a match further ahead drops the hints before it, so a hint whose
// text never appears cannot block the ones after it.
func detectHeading(text string, hints *[]domain.StructuralHint) (heading, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return heading{}, false
	}

	if m := markdownHeading.FindStringSubmatch(trimmed); m != nil {
		// The hint for a markdown heading names the same line; consume it.
		if i := matchHint(*hints, m[2]); i >= 0 {
			*hints = (*hints)[i+1:]
		}
		return heading{level: len(m[1]), title: m[2]}, true
	}

	i := matchHint(*hints, trimmed)
	if i < 0 {
		return heading{}, false
	}
	h := (*hints)[i]
	*hints = (*hints)[i+1:]
	level := h.Level
	if level < 1 {
		level = 1
	}
	return heading{level: level, title: trimmed}, true
}

// matchHint returns the index of the first pending hint naming text, or -1.
func matchHint(hints []domain.StructuralHint, text string) int {
	for i, h := range hints {
		if sameHeading(h.Text, text) {
			return i
		}
	}
	return -1
}

// sameHeading compares heading text ignoring case and spacing.
func sameHeading(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}

func headingPath(stack []heading) []string {
	path := make([]string, len(stack))
	for i, h := range stack {
		path[i] = h.title
	}
	return path
}

func splitLines(text string) []line {
	var lines []line
	start := 0
	for start <= len(text) {
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			lines = append(lines, line{text: text[start:], start: start, end: len(text)})
			break
		}
		lines = append(lines, line{text: text[start : start+end], start: start, end: start + end})
		start += end + 1
	}
	return lines
}

// trimRange narrows [start, end) to exclude surrounding whitespace.
func trimRange(text string, start, end int) (int, int) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return start, end
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\f' || b == '\r'
}
