package html

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// skipped elements are dropped with their whole subtree.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"nav":      true,
	"footer":   true,
	"aside":    true,
}

var blocks = map[string]bool{
	"html": true, "body": true, "p": true, "div": true, "section": true,
	"article": true, "main": true, "ul": true, "ol": true, "dl": true,
	"dt": true, "dd": true, "table": true, "thead": true, "tbody": true,
	"tfoot": true, "tr": true, "blockquote": true, "figure": true,
	"figcaption": true, "br": true, "hr": true, "address": true,
	"details": true, "summary": true, "form": true, "header": true,
	"caption": true,
}

var headingLevels = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

// Extractor handles HTML documents.
type Extractor struct{}

// New creates a new HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml", "application/xml", "text/xml"}
}

// Extract converts markup to text. In XML documents every element ends a
// block since no tag is known to be inline.
func (e *Extractor) Extract(ctx context.Context, raw []byte, mimeType string) (*domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &walker{xml: isXML(mimeType)}
	z := html.NewTokenizer(bytes.NewReader(raw))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: html: %v", domain.ErrInvalidInput, err)
			}
			w.flush()
			title := strings.Join(strings.Fields(w.title.String()), " ")
			if title == "" {
				title = w.firstH1
			}
			return &domain.Extraction{
				Text:     w.text(),
				Hints:    w.hints,
				Title:    title,
				Language: w.lang,
			}, nil
		case html.TextToken:
			w.write(string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "html" && hasAttr {
				w.lang = langAttr(z)
			}
			w.start(string(name), tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			name, _ := z.TagName()
			w.end(string(name))
		}
	}
}

type block struct {
	text string
	item bool
}

type walker struct {
	xml  bool
	lang string

	blocks  []block
	hints   []domain.StructuralHint
	firstH1 string
	title   strings.Builder
	cur     strings.Builder

	prefix  string
	heading int
	skip    int
	pre     int
	content int
	inTitle bool
}

func (w *walker) write(s string) {
	switch {
	case w.skip > 0:
	case w.inTitle:
		w.title.WriteString(s)
	default:
		w.cur.WriteString(s)
	}
}

func (w *walker) start(name string, selfClosing bool) {
	if w.skip > 0 || (name == "header" && w.content == 0) {
		if !selfClosing && (skipped[name] || name == "header") {
			w.skip++
		}
		return
	}
	if skipped[name] {
		if !selfClosing {
			w.skip++
		}
		return
	}

	switch {
	case name == "title" && !w.xml:
		w.inTitle = !selfClosing
	case headingLevels[name] > 0:
		w.flush()
		w.heading = headingLevels[name]
	case name == "li":
		w.flush()
		w.prefix = "- "
	case name == "td" || name == "th":
		if strings.TrimSpace(w.cur.String()) != "" {
			w.cur.WriteString(" | ")
		}
	case name == "pre":
		w.flush()
		w.pre++
	case name == "article" || name == "main":
		w.flush()
		if !selfClosing {
			w.content++
		}
	case blocks[name] || w.xml:
		w.flush()
	}
}

func (w *walker) end(name string) {
	if w.skip > 0 {
		if skipped[name] || name == "header" {
			w.skip--
		}
		return
	}

	switch {
	case name == "title" && !w.xml:
		w.inTitle = false
	case headingLevels[name] > 0:
		w.flush()
		w.heading = 0
	case name == "pre":
		if w.pre > 0 {
			w.pre--
		}
		if w.pre == 0 {
			w.flushCode()
		}
	case name == "article" || name == "main":
		w.flush()
		if w.content > 0 {
			w.content--
		}
	case name == "li" || blocks[name] || w.xml:
		w.flush()
	}
}

// flush closes the current block with whitespace collapsed.
func (w *walker) flush() {
	if w.pre > 0 {
		return
	}
	text := strings.Join(strings.Fields(w.cur.String()), " ")
	w.cur.Reset()
	prefix := w.prefix
	w.prefix = ""
	if text == "" {
		return
	}

	if w.heading > 0 {
		w.hints = append(w.hints, domain.StructuralHint{Level: w.heading, Text: text})
		if w.heading == 1 && w.firstH1 == "" {
			w.firstH1 = text
		}
	}
	w.blocks = append(w.blocks, block{text: prefix + text, item: prefix != ""})
}

// flushCode closes a preformatted block as fenced code.
func (w *walker) flushCode() {
	code := strings.Trim(w.cur.String(), "\n")
	w.cur.Reset()
	if strings.TrimSpace(code) == "" {
		return
	}
	w.blocks = append(w.blocks, block{text: "```\n" + code + "\n```"})
}

// text joins blocks with blank lines; consecutive list items share one.
func (w *walker) text() string {
	var b strings.Builder
	for i, blk := range w.blocks {
		if i > 0 {
			if blk.item && w.blocks[i-1].item {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		}
		b.WriteString(blk.text)
	}
	return b.String()
}

// langAttr returns the lang attribute of the current tag.
func langAttr(z *html.Tokenizer) string {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "lang" || string(key) == "xml:lang" {
			return strings.TrimSpace(string(val))
		}
		if !more {
			return ""
		}
	}
}

func isXML(mimeType string) bool {
	if mimeType == "application/xhtml+xml" {
		return false
	}
	return strings.HasSuffix(mimeType, "/xml") || strings.HasSuffix(mimeType, "+xml")
}
