// Package markdown extracts text and heading hints from Markdown documents.
//
// The document is parsed with goldmark and rendered back to a simplified
// Markdown: ATX headings, paragraphs, "- " list items and fenced code.
// Emphasis, images and raw HTML are dropped and links keep only their text.
package markdown

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles Markdown documents.
type Extractor struct {
	parser parser.Parser
}

// New creates a new Markdown extractor.
func New() *Extractor {
	return &Extractor{parser: goldmark.New().Parser()}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Extract renders the document as simplified Markdown. Every heading
// becomes a hint; the title comes from front matter or the first H1.
func (e *Extractor) Extract(ctx context.Context, raw []byte, _ string) (*domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	title, body := splitFrontMatter(raw)
	doc := e.parser.Parse(text.NewReader(body))

	r := &renderer{src: body}
	out := strings.Join(r.blocks(doc), "\n\n")
	if title == "" {
		title = r.title
	}

	return &domain.Extraction{
		Text:  out,
		Hints: r.hints,
		Title: title,
	}, nil
}

// splitFrontMatter removes a leading YAML front matter block and returns
// its title, if any.
func splitFrontMatter(raw []byte) (string, []byte) {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	src := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(src, []byte("---\n")) {
		return "", raw
	}
	rest := src[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return "", raw
	}
	after := rest[end+len("\n---"):]
	if len(after) > 0 && after[0] != '\n' {
		return "", raw
	}

	var meta struct {
		Title string `yaml:"title"`
	}
	_ = yaml.Unmarshal(rest[:end], &meta)
	return strings.TrimSpace(meta.Title), bytes.TrimLeft(after, "\n")
}

type renderer struct {
	src   []byte
	hints []domain.StructuralHint
	title string
}

func (r *renderer) blocks(parent ast.Node) []string {
	var out []string
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if s := r.block(n); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *renderer) block(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Heading:
		heading := strings.TrimSpace(r.inline(n))
		if heading == "" {
			return ""
		}
		r.hints = append(r.hints, domain.StructuralHint{Level: n.Level, Text: heading})
		if r.title == "" && n.Level == 1 {
			r.title = heading
		}
		return strings.Repeat("#", n.Level) + " " + heading
	case *ast.Paragraph, *ast.TextBlock:
		return strings.TrimSpace(r.inline(n))
	case *ast.FencedCodeBlock:
		return "```" + string(n.Language(r.src)) + "\n" + r.lines(n.Lines()) + "```"
	case *ast.CodeBlock:
		return "```\n" + r.lines(n.Lines()) + "```"
	case *ast.List:
		return r.list(n)
	case *ast.Blockquote:
		return strings.Join(r.blocks(n), "\n\n")
	}
	return ""
}

func (r *renderer) list(l *ast.List) string {
	var items []string
	num := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "- "
		if l.IsOrdered() {
			marker = strconv.Itoa(num) + ". "
			num++
		}
		items = append(items, marker+strings.Join(r.blocks(item), "\n"))
	}
	return strings.Join(items, "\n")
}

func (r *renderer) lines(segs *text.Segments) string {
	var b strings.Builder
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		b.Write(seg.Value(r.src))
	}
	s := b.String()
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}

func (r *renderer) inline(n ast.Node) string {
	var b strings.Builder
	r.writeInline(&b, n)
	return b.String()
}

func (r *renderer) writeInline(b *strings.Builder, parent ast.Node) {
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(r.src))
			switch {
			case c.HardLineBreak():
				b.WriteByte('\n')
			case c.SoftLineBreak():
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.AutoLink:
			b.Write(c.URL(r.src))
		case *ast.Image, *ast.RawHTML:
			// dropped
		default:
			r.writeInline(b, c)
		}
	}
}
