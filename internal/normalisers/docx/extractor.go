// Package docx extracts text from Word documents. Paragraph styles named
// "Heading N" and explicit outline levels become heading hints, numbered
// paragraphs become list items and table rows are flattened to pipe rows.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

const (
	documentPart = "word/document.xml"
	corePart     = "docProps/core.xml"
)

var headingStyle = regexp.MustCompile(`(?i)^heading\s*([1-9])$`)

// Extractor handles DOCX documents.
type Extractor struct{}

// New creates a new DOCX extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

// Extract reads the main document part. The title comes from the core
// properties, then from the first paragraph styled as a title.
func (e *Extractor) Extract(ctx context.Context, raw []byte, _ string) (*domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", domain.ErrInvalidInput, err)
	}

	content, err := readPart(reader, documentPart)
	if err != nil {
		return nil, err
	}

	w := &walker{}
	if err := w.walk(content); err != nil {
		return nil, err
	}

	title := coreTitle(reader)
	if title == "" {
		title = w.styleTitle
	}

	return &domain.Extraction{
		Text:  w.text(),
		Hints: w.hints,
		Title: title,
	}, nil
}

// readPart returns the bytes of a named archive member.
func readPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: docx %s: %v", domain.ErrInvalidInput, name, err)
		}
		defer rc.Close()

		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: docx %s: %v", domain.ErrInvalidInput, name, err)
		}
		return content, nil
	}
	return nil, fmt.Errorf("%w: docx: missing %s", domain.ErrInvalidInput, name)
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

func coreTitle(reader *zip.Reader) string {
	content, err := readPart(reader, corePart)
	if err != nil {
		return ""
	}
	var core coreXML
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}

type block struct {
	text string
	item bool
}

type walker struct {
	blocks     []block
	hints      []domain.StructuralHint
	styleTitle string

	para     strings.Builder
	style    string
	outline  int
	listItem bool
	inRun    bool
	inText   bool

	tables int
	row    []string
	cell   []string
}

func (w *walker) walk(content []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: docx: %v", domain.ErrInvalidInput, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t)
		case xml.EndElement:
			w.end(t.Name.Local)
		case xml.CharData:
			if w.inText {
				w.para.Write(t)
			}
		}
	}
}

func (w *walker) start(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		w.para.Reset()
		w.style, w.outline, w.listItem = "", 0, false
	case "pStyle":
		w.style = attr(t, "val")
	case "outlineLvl":
		if n, err := strconv.Atoi(attr(t, "val")); err == nil && n >= 0 && n < 9 {
			w.outline = n + 1
		}
	case "numPr":
		w.listItem = true
	case "r":
		w.inRun = true
	case "t":
		w.inText = w.inRun
	case "tab":
		if w.inRun {
			w.para.WriteByte('\t')
		}
	case "br", "cr":
		if w.inRun {
			w.para.WriteByte('\n')
		}
	case "tbl":
		w.tables++
	case "tr":
		if w.tables == 1 {
			w.row = nil
		}
	case "tc":
		if w.tables == 1 {
			w.cell = nil
		}
	}
}

func (w *walker) end(name string) {
	switch name {
	case "r":
		w.inRun = false
	case "t":
		w.inText = false
	case "p":
		w.endParagraph()
	case "tc":
		if w.tables == 1 {
			w.row = append(w.row, strings.Join(w.cell, " "))
		}
	case "tr":
		if w.tables == 1 && strings.TrimSpace(strings.Join(w.row, "")) != "" {
			w.blocks = append(w.blocks, block{text: "| " + strings.Join(w.row, " | ") + " |", item: true})
		}
	case "tbl":
		w.tables--
	}
}

func (w *walker) endParagraph() {
	text := strings.TrimSpace(w.para.String())
	w.para.Reset()
	if text == "" {
		return
	}
	if w.tables > 0 {
		w.cell = append(w.cell, text)
		return
	}

	if strings.EqualFold(w.style, "Title") && w.styleTitle == "" {
		w.styleTitle = text
	}
	if level := headingLevel(w.style, w.outline); level > 0 {
		w.hints = append(w.hints, domain.StructuralHint{Level: level, Text: text})
		w.blocks = append(w.blocks, block{text: text})
		return
	}
	if w.listItem {
		w.blocks = append(w.blocks, block{text: "- " + text, item: true})
		return
	}
	w.blocks = append(w.blocks, block{text: text})
}

func headingLevel(style string, outline int) int {
	if m := headingStyle.FindStringSubmatch(style); m != nil {
		n, _ := strconv.Atoi(m[1])
		return min(n, 6)
	}
	if outline > 0 {
		return min(outline, 6)
	}
	return 0
}

// text joins blocks with blank lines; list items and table rows that
// follow each other share one line break.
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

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
