package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// buildPDF writes a minimal uncompressed PDF with one text line per page,
// a flat outline and an optional Info title.
func buildPDF(pages, outline []string, title string) []byte {
	var objs []string
	add := func(body string) int {
		objs = append(objs, body)
		return len(objs)
	}

	catalog := add("") // filled in below
	pagesObj := add("")
	font := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var kids []string
	for _, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		content := add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
		page := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", pagesObj, font, content))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	objs[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	cat := fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R", pagesObj)
	if len(outline) > 0 {
		root := add("")
		first := len(objs) + 1
		for i, t := range outline {
			item := fmt.Sprintf("<< /Title (%s) /Parent %d 0 R", t, root)
			if i > 0 {
				item += fmt.Sprintf(" /Prev %d 0 R", first+i-1)
			}
			if i < len(outline)-1 {
				item += fmt.Sprintf(" /Next %d 0 R", first+i+1)
			}
			add(item + " >>")
		}
		objs[root-1] = fmt.Sprintf("<< /Type /Outlines /First %d 0 R /Last %d 0 R /Count %d >>",
			first, first+len(outline)-1, len(outline))
		cat += fmt.Sprintf(" /Outlines %d 0 R", root)
	}
	objs[catalog-1] = cat + " >>"

	info := 0
	if title != "" {
		info = add(fmt.Sprintf("<< /Title (%s) >>", title))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	trailer := fmt.Sprintf("<< /Size %d /Root %d 0 R", len(objs)+1, catalog)
	if info > 0 {
		trailer += fmt.Sprintf(" /Info %d 0 R", info)
	}
	fmt.Fprintf(&buf, "trailer\n%s >>\nstartxref\n%d\n%%%%EOF\n", trailer, xref)
	return buf.Bytes()
}

func TestSupportedMIMETypes(t *testing.T) {
	assert.Equal(t, []string{"application/pdf"}, New().SupportedMIMETypes())
}

func TestExtract_Pages(t *testing.T) {
	raw := buildPDF([]string{"Hello first page", "Second page here"}, nil, "")

	got, err := New().Extract(context.Background(), raw, "application/pdf")
	require.NoError(t, err)

	pages := strings.Split(got.Text, "\f")
	require.Len(t, pages, 2)
	assert.Contains(t, pages[0], "Hello first page")
	assert.Contains(t, pages[1], "Second page here")
	assert.Empty(t, got.Hints)
	assert.Empty(t, got.Title)
}

func TestExtract_OutlineAndTitle(t *testing.T) {
	raw := buildPDF([]string{"Body"}, []string{"Introduction", "Results"}, "Annual Report")

	got, err := New().Extract(context.Background(), raw, "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, []domain.StructuralHint{
		{Level: 1, Text: "Introduction"},
		{Level: 1, Text: "Results"},
	}, got.Hints)
	assert.Equal(t, "Annual Report", got.Title)
}

func TestExtract_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("hello world")},
		{"truncated", buildPDF([]string{"x"}, nil, "")[:40]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Extract(context.Background(), tt.raw, "application/pdf")
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Nil(t, got)
		})
	}
}

func TestOutlineHints_Nested(t *testing.T) {
	root := pdfOutline("", pdfOutline("Part", pdfOutline("Chapter"), pdfOutline("")), pdfOutline("Appendix"))

	assert.Equal(t, []domain.StructuralHint{
		{Level: 1, Text: "Part"},
		{Level: 2, Text: "Chapter"},
		{Level: 1, Text: "Appendix"},
	}, outlineHints(root, 0, nil))
}

func pdfOutline(title string, children ...pdf.Outline) pdf.Outline {
	return pdf.Outline{Title: title, Child: children}
}
