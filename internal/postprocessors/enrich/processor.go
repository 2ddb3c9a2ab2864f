// Package enrich attaches source metadata and content features to chunks.
//
// Source metadata (canonical URL, domain, path, format, language, source
// type and confidence) is computed once per document and copied to every
// chunk. Content features describe each chunk's own text.
package enrich

import (
	"context"
	"math"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/identity"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

const (
	// DefaultLanguage is used when detection finds nothing.
	DefaultLanguage = "en"

	// languageSample bounds the text used for language detection.
	languageSample = 1000
)

// Processor fills in source metadata and content features.
// It implements the PostProcessor interface.
type Processor struct{}

// New creates an enrich processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "enrich"
}

// Process enriches every chunk of doc.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := Describe(doc)
	for i := range chunks {
		c := &chunks[i]
		c.CanonicalURL = meta.CanonicalURL
		c.Domain = meta.Domain
		c.Path = meta.Path
		c.Format = meta.Format
		c.Language = meta.Language
		c.SourceType = meta.SourceType
		c.SourceConfidence = meta.SourceConfidence

		f := DetectFeatures(c.Text)
		c.HasCode, c.HasTable, c.HasList, c.LinksOut = f.HasCode, f.HasTable, f.HasList, f.LinksOut
	}
	return chunks, nil
}

// Metadata is the per-document part of the enrichment.
type Metadata struct {
	CanonicalURL     string
	Domain           string
	Path             string
	Format           string
	Language         string
	SourceType       domain.SourceType
	SourceConfidence float64
}

// Describe computes the source metadata of a document.
func Describe(doc *domain.Document) Metadata {
	canonical := identity.CanonicalReference(doc.URI)
	host, p := urlComponents(canonical)
	sourceType := DetectSourceType(doc.URI, host == "", doc.Text)
	return Metadata{
		CanonicalURL:     canonical,
		Domain:           host,
		Path:             p,
		Format:           DetectFormat(doc.URI, doc.MIMEType),
		Language:         DetectLanguage(doc.Text, doc.Language),
		SourceType:       sourceType,
		SourceConfidence: SourceConfidence(host, sourceType),
	}
}

// urlComponents splits a canonical reference into its domain, without a
// leading "www.", and its path. Local references have no domain.
func urlComponents(canonical string) (string, string) {
	u, err := url.Parse(canonical)
	if err != nil || u.Host == "" {
		return "", strings.TrimPrefix(canonical, "file://")
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	return strings.TrimPrefix(u.Hostname(), "www."), p
}

var formatsByExtension = map[string]string{
	".pdf":      "pdf",
	".html":     "html",
	".htm":      "html",
	".md":       "md",
	".markdown": "md",
	".docx":     "docx",
	".txt":      "txt",
	".tex":      "latex",
	".json":     "json",
	".csv":      "csv",
	".rst":      "rst",
	".xml":      "xml",
}

var formatsByMIME = []struct {
	fragment string
	format   string
}{
	{"pdf", "pdf"},
	{"wordprocessingml", "docx"},
	{"html", "html"},
	{"markdown", "md"},
	{"json", "json"},
	{"csv", "csv"},
	{"xml", "xml"},
	{"text/plain", "txt"},
}

// DetectFormat names the document format, from the reference's extension
// first and the MIME type second. Unknown formats are "txt".
func DetectFormat(ref, mimeType string) string {
	ref = strings.ToLower(ref)
	if u, err := url.Parse(ref); err == nil && len(u.Scheme) > 1 {
		ref = u.Path
	}
	if f, ok := formatsByExtension[path.Ext(ref)]; ok {
		return f
	}
	mimeType = strings.ToLower(mimeType)
	for _, m := range formatsByMIME {
		if strings.Contains(mimeType, m.fragment) {
			return m.format
		}
	}
	return "txt"
}

// DetectLanguage returns a two-letter language code. A language declared by
// the document wins over detection from its text.
func DetectLanguage(text, declared string) string {
	declared = strings.TrimSpace(declared)
	if len(declared) >= 2 {
		return strings.ToLower(declared[:2])
	}

	sample := text
	if len(sample) > languageSample {
		sample = sample[:languageSample]
		for !utf8.ValidString(sample) {
			sample = sample[:len(sample)-1]
		}
	}
	if strings.TrimSpace(sample) == "" {
		return DefaultLanguage
	}
	if code := whatlanggo.Detect(sample).Lang.Iso6391(); code != "" {
		return code
	}
	return DefaultLanguage
}

var (
	academicHosts  = []string{".edu", "arxiv.org", "scholar.google", "pubmed"}
	newsHosts      = []string{"news", "bbc.com", "cnn.com", "reuters.com"}
	communityHosts = []string{"stackoverflow.com", "reddit.com"}
	legalMarkers   = []string{"legal", "law", "regulation", "compliance"}
	docsMarkers    = []string{"/docs/", "/documentation/", "/api/"}
	logMarkers     = []string{"error", "warning", "debug", "info"}
)

// logLineCount is how many lines text with log levels needs to be a log.
const logLineCount = 20

// DetectSourceType classifies a document by its reference, then by the
// first part of its text. Local references are only classified by text and
// are internal without other signals.
func DetectSourceType(ref string, local bool, text string) domain.SourceType {
	ref = strings.ToLower(ref)
	switch {
	case local:
	case strings.Contains(ref, "github.com"), strings.Contains(ref, "gitlab.com"):
		return domain.SourceCode
	case containsAny(ref, academicHosts):
		return domain.SourceAcademic
	case containsAny(ref, newsHosts):
		return domain.SourceNews
	case containsAny(ref, communityHosts):
		return domain.SourceCommunity
	case containsAny(ref, legalMarkers):
		return domain.SourceLegal
	case containsAny(ref, docsMarkers):
		return domain.SourceOfficialDocs
	}

	head := text
	if len(head) > languageSample {
		head = head[:languageSample]
	}
	head = strings.ToLower(head)
	switch {
	case strings.Contains(head, "copyright") && strings.Contains(head, "terms"):
		return domain.SourceLegal
	case strings.Contains(head, "abstract") && strings.Contains(head, "methodology"):
		return domain.SourceAcademic
	case containsAny(head, logMarkers) && strings.Count(text, "\n") > logLineCount:
		return domain.SourceLog
	case local:
		return domain.SourceInternal
	}
	return domain.SourceOfficialDocs
}

var typeConfidence = map[domain.SourceType]float64{
	domain.SourceOfficialDocs: 1.0,
	domain.SourceAcademic:     0.95,
	domain.SourceLegal:        0.95,
	domain.SourceCode:         0.9,
	domain.SourceNews:         0.8,
	domain.SourceCommunity:    0.7,
	domain.SourceInternal:     1.0,
	domain.SourceLog:          0.6,
}

var (
	trustedDomains   = []string{".gov", ".edu", ".org", "wikipedia.org", "documentation"}
	untrustedDomains = []string{"blogspot", "wordpress.com", "medium.com", "forum"}
)

// SourceConfidence scores how far a source can be trusted, in [0, 1].
func SourceConfidence(host string, sourceType domain.SourceType) float64 {
	confidence, ok := typeConfidence[sourceType]
	if !ok {
		confidence = 0.8
	}
	switch {
	case containsAny(host, trustedDomains):
		confidence *= 1.1
	case containsAny(host, untrustedDomains):
		confidence *= 0.8
	}
	confidence = math.Max(0, math.Min(1, confidence))
	return math.Round(confidence*10000) / 10000
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Features describes the content of one chunk.
type Features struct {
	HasCode  bool
	HasTable bool
	HasList  bool
	LinksOut int
}

var (
	codeBlock = regexp.MustCompile("(?s)```.*?```|<code>.*?</code>|<pre>.*?</pre>")
	tableRow  = regexp.MustCompile(`\|.*\|`)
	listItem  = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	outLink   = regexp.MustCompile(`https?://[^\s<>"]+|www\.[^\s<>"]+`)
)

// DetectFeatures reports code, tables, lists and outbound links in text.
func DetectFeatures(text string) Features {
	return Features{
		HasCode:  codeBlock.MatchString(text),
		HasTable: tableRow.MatchString(text),
		HasList:  listItem.MatchString(text),
		LinksOut: len(outLink.FindAllStringIndex(text, -1)),
	}
}
