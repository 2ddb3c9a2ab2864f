package domain

import "time"

// Source is one input document as listed in a sources file.
// Sources are loaded once per run and never mutated during processing.
type Source struct {
	// ID identifies the source in the chunk cache.
	// Defaults to the document ID of the canonical reference when empty.
	ID string

	// URI is the canonical reference: a URL or a filesystem path.
	URI string

	// Title is the human-readable title.
	Title string

	// Tags is an opaque passthrough map (category, provider, ...).
	// The pipeline never inspects it; writers attach it to output records.
	Tags map[string]any
}

// FetchResult is what a Fetcher returns for a source.
type FetchResult struct {
	// Content is the raw bytes.
	Content []byte

	// MIMEType is the detected content type (e.g., "application/pdf").
	MIMEType string

	// Fingerprint is a hash of Content, the sole authority for change detection.
	Fingerprint string

	// FetchedAt is when the content was retrieved.
	FetchedAt time.Time
}

// Extraction is the output of an Extractor: plain text plus heading hints.
type Extraction struct {
	// Text is the extracted text. Pages are separated by form feeds.
	Text string

	// Hints are headings detected by the format parser, in document order.
	Hints []StructuralHint

	// Title is the document's own title, if the format carries one.
	Title string

	// Language is the language the document declares, such as the lang
	// attribute of an HTML page.
	Language string
}

// StructuralHint is a pre-tagged heading boundary from an extractor.
type StructuralHint struct {
	// Level is the heading depth, 1 being the outermost.
	Level int

	// Text is the heading line as it appears in the extracted text.
	Text string
}
