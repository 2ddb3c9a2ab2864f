package domain

// Document is the normalised form of one source.
// It is owned by the processing of a single source and never persisted.
type Document struct {
	// SourceID links to the Source that produced this document.
	SourceID string

	// URI is the source's reference, used to derive the document ID.
	URI string

	// Title is the human-readable title.
	Title string

	// Text is the full normalised text. Chunk offsets index into it.
	Text string

	// MIMEType is the media type the content was extracted from.
	MIMEType string

	// Language is the language declared by the document itself, if any.
	Language string

	// Nodes are the structural nodes in reading order.
	Nodes []StructuralNode

	// Diagnostics collects counters reported by pipeline stages.
	Diagnostics Diagnostics
}

// Diagnostics holds per-document processing counters.
type Diagnostics struct {
	// ReplacedBytes counts malformed byte sequences replaced during cleaning.
	ReplacedBytes int

	// StrippedLines counts boilerplate lines removed during cleaning.
	StrippedLines int

	// DroppedDuplicates counts chunks removed by in-document deduplication.
	DroppedDuplicates int
}

// StructuralNode is a heading path together with the text it governs.
// Text always equals the document text between CharStart and CharEnd.
type StructuralNode struct {
	// HeadingPath lists heading titles from the root to this node.
	// Empty for text preceding the first heading.
	HeadingPath []string

	// Heading is the title of the heading that opens this node, if any.
	Heading string

	// Level is the depth of Heading, 0 for the preamble node.
	Level int

	// Text is the node's text including its heading line.
	Text string

	// CharStart is the byte offset of the node in the document text.
	CharStart int

	// CharEnd is the exclusive end offset of the node.
	CharEnd int
}

// LowSignalReason explains why a chunk was judged unlikely to help retrieval.
type LowSignalReason string

// Low-signal reasons.
const (
	LowSignalNone        LowSignalReason = ""
	LowSignalTooShort    LowSignalReason = "too_short"
	LowSignalSymbolHeavy LowSignalReason = "symbol_heavy"
	LowSignalNavigation  LowSignalReason = "navigation"
	LowSignalLinksOnly   LowSignalReason = "links_only"
)

// SectionType classifies the content of a chunk.
type SectionType string

// Section types.
const (
	// SectionStructured has a heading path.
	SectionStructured SectionType = "structured"

	// SectionSimple has no structure but passes quality checks.
	SectionSimple SectionType = "simple"

	// SectionContent is the default.
	SectionContent SectionType = "content"

	// SectionReferences is a list of citations or links.
	SectionReferences SectionType = "references"

	// SectionTOC is a table of contents.
	SectionTOC SectionType = "toc"

	// SectionCode is dominated by code blocks.
	SectionCode SectionType = "code"
)

// Chunk is the durable output unit of the pipeline.
// ID is a pure function of DocID, ChunkIndex and ContentHash.
type Chunk struct {
	ID          string   `json:"id"`
	DocID       string   `json:"doc_id"`
	SourceID    string   `json:"source_id"`
	Text        string   `json:"text"`
	ChunkIndex  int      `json:"chunk_index"`
	TotalChunks int      `json:"total_chunks"`
	CharStart   int      `json:"char_start"`
	CharEnd     int      `json:"char_end"`
	TokenCount  int      `json:"token_count"`
	HeadingPath []string `json:"heading_path"`
	ContentHash string   `json:"content_hash"`

	// SimHash is the 64-bit near-duplicate fingerprint of Text.
	SimHash uint64 `json:"simhash"`

	IsLowSignal     bool            `json:"is_low_signal"`
	LowSignalReason LowSignalReason `json:"low_signal_reason"`
	RetrievalWeight float64         `json:"retrieval_weight"`
	SectionType     SectionType     `json:"section_type"`

	// Undersized marks a chunk below min_tokens that could not be merged.
	Undersized bool `json:"undersized"`

	// IsNearDuplicate marks a chunk similar to one in another document.
	IsNearDuplicate bool `json:"is_near_duplicate"`

	// DuplicateOf is the ID of the earlier chunk this one resembles.
	DuplicateOf string `json:"duplicate_of,omitempty"`

	// Source metadata, shared by every chunk of a document.
	CanonicalURL     string     `json:"canonical_url"`
	Domain           string     `json:"domain"`
	Path             string     `json:"path"`
	Format           string     `json:"format"`
	Language         string     `json:"lang"`
	SourceType       SourceType `json:"source_type"`
	SourceConfidence float64    `json:"source_confidence"`

	// Content features of Text.
	HasCode  bool `json:"has_code"`
	HasTable bool `json:"has_table"`
	HasList  bool `json:"has_list"`
	LinksOut int  `json:"links_out"`
}

// SourceType classifies where a document comes from.
type SourceType string

// Source types, in the order they are detected.
const (
	SourceCode         SourceType = "code"
	SourceAcademic     SourceType = "academic"
	SourceNews         SourceType = "news"
	SourceCommunity    SourceType = "community"
	SourceLegal        SourceType = "legal"
	SourceOfficialDocs SourceType = "official_docs"
	SourceLog          SourceType = "log"
	SourceInternal     SourceType = "internal"
)

// Embedding is a vector computed for a chunk's text.
type Embedding struct {
	ChunkID     string    `json:"chunk_id"`
	ContentHash string    `json:"content_hash"`
	Model       string    `json:"model"`
	Vector      []float32 `json:"vector"`
}
