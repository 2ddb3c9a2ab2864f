package driven

import "github.com/custodia-labs/sercha-ingest/internal/core/domain"

// NormaliseResult is cleaned text plus diagnostics counters.
type NormaliseResult struct {
	// Text is the cleaned text.
	Text string

	// Replaced counts malformed byte sequences replaced with a placeholder.
	Replaced int

	// StrippedLines counts boilerplate lines removed.
	StrippedLines int
}

// TextNormaliser cleans extracted text. Implementations must be pure.
type TextNormaliser interface {
	// Normalise never fails; malformed input degrades to placeholders.
	// Lines matching one of headings are kept even when they recur.
	Normalise(raw string, headings ...string) NormaliseResult

	// RuleVersion changes whenever cleaning output may change.
	RuleVersion() string
}

// StructureParser detects headings and builds structural nodes.
type StructureParser interface {
	// Parse returns nodes in reading order. Text without headings yields
	// a single node with an empty heading path.
	Parse(text string, hints []domain.StructuralHint) []domain.StructuralNode
}
