// Package normalisers turns fetched bytes into clean text.
//
// The format subpackages (plaintext, markdown, html, pdf, docx) implement
// driven.Extractor; the Registry here dispatches on MIME type. The cleaner
// and structure subpackages then normalise the extracted text and split it
// into heading-delimited nodes.
package normalisers
