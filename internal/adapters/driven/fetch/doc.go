// Package fetch retrieves source content from the local filesystem or over
// HTTP. Every result carries a SHA-256 fingerprint of the raw bytes and a
// MIME type with parameters stripped, ready for extractor lookup.
package fetch
