// Package html provides an Extractor for HTML and XML documents.
// It walks the token stream, drops scripts, styles and page chrome, keeps
// block boundaries as blank lines and reports h1 to h6 as heading hints.
package html
