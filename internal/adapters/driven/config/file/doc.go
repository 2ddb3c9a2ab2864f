// Package file provides the TOML-backed ConfigStore.
//
// Values are addressed by dotted keys ("chunking.max_tokens"). On disk they
// are written as TOML tables, so the file stays pleasant to edit by hand:
//
//	[chunking]
//	max_tokens = 700
//	tokenizer = "word"
//
//	[cache]
//	freshness = "24h"
package file
