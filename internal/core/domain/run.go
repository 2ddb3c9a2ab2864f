package domain

import "time"

// SourceResult is the outcome of processing one source.
type SourceResult struct {
	Source Source

	// DocID is the stable identifier derived from the source reference.
	DocID string

	// CacheState is the state found before processing.
	// CacheFresh means the chunks were served from cache.
	CacheState CacheState

	Chunks      []Chunk
	Diagnostics Diagnostics
}

// SourceFailure records a source that could not be processed.
type SourceFailure struct {
	Source Source
	Err    error
}

// RunReport summarises one pipeline run over many sources.
type RunReport struct {
	RunID string

	// Results are in the order the sources were given.
	Results  []SourceResult
	Failures []SourceFailure

	CacheHits         int
	Recomputed        int
	NearDuplicates    int
	DroppedDuplicates int

	StartedAt time.Time
	Elapsed   time.Duration
}

// Chunks returns every chunk of the run in source order.
func (r *RunReport) Chunks() []Chunk {
	var n int
	for i := range r.Results {
		n += len(r.Results[i].Chunks)
	}
	out := make([]Chunk, 0, n)
	for i := range r.Results {
		out = append(out, r.Results[i].Chunks...)
	}
	return out
}
