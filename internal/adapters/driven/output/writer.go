// Package output writes run results as JSON Lines.
//
// Layout under the output directory:
//
//	chunks/<category>/<doc_id>.jsonl   one chunk per line, with source tags
//	embeds/<category>/<doc_id>.jsonl   one vector per line
//	summary.json                       run statistics and written files
//
// The category is the source's "category" tag, or "general".
package output

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

const (
	chunksDir       = "chunks"
	embedsDir       = "embeds"
	summaryFile     = "summary.json"
	defaultCategory = "general"
)

var unsafePathChars = regexp.MustCompile(`[^a-z0-9_-]+`)

type chunkRecord struct {
	domain.Chunk
	SourceURL string         `json:"source_url"`
	PageTitle string         `json:"page_title,omitempty"`
	Category  string         `json:"category"`
	Tags      map[string]any `json:"tags,omitempty"`
}

type embeddingRecord struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	Model       string    `json:"model"`
	Embedding   []float32 `json:"embedding"`
}

// Summary describes a written run.
type Summary struct {
	RunID          string    `json:"run_id"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`

	Sources           int `json:"sources"`
	Failed            int `json:"failed"`
	TotalChunks       int `json:"total_chunks"`
	TotalEmbeddings   int `json:"total_embeddings"`
	CacheHits         int `json:"cache_hits"`
	Recomputed        int `json:"recomputed"`
	NearDuplicates    int `json:"near_duplicates"`
	DroppedDuplicates int `json:"dropped_duplicates"`

	LowSignal           int     `json:"low_signal_count"`
	LowSignalPercentage float64 `json:"low_signal_percentage"`

	Categories   map[string]int `json:"categories"`
	SectionTypes map[string]int `json:"section_types"`

	Files    Files            `json:"files_written"`
	Failures []FailureSummary `json:"failures,omitempty"`
}

// Files lists written paths relative to the output directory.
type Files struct {
	Chunks     []string `json:"chunks"`
	Embeddings []string `json:"embeddings"`
}

// FailureSummary is a failed source.
type FailureSummary struct {
	SourceID string `json:"source_id"`
	URI      string `json:"uri"`
	Error    string `json:"error"`
}

// Writer writes run output into a directory.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores the chunks of every successful source, the given
// embeddings and a summary. Existing files for the same documents are
// replaced atomically.
func (w *Writer) Write(report *domain.RunReport, embeddings []domain.Embedding, model string) (*Summary, error) {
	byChunk := make(map[string]domain.Embedding, len(embeddings))
	for _, e := range embeddings {
		byChunk[e.ChunkID] = e
	}

	summary := &Summary{
		RunID:             report.RunID,
		EmbeddingModel:    model,
		StartedAt:         report.StartedAt,
		ElapsedSeconds:    report.Elapsed.Seconds(),
		Sources:           len(report.Results) + len(report.Failures),
		Failed:            len(report.Failures),
		CacheHits:         report.CacheHits,
		Recomputed:        report.Recomputed,
		NearDuplicates:    report.NearDuplicates,
		DroppedDuplicates: report.DroppedDuplicates,
		Categories:        make(map[string]int),
		SectionTypes:      make(map[string]int),
		Files:             Files{Chunks: []string{}, Embeddings: []string{}},
	}

	for i := range report.Results {
		res := &report.Results[i]
		if len(res.Chunks) == 0 {
			continue
		}
		category := Category(res.Source.Tags)
		name := fileName(res)

		chunkRecords := make([]any, 0, len(res.Chunks))
		var embedRecords []any
		for _, c := range res.Chunks {
			chunkRecords = append(chunkRecords, chunkRecord{
				Chunk:     c,
				SourceURL: res.Source.URI,
				PageTitle: res.Source.Title,
				Category:  category,
				Tags:      res.Source.Tags,
			})
			if e, ok := byChunk[c.ID]; ok {
				embedRecords = append(embedRecords, embeddingRecord{
					ID:          c.ID,
					ContentHash: e.ContentHash,
					Model:       e.Model,
					Embedding:   e.Vector,
				})
			}

			summary.SectionTypes[string(c.SectionType)]++
			if c.IsLowSignal {
				summary.LowSignal++
			}
		}

		rel := filepath.Join(chunksDir, category, name)
		if err := w.writeJSONL(rel, chunkRecords); err != nil {
			return nil, err
		}
		summary.Files.Chunks = append(summary.Files.Chunks, rel)
		summary.TotalChunks += len(chunkRecords)
		summary.Categories[category] += len(chunkRecords)

		if len(embedRecords) > 0 {
			rel := filepath.Join(embedsDir, category, name)
			if err := w.writeJSONL(rel, embedRecords); err != nil {
				return nil, err
			}
			summary.Files.Embeddings = append(summary.Files.Embeddings, rel)
			summary.TotalEmbeddings += len(embedRecords)
		}
	}

	if summary.TotalChunks > 0 {
		pct := float64(summary.LowSignal) / float64(summary.TotalChunks) * 100
		summary.LowSignalPercentage = math.Round(pct*100) / 100
	}
	for _, f := range report.Failures {
		summary.Failures = append(summary.Failures, FailureSummary{
			SourceID: f.Source.ID,
			URI:      f.Source.URI,
			Error:    f.Err.Error(),
		})
	}
	sort.Strings(summary.Files.Chunks)
	sort.Strings(summary.Files.Embeddings)

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	if err := w.writeFile(summaryFile, append(data, '\n')); err != nil {
		return nil, err
	}
	return summary, nil
}

// Category returns the sanitised "category" tag, or "general".
func Category(tags map[string]any) string {
	raw, _ := tags["category"].(string)
	c := strings.Trim(unsafePathChars.ReplaceAllString(strings.ToLower(raw), "-"), "-")
	if c == "" {
		return defaultCategory
	}
	return c
}

func fileName(res *domain.SourceResult) string {
	key := res.DocID
	if key == "" {
		key = res.Source.ID
	}
	key = strings.Trim(unsafePathChars.ReplaceAllString(strings.ToLower(key), "-"), "-")
	if key == "" {
		key = "unknown"
	}
	return key + ".jsonl"
}

func (w *Writer) writeJSONL(rel string, records []any) error {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode %s: %w", rel, err)
		}
	}
	return w.writeFile(rel, []byte(buf.String()))
}

// writeFile replaces rel under the output directory via a temporary file.
func (w *Writer) writeFile(rel string, data []byte) error {
	path := filepath.Join(w.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", rel, err)
	}
	return nil
}
