package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure FileFetcher implements the interface.
var _ driven.Fetcher = (*FileFetcher)(nil)

// FileFetcher reads sources from the local filesystem.
type FileFetcher struct {
	now func() time.Time
}

// NewFileFetcher creates a file fetcher.
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{now: time.Now}
}

// Fetch reads a plain path, a "~/" path or a file:// URL.
func (f *FileFetcher) Fetch(ctx context.Context, source domain.Source) (*domain.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := LocalPath(source.URI)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, p)
	}

	content, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}

	return &domain.FetchResult{
		Content:     content,
		MIMEType:    DetectMIME("", p, content),
		Fingerprint: Fingerprint(content),
		FetchedAt:   f.now(),
	}, nil
}

// LocalPath resolves a file reference to a cleaned filesystem path.
func LocalPath(ref string) (string, error) {
	p := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, ref, err)
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("%w: remote file host %q", domain.ErrInvalidInput, u.Host)
		}
		p = u.Path
	}
	if p == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrInvalidInput)
	}

	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Clean(p), nil
}
