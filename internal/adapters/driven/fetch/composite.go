package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Composite implements the interface.
var _ driven.Fetcher = (*Composite)(nil)

// Composite routes each source to a fetcher by the scheme of its URI.
// References without a scheme are local paths.
type Composite struct {
	fetchers map[string]driven.Fetcher
}

// NewComposite creates a router with file and HTTP fetchers registered.
func NewComposite(file, web driven.Fetcher) *Composite {
	c := &Composite{fetchers: make(map[string]driven.Fetcher)}
	c.Register("file", file)
	c.Register("http", web)
	c.Register("https", web)
	return c
}

// Register adds or replaces the fetcher for a scheme.
func (c *Composite) Register(scheme string, f driven.Fetcher) {
	if f != nil {
		c.fetchers[strings.ToLower(scheme)] = f
	}
}

// Fetch delegates to the fetcher for the source's scheme.
func (c *Composite) Fetch(ctx context.Context, source domain.Source) (*domain.FetchResult, error) {
	scheme := Scheme(source.URI)
	f, ok := c.fetchers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", domain.ErrUnsupportedScheme, scheme, source.URI)
	}
	return f.Fetch(ctx, source)
}

// Scheme returns the lower-case scheme of ref, or "file" for paths.
// Single letters are Windows drive names, not schemes.
func Scheme(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || len(u.Scheme) < 2 {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}
