package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func extract(t *testing.T, src, mimeType string) *domain.Extraction {
	t.Helper()
	got, err := New().Extract(context.Background(), []byte(src), mimeType)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()
	assert.Contains(t, mimeTypes, "text/html")
	assert.Contains(t, mimeTypes, "application/xhtml+xml")
	assert.Contains(t, mimeTypes, "application/xml")
}

func TestExtract_Document(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head>
  <title>  Team   Handbook </title>
  <style>body { color: red; }</style>
  <script>var x = "<p>hidden</p>";</script>
</head>
<body>
  <header><a href="/">Home</a> <a href="/about">About</a></header>
  <nav><ul><li>Menu</li></ul></nav>
  <main>
    <h1>Welcome</h1>
    <p>First   paragraph
       spans lines.</p>
    <h2>Tools &amp; Tips</h2>
    <ul>
      <li>one</li>
      <li>two <b>bold</b></li>
    </ul>
    <!-- a comment -->
    <p>Last<br>line</p>
  </main>
  <footer>Copyright</footer>
</body>
</html>`

	got := extract(t, page, "text/html")

	assert.Equal(t, "Welcome\n\nFirst paragraph spans lines.\n\nTools & Tips\n\n- one\n- two bold\n\nLast\n\nline", got.Text)
	assert.Equal(t, []domain.StructuralHint{
		{Level: 1, Text: "Welcome"},
		{Level: 2, Text: "Tools & Tips"},
	}, got.Hints)
	assert.Equal(t, "Team Handbook", got.Title)
}

func TestExtract_TitleFallsBackToFirstH1(t *testing.T) {
	got := extract(t, "<h2>Sub</h2><h1>Main</h1><h1>Other</h1>", "text/html")
	assert.Equal(t, "Main", got.Title)
	assert.Len(t, got.Hints, 3)
}

func TestExtract_HeaderInsideArticleIsKept(t *testing.T) {
	got := extract(t, "<header>Site</header><article><header><h1>Post</h1></header><p>Body</p></article>", "text/html")

	assert.Equal(t, "Post\n\nBody", got.Text)
	require.Len(t, got.Hints, 1)
	assert.Equal(t, "Post", got.Hints[0].Text)
}

func TestExtract_Table(t *testing.T) {
	got := extract(t, "<table><tr><th>Name</th><th>Age</th></tr><tr><td>Ada</td><td>36</td></tr></table>", "text/html")
	assert.Equal(t, "Name | Age\n\nAda | 36", got.Text)
}

func TestExtract_Preformatted(t *testing.T) {
	got := extract(t, "<p>Example:</p><pre>\nfunc main() {\n    fmt.Println(1)\n}\n</pre>", "text/html")
	assert.Equal(t, "Example:\n\n```\nfunc main() {\n    fmt.Println(1)\n}\n```", got.Text)
}

func TestExtract_XML(t *testing.T) {
	got := extract(t, "<feed><entry><title>A</title><summary>first</summary></entry><entry><title>B</title></entry></feed>", "application/xml")

	assert.Equal(t, "A\n\nfirst\n\nB", got.Text)
	assert.Empty(t, got.Title)
}

func TestExtract_Empty(t *testing.T) {
	got := extract(t, "", "text/html")
	assert.Empty(t, got.Text)
	assert.Empty(t, got.Hints)
	assert.Empty(t, got.Title)
}

func TestExtract_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Extract(ctx, []byte("<p>x</p>"), "text/html")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_Language(t *testing.T) {
	got := extract(t, `<html class="docs" lang=" de-AT "><body><p>Hallo Welt</p></body></html>`, "text/html")
	assert.Equal(t, "de-AT", got.Language)

	got = extract(t, `<html><body><p lang="fr">Bonjour</p></body></html>`, "text/html")
	assert.Empty(t, got.Language)
}
