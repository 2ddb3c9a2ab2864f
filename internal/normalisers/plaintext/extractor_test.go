package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()

	require.NotEmpty(t, mimeTypes)
	assert.Contains(t, mimeTypes, "text/plain")
	assert.Contains(t, mimeTypes, "text/x-go")
	assert.Contains(t, mimeTypes, "application/json")
	assert.NotContains(t, mimeTypes, "text/html")
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		mimeType string
		want     string
	}{
		{"plain text", "This is plain text content.", "text/plain", "This is plain text content."},
		{"empty", "", "text/plain", ""},
		{"byte order mark", "\xEF\xBB\xBFhello", "text/plain", "hello"},
		{"source code", "package main\n\nfunc main() {}\n", "text/x-go", "package main\n\nfunc main() {}\n"},
		{"json", `{"a":1,"b":[true]}`, "application/json", "{\n  \"a\": 1,\n  \"b\": [\n    true\n  ]\n}"},
		{"invalid json", `{"a":`, "application/json", `{"a":`},
		{"csv", "name,age\nAda, 36\n", "text/csv", "name | age\nAda | 36"},
		{"ragged csv", "a,b\nc\n", "text/csv", "a | b\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Extract(context.Background(), []byte(tt.raw), tt.mimeType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Text)
			assert.Empty(t, got.Hints)
			assert.Empty(t, got.Title)
		})
	}
}

func TestExtract_InvalidUTF8PassesThrough(t *testing.T) {
	got, err := New().Extract(context.Background(), []byte("ok \xff\xfe bytes"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "ok \xff\xfe bytes", got.Text)
}

func TestExtract_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := New().Extract(ctx, []byte("text"), "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}
