package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	ct, err := w.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`))
	require.NoError(t, err)

	if documentXML != "" {
		doc, err := w.Create("word/document.xml")
		require.NoError(t, err)
		_, err = doc.Write([]byte(documentXML))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

const twoParagraphs = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Refunds are accepted </w:t></w:r><w:r><w:t>within 30 days.</w:t></w:r></w:p>
<w:p><w:r><w:t>Opened items are excluded.</w:t></w:r></w:p>
</w:body>
</w:document>`

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"pdf":      TypePDF,
		"PDF":      TypePDF,
		".docx":    TypeDOCX,
		"md":       TypeMarkdown,
		"markdown": TypeMarkdown,
		"txt":      TypeMarkdown,
		" text ":   TypeMarkdown,
	}
	for tag, want := range cases {
		got, err := ParseType(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, want, got, tag)
	}

	for _, tag := range []string{"", "exe", "doc", "xlsx"} {
		_, err := ParseType(tag)
		assert.ErrorIs(t, err, ErrUnsupportedType, tag)
	}
}

func TestTypeFromFilename(t *testing.T) {
	typ, err := TypeFromFilename("Manual.PDF")
	require.NoError(t, err)
	assert.Equal(t, TypePDF, typ)

	typ, err = TypeFromFilename("notes.md")
	require.NoError(t, err)
	assert.Equal(t, TypeMarkdown, typ)

	_, err = TypeFromFilename("README")
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = TypeFromFilename("virus.exe")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestRegistry_ExtractDOCX(t *testing.T) {
	r := NewRegistry(t.TempDir())
	text, err := r.Extract(context.Background(), TypeDOCX, bytes.NewReader(createTestDOCX(t, twoParagraphs)))
	require.NoError(t, err)
	assert.Equal(t, "Refunds are accepted within 30 days.\nOpened items are excluded.\n", text)
}

func TestRegistry_ExtractDOCXWithoutBody(t *testing.T) {
	r := NewRegistry(t.TempDir())
	_, err := r.Extract(context.Background(), TypeDOCX, bytes.NewReader(createTestDOCX(t, "")))
	assert.ErrorIs(t, err, ErrExtractFailed)
}

func TestRegistry_ExtractMarkdown(t *testing.T) {
	r := NewRegistry(t.TempDir())
	text, err := r.Extract(context.Background(), TypeMarkdown, strings.NewReader("# Refund Policy\n\nItems can be **returned** within *30 days*."))
	require.NoError(t, err)
	assert.Equal(t, "Refund Policy\n\nItems can be returned within 30 days.", text)
}

func TestRegistry_CorruptPDF(t *testing.T) {
	r := NewRegistry(t.TempDir())
	_, err := r.Extract(context.Background(), TypePDF, strings.NewReader("definitely not a pdf"))
	assert.ErrorIs(t, err, ErrExtractFailed)
}

func TestRegistry_RemovesTempFileOnEveryPath(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)

	var seen string
	r.Register(TypePDF, ExtractorFunc(func(path string) (string, error) {
		seen = path
		_, err := os.Stat(path)
		require.NoError(t, err)
		return "", errors.New("boom")
	}))
	_, err := r.Extract(context.Background(), TypePDF, strings.NewReader("%PDF-1.4"))
	require.Error(t, err)
	require.NotEmpty(t, seen)
	_, statErr := os.Stat(seen)
	assert.True(t, os.IsNotExist(statErr))

	_, err = r.Extract(context.Background(), TypeMarkdown, strings.NewReader("hello"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegistry_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Extract(ctx, TypeMarkdown, strings.NewReader("hello"))
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry(t.TempDir())
	_, err := r.Extract(context.Background(), Type(0), strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestStripMarkdown(t *testing.T) {
	in := strings.Join([]string{
		"# Returns",
		"",
		"> Read this first.",
		"",
		"- Opened items are [excluded](https://example.com/policy).",
		"1. Keep the `receipt`.",
		"",
		"---",
		"",
		"```",
		"refund_window = 30",
		"```",
		"<b>Note</b>: snake_case stays intact.",
	}, "\n")

	out := StripMarkdown(in)
	assert.True(t, strings.HasPrefix(out, "Returns\n"))
	assert.Contains(t, out, "Read this first.")
	assert.Contains(t, out, "Opened items are excluded.")
	assert.Contains(t, out, "Keep the receipt.")
	assert.Contains(t, out, "refund_window = 30")
	assert.Contains(t, out, "Note: snake_case stays intact.")
	assert.NotContains(t, out, "```")
	assert.NotContains(t, out, "https://")
	assert.NotContains(t, out, "---")
	assert.NotContains(t, out, "\n\n\n")
}
