package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopherai-docqa/internal/pkg/pdfextract"
)

var ErrExtractFailed = errors.New("text extraction failed")

// Extractor turns a document on disk into plain text.
type Extractor interface {
	Extract(path string) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(path string) (string, error)

func (f ExtractorFunc) Extract(path string) (string, error) {
	return f(path)
}

// Registry binds every Type to its Extractor and spools uploads to disk.
type Registry struct {
	tempDir    string
	extractors map[Type]Extractor
}

// NewRegistry returns a registry with the built-in PDF, DOCX and Markdown
// extractors. An empty tempDir uses the system default.
func NewRegistry(tempDir string) *Registry {
	return &Registry{
		tempDir: tempDir,
		extractors: map[Type]Extractor{
			TypePDF:      ExtractorFunc(pdfextract.ExtractFile),
			TypeDOCX:     ExtractorFunc(ExtractDOCX),
			TypeMarkdown: ExtractorFunc(ExtractMarkdown),
		},
	}
}

// Register replaces the extractor for typ.
func (r *Registry) Register(typ Type, e Extractor) {
	r.extractors[typ] = e
}

// Extract writes body to a temporary file, runs the extractor for typ on it and
// removes the file before returning.
func (r *Registry) Extract(ctx context.Context, typ Type, body io.Reader) (string, error) {
	extractor, ok := r.extractors[typ]
	if !ok {
		return "", ErrUnsupportedType
	}

	f, err := os.CreateTemp(r.tempDir, "docqa-upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file failed: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("spool upload failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := extractor.Extract(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtractFailed, typ, err)
	}
	return text, nil
}
