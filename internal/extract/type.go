package extract

import (
	"errors"
	"path/filepath"
	"strings"
)

var ErrUnsupportedType = errors.New("unsupported document type")

// Type is the document format of an upload. The zero value is not a valid
// format; obtain a Type from ParseType or TypeFromFilename.
type Type int

const (
	TypePDF Type = iota + 1
	TypeDOCX
	TypeMarkdown
)

func (t Type) String() string {
	switch t {
	case TypePDF:
		return "pdf"
	case TypeDOCX:
		return "docx"
	case TypeMarkdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// ParseType resolves a declared type tag. Plain text is read as Markdown.
func ParseType(tag string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(tag, "."))) {
	case "pdf", "application/pdf":
		return TypePDF, nil
	case "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return TypeDOCX, nil
	case "md", "markdown", "txt", "text", "text/markdown", "text/plain":
		return TypeMarkdown, nil
	default:
		return 0, ErrUnsupportedType
	}
}

// TypeFromFilename resolves the type from the file extension.
func TypeFromFilename(name string) (Type, error) {
	ext := filepath.Ext(strings.TrimSpace(name))
	if ext == "" {
		return 0, ErrUnsupportedType
	}
	return ParseType(ext)
}
