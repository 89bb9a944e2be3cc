package rag

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk is a contiguous slice of the document text. Start is a rune offset.
type Chunk struct {
	Position int    `json:"position"`
	Start    int    `json:"start"`
	Text     string `json:"text"`
	Source   string `json:"source,omitempty"`
}

// Chunker splits text into overlapping windows of at most size runes.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split is shorthand for NewChunker(size, overlap).Split(text).
func Split(text string, size, overlap int) []Chunk {
	return NewChunker(size, overlap).Split(text)
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into chunks. Each cut is placed on the strongest natural
// boundary available in the back half of the window (paragraph, line,
// sentence, whitespace) and falls back to a raw rune cut. The next chunk always
// starts exactly overlap runes before the previous cut, so chunk[0] followed by
// chunk[i][overlap:] for every later chunk reproduces the input.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []Chunk
	for start := 0; ; {
		if len(runes)-start <= c.size {
			chunks = append(chunks, Chunk{
				Position: len(chunks),
				Start:    start,
				Text:     string(runes[start:]),
			})
			return chunks
		}

		end := c.cut(runes, start)
		chunks = append(chunks, Chunk{
			Position: len(chunks),
			Start:    start,
			Text:     string(runes[start:end]),
		})
		start = end - c.overlap
	}
}

// cut returns the exclusive end of the chunk beginning at start. The result is
// always greater than start+overlap, which guarantees forward progress.
func (c *Chunker) cut(runes []rune, start int) int {
	limit := start + c.size
	floor := start + c.overlap + 1
	if half := start + c.size/2; half > floor {
		floor = half
	}
	for _, isBoundary := range boundaries {
		for p := limit; p >= floor; p-- {
			if isBoundary(runes, p) {
				return p
			}
		}
	}
	return limit
}

// boundaries are ordered strongest first. Each reports whether a cut before
// index p lands right after a separator.
var boundaries = []func(runes []rune, p int) bool{
	func(r []rune, p int) bool { return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n' },
	func(r []rune, p int) bool { return r[p-1] == '\n' },
	func(r []rune, p int) bool {
		if strings.ContainsRune("。！？", r[p-1]) {
			return true
		}
		return p >= 2 && unicode.IsSpace(r[p-1]) && strings.ContainsRune(".!?", r[p-2])
	},
	func(r []rune, p int) bool { return unicode.IsSpace(r[p-1]) },
}
