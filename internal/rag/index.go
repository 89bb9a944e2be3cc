package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
)

const DefaultTopK = 3

// Embedder converts text to fixed-dimension vectors. The same Embedder must be
// used to build an index and to query it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Match is a search hit. Score is the cosine similarity to the query.
type Match struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Index is a write-once, exact nearest-neighbour index over chunk embeddings.
// Vectors are L2-normalised at build time so cosine similarity is a dot
// product. An Index is safe for concurrent searches.
type Index struct {
	embedder  Embedder
	chunks    []Chunk
	vectors   [][]float32
	dimension int
}

// Build embeds every chunk and returns the finished index.
func Build(ctx context.Context, embedder Embedder, chunks []Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	embeddings, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, providerError("embed chunks", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, providerError("embed chunks", fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(chunks)))
	}

	dimension := len(embeddings[0])
	if dimension == 0 {
		return nil, providerError("embed chunks", fmt.Errorf("empty embedding vector"))
	}
	vectors := make([][]float32, len(embeddings))
	for i, vec := range embeddings {
		if len(vec) != dimension {
			return nil, providerError("embed chunks", fmt.Errorf("chunk %d has dimension %d, want %d", i, len(vec), dimension))
		}
		vectors[i] = normalize(vec)
	}

	owned := make([]Chunk, len(chunks))
	copy(owned, chunks)
	return &Index{
		embedder:  embedder,
		chunks:    owned,
		vectors:   vectors,
		dimension: dimension,
	}, nil
}

func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.chunks)
}

func (ix *Index) Dimension() int {
	return ix.dimension
}

// Chunks returns a copy of the indexed chunks in document order.
func (ix *Index) Chunks() []Chunk {
	out := make([]Chunk, len(ix.chunks))
	copy(out, ix.chunks)
	return out
}

// Search embeds query with the index's embedder and returns up to k matches,
// best first. k <= 0 means DefaultTopK; k larger than the index returns every
// chunk.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if ix.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, providerError("embed query", err)
	}
	return ix.SearchVector(vec, k)
}

// SearchVector ranks chunks against an already embedded query. Equal scores
// keep document order.
func (ix *Index) SearchVector(query []float32, k int) ([]Match, error) {
	if ix.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != ix.dimension {
		return nil, providerError("embed query", fmt.Errorf("query dimension %d, index dimension %d", len(query), ix.dimension))
	}
	if k <= 0 {
		k = DefaultTopK
	}
	if k > len(ix.chunks) {
		k = len(ix.chunks)
	}

	q := normalize(query)
	scored := make([]Match, len(ix.chunks))
	for i := range ix.chunks {
		scored[i] = Match{Chunk: ix.chunks[i], Score: dot(q, ix.vectors[i])}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored[:k], nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// normalize returns a unit-length copy of v. Zero vectors stay zero and score
// 0 against everything.
func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm <= 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
