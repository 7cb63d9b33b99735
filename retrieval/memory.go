// ABOUTME: In-memory Port implementation with token-overlap scoring.
// ABOUTME: Serves local runs and tests; production deployments plug a real vector store.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Chunk is one indexed text fragment.
type Chunk struct {
	Text     string
	Section  string
	Metadata map[string]string
}

// MemoryStore is a Port backed by an in-process map of namespace to chunks.
// Scoring is token overlap between the query and the chunk, which is enough
// for deterministic tests and small local corpora.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string][]Chunk
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string][]Chunk)}
}

// Index adds chunks under the given namespace.
func (m *MemoryStore) Index(namespace string, chunks ...Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[namespace] = append(m.chunks[namespace], chunks...)
}

// IndexText splits text on blank lines and indexes each piece as a chunk.
func (m *MemoryStore) IndexText(namespace, text string) {
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m.Index(namespace, Chunk{Text: part})
	}
}

// Query returns up to TopK chunks from the namespace ranked by token overlap
// with the query text. Chunks from other namespaces are never returned.
func (m *MemoryStore) Query(ctx context.Context, q Query) ([]Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	m.mu.RLock()
	candidates := m.chunks[q.Namespace]
	m.mu.RUnlock()

	queryTokens := tokenize(q.Text)
	var results []Snippet
	for _, c := range candidates {
		if q.Section != "" && c.Section != q.Section {
			continue
		}
		score := overlapScore(queryTokens, tokenize(c.Text))
		if score <= 0 {
			continue
		}
		results = append(results, Snippet{Text: c.Text, Score: score, Metadata: c.Metadata})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// tokenize lowercases and splits on non-letter/digit boundaries.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 128)
	}) {
		if len(tok) > 1 {
			tokens[tok] = true
		}
	}
	return tokens
}

// overlapScore is the fraction of query tokens present in the chunk.
func overlapScore(query, chunk map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for tok := range query {
		if chunk[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
