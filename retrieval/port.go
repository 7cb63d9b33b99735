// ABOUTME: Retrieval port abstraction over a vector similarity store.
// ABOUTME: Queries are scoped by namespace with optional section narrowing.
package retrieval

import (
	"context"
)

// DefaultTopK is the number of snippets fetched when a query does not set TopK.
const DefaultTopK = 10

// Query describes one retrieval request. Namespace isolates one memo's
// document set from all others; Section optionally narrows the search to
// chunks tagged with that section.
type Query struct {
	Namespace string
	Text      string
	TopK      int
	Section   string
}

// Snippet is one ranked context fragment returned by a retrieval query.
type Snippet struct {
	Text     string
	Score    float64
	Metadata map[string]string
}

// Port is the query contract the orchestration engine requires from a vector
// store. Implementations must guarantee namespace isolation: results may
// only come from chunks indexed under the query's namespace. Results are
// ordered by descending score.
type Port interface {
	Query(ctx context.Context, q Query) ([]Snippet, error)
}
