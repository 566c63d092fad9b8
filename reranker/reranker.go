package reranker

import "context"

// Result is one reranked document. Index points into the documents passed to
// Rerank; results are ordered from most to least relevant.
type Result struct {
	Index int
	Score float64
}

type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error)
}
