package neuron

import (
	"context"
	"strings"

	"github.com/w-h-a/recall/embedder"
	"github.com/w-h-a/recall/model"
	"github.com/w-h-a/recall/reranker"
)

type fakeEmbedder struct {
	model   model.EmbedModel
	vectors map[string][]float32
	err     error
	calls   int
	inputs  [][]string
	// reverse answers in reverse input order to exercise index mapping
	reverse bool
	// index overrides every returned index when set
	index *int
}

func (e *fakeEmbedder) Model() model.EmbedModel {
	return e.model
}

func (e *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([]embedder.Embedding, error) {
	e.calls++
	e.inputs = append(e.inputs, inputs)

	if e.err != nil {
		return nil, e.err
	}

	out := make([]embedder.Embedding, 0, len(inputs))
	for i, input := range inputs {
		vec, ok := e.vectors[input]
		if !ok {
			vec = []float32{1, 0}
		}
		idx := i
		if e.index != nil {
			idx = *e.index
		}
		out = append(out, embedder.Embedding{Index: idx, Vector: vec})
	}

	if e.reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	return out, nil
}

// wordTokenizer counts whitespace separated words.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

type fakeReranker struct {
	results   []reranker.Result
	err       error
	calls     int
	documents []string
	topN      int
}

func (r *fakeReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]reranker.Result, error) {
	r.calls++
	r.documents = documents
	r.topN = topN
	return r.results, r.err
}
