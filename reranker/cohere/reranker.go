package cohere

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	cohereopt "github.com/cohere-ai/cohere-go/v2/option"
	"github.com/w-h-a/recall/reranker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultModel = "rerank-multilingual-v2.0"

type cohereReranker struct {
	options reranker.Options
	client  *cohereclient.Client
}

func (r *cohereReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]reranker.Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	docs := make([]*cohere.RerankRequestDocumentsItem, 0, len(documents))
	for _, d := range documents {
		docs = append(docs, &cohere.RerankRequestDocumentsItem{String: d})
	}

	rsp, err := r.client.Rerank(ctx, &cohere.RerankRequest{
		Query:     query,
		Documents: docs,
		TopN:      cohere.Int(topN),
		Model:     cohere.String(r.options.Model),
	})
	if err != nil {
		return nil, err
	}

	if rsp == nil {
		return nil, errors.New("no response from Cohere")
	}

	results := make([]reranker.Result, 0, len(rsp.Results))

	for _, item := range rsp.Results {
		if item.Index < 0 || item.Index >= len(documents) {
			return nil, fmt.Errorf("cohere returned rerank index %d for %d documents", item.Index, len(documents))
		}
		results = append(results, reranker.Result{Index: item.Index, Score: item.RelevanceScore})
	}

	return results, nil
}

func NewReranker(opts ...reranker.Option) reranker.Reranker {
	options := reranker.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	r := &cohereReranker{
		options: options,
	}

	clientOpts := []cohereopt.RequestOption{
		cohereopt.WithToken(options.ApiKey),
		cohereopt.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}

	if len(options.BaseURL) > 0 {
		clientOpts = append(clientOpts, cohereopt.WithBaseURL(options.BaseURL))
	}

	r.client = cohereclient.NewClient(clientOpts...)

	return r
}
