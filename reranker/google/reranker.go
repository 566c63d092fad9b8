package google

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/w-h-a/recall/reranker"
	genaiopt "google.golang.org/api/option"
)

const defaultModel = "gemini-1.5-flash"

type googleReranker struct {
	options reranker.Options
	client  *genai.Client
}

func (r *googleReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]reranker.Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	model := r.client.GenerativeModel(r.options.Model)

	rsp, err := model.GenerateContent(ctx, genai.Text(reranker.Prompt(query, documents)))
	if err != nil {
		return nil, err
	}

	if len(rsp.Candidates) == 0 || rsp.Candidates[0].Content == nil || len(rsp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("no response from Google")
	}

	var b strings.Builder
	for _, part := range rsp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	return reranker.ParseRanking(b.String(), len(documents), topN), nil
}

func NewReranker(opts ...reranker.Option) reranker.Reranker {
	options := reranker.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	r := &googleReranker{
		options: options,
	}

	clientOpts := []genaiopt.ClientOption{genaiopt.WithAPIKey(options.ApiKey)}
	if len(options.BaseURL) > 0 {
		clientOpts = append(clientOpts, genaiopt.WithEndpoint(options.BaseURL))
	}

	client, err := genai.NewClient(options.Context, clientOpts...)
	if err != nil {
		detail := "failed to create google reranker client"
		slog.ErrorContext(options.Context, detail, "error", err)
		panic(detail)
	}

	r.client = client

	return r
}
