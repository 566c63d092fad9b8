package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/w-h-a/recall/reranker"
)

type anthropicReranker struct {
	options reranker.Options
	client  *anthropic.Client
}

func (r *anthropicReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]reranker.Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.options.Model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(reranker.Prompt(query, documents))),
		},
	}

	rsp, err := r.client.Messages.New(ctx, req)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}

	answer := b.String()
	if len(answer) == 0 {
		return nil, errors.New("no response from Anthropic")
	}

	return reranker.ParseRanking(answer, len(documents), topN), nil
}

func NewReranker(opts ...reranker.Option) reranker.Reranker {
	options := reranker.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = "claude-3-5-haiku-latest"
	}

	r := &anthropicReranker{
		options: options,
	}

	clientOpts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(options.ApiKey)}
	if len(options.BaseURL) > 0 {
		clientOpts = append(clientOpts, anthropicopt.WithBaseURL(options.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	r.client = &client

	return r
}
