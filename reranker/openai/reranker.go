package openai

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"github.com/w-h-a/recall/reranker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type openAIReranker struct {
	options reranker.Options
	client  *openai.Client
}

func (r *openAIReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]reranker.Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	req := openai.ChatCompletionRequest{
		Model: r.options.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: reranker.Prompt(query, documents),
			},
		},
	}

	rsp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Message.Content) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	return reranker.ParseRanking(rsp.Choices[0].Message.Content, len(documents), topN), nil
}

func NewReranker(opts ...reranker.Option) reranker.Reranker {
	options := reranker.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = openai.GPT4oMini
	}

	r := &openAIReranker{
		options: options,
	}

	config := openai.DefaultConfig(options.ApiKey)
	config.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	if len(options.BaseURL) > 0 {
		config.BaseURL = options.BaseURL
	}

	r.client = openai.NewClientWithConfig(config)

	return r
}
