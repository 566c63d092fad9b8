package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"github.com/w-h-a/recall/embedder"
	"github.com/w-h-a/recall/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type openAIEmbedder struct {
	options embedder.Options
	client  *openai.Client
}

func (e *openAIEmbedder) Model() model.EmbedModel {
	return e.options.Model
}

func (e *openAIEmbedder) Embed(ctx context.Context, inputs []string) ([]embedder.Embedding, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(e.options.Model.ProviderModel()),
	})
	if err != nil {
		return nil, err
	}

	if len(rsp.Data) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	embeddings := make([]embedder.Embedding, 0, len(rsp.Data))

	for _, d := range rsp.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, fmt.Errorf("openai returned embedding index %d for %d inputs", d.Index, len(inputs))
		}
		embeddings = append(embeddings, embedder.Embedding{Index: d.Index, Vector: d.Embedding})
	}

	return embeddings, nil
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = model.EmbedModelOpenAITextEmbedding3Small
	}

	if options.Model.Provider() != "openai" {
		detail := "embedding model is not served by openai"
		slog.ErrorContext(options.Context, detail, "model", options.Model)
		panic(detail)
	}

	e := &openAIEmbedder{
		options: options,
	}

	config := openai.DefaultConfig(options.ApiKey)
	config.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	if len(options.BaseURL) > 0 {
		config.BaseURL = options.BaseURL
	}

	e.client = openai.NewClientWithConfig(config)

	return e
}
