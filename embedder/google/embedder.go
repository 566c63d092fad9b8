package google

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/w-h-a/recall/embedder"
	"github.com/w-h-a/recall/model"
	genaiopt "google.golang.org/api/option"
)

type googleEmbedder struct {
	options embedder.Options
	client  *genai.Client
}

func (e *googleEmbedder) Model() model.EmbedModel {
	return e.options.Model
}

func (e *googleEmbedder) Embed(ctx context.Context, inputs []string) ([]embedder.Embedding, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	em := e.client.EmbeddingModel(e.options.Model.ProviderModel())

	batch := em.NewBatch()
	for _, input := range inputs {
		batch.AddContent(genai.Text(input))
	}

	rsp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	// the batch api answers in request order
	if rsp == nil || len(rsp.Embeddings) != len(inputs) {
		return nil, errors.New("no response from Google")
	}

	embeddings := make([]embedder.Embedding, 0, len(rsp.Embeddings))

	for i, emb := range rsp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, errors.New("empty embedding from Google")
		}
		embeddings = append(embeddings, embedder.Embedding{Index: i, Vector: emb.Values})
	}

	return embeddings, nil
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = model.EmbedModelGoogleTextEmbedding004
	}

	if options.Model.Provider() != "google" {
		detail := "embedding model is not served by google"
		slog.ErrorContext(options.Context, detail, "model", options.Model)
		panic(detail)
	}

	e := &googleEmbedder{
		options: options,
	}

	clientOpts := []genaiopt.ClientOption{genaiopt.WithAPIKey(options.ApiKey)}
	if len(options.BaseURL) > 0 {
		clientOpts = append(clientOpts, genaiopt.WithEndpoint(options.BaseURL))
	}

	client, err := genai.NewClient(options.Context, clientOpts...)
	if err != nil {
		detail := "failed to create google embedder client"
		slog.ErrorContext(options.Context, detail, "error", err)
		panic(detail)
	}

	e.client = client

	return e
}
