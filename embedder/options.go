package embedder

import (
	"context"

	"github.com/w-h-a/recall/model"
)

type Option func(*Options)

type Options struct {
	ApiKey  string
	Model   model.EmbedModel
	BaseURL string
	Context context.Context
}

func WithApiKey(apiKey string) Option {
	return func(o *Options) {
		o.ApiKey = apiKey
	}
}

func WithModel(m model.EmbedModel) Option {
	return func(o *Options) {
		o.Model = m
	}
}

func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
