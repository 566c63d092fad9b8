package tokenizer

import "context"

type Option func(*Options)

type Options struct {
	Encoding string
	Context  context.Context
}

func WithEncoding(encoding string) Option {
	return func(o *Options) {
		o.Encoding = encoding
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
