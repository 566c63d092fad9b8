package fetcher

import "context"

type Option func(*Options)

type Options struct {
	Location string
	Token    string
	Context  context.Context
}

func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
	}
}

func WithToken(token string) Option {
	return func(o *Options) {
		o.Token = token
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
