package server

import "context"

type Server interface {
	Options() Options
	Start() error
	Stop(ctx context.Context) error
}
