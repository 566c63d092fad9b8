package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/w-h-a/recall/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type httpServer struct {
	options server.Options
	srv     *http.Server
}

func (s *httpServer) Options() server.Options {
	return s.options
}

// Start listens on the configured address and serves until Stop is called.
func (s *httpServer) Start() error {
	ln, err := net.Listen("tcp", s.options.Address)
	if err != nil {
		return err
	}

	slog.InfoContext(s.options.Context, "http server listening", "address", ln.Addr().String())

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func NewServer(opts ...server.Option) server.Server {
	options := server.NewOptions(opts...)

	s := &httpServer{
		options: options,
	}

	handler, ok := HandlerFrom(options.Context)
	if !ok {
		handler = http.NotFoundHandler()
	}

	if ms, ok := MiddlewareFrom(options.Context); ok {
		for i := len(ms) - 1; i >= 0; i-- {
			handler = ms[i](handler)
		}
	}

	s.srv = &http.Server{
		Addr:    options.Address,
		Handler: otelhttp.NewHandler(handler, "recall"),
	}

	return s
}
