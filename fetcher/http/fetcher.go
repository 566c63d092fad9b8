package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/w-h-a/recall/fetcher"
	"github.com/w-h-a/recall/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type httpFetcher struct {
	options fetcher.Options
	client  *http.Client
}

// Fetch downloads the note snapshot served as {"data": [notes]} at the
// configured location.
func (f *httpFetcher) Fetch(ctx context.Context) ([]model.Note, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		f.options.Location,
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Add("Accept", "application/json")

	if len(f.options.Token) > 0 {
		req.Header.Add("Authorization", "Bearer "+f.options.Token)
	}

	rsp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode >= 400 {
		return nil, fmt.Errorf("status: %s", rsp.Status)
	}

	var res struct {
		Data []model.Note `json:"data"`
	}

	if err := json.NewDecoder(rsp.Body).Decode(&res); err != nil {
		return nil, err
	}

	return res.Data, nil
}

func NewFetcher(opts ...fetcher.Option) fetcher.Fetcher {
	options := fetcher.NewOptions(opts...)

	f := &httpFetcher{
		options: options,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}

	return f
}
