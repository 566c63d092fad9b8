package fetcher

import (
	"context"

	"github.com/w-h-a/recall/model"
)

// Fetcher returns the full current snapshot of source notes.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.Note, error)
}
