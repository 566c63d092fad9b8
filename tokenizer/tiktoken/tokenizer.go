package tiktoken

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/w-h-a/recall/tokenizer"
)

func init() {
	// bpe ranks are compiled in so counting never reaches the network
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

type tiktokenTokenizer struct {
	options  tokenizer.Options
	encoding *tiktoken.Tiktoken
}

func (t *tiktokenTokenizer) Count(text string) (int, error) {
	return len(t.encoding.Encode(text, nil, nil)), nil
}

func NewTokenizer(opts ...tokenizer.Option) tokenizer.Tokenizer {
	options := tokenizer.NewOptions(opts...)

	if len(options.Encoding) == 0 {
		options.Encoding = "cl100k_base"
	}

	t := &tiktokenTokenizer{
		options: options,
	}

	encoding, err := tiktoken.GetEncoding(options.Encoding)
	if err != nil {
		detail := "failed to load tiktoken encoding"
		slog.ErrorContext(options.Context, detail, "encoding", options.Encoding, "error", err)
		panic(detail)
	}

	t.encoding = encoding

	return t
}
