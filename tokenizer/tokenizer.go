package tokenizer

type Tokenizer interface {
	Count(text string) (int, error)
}
