package model

import (
	"strings"
	"time"
)

// Note is a note as returned by a fetcher. It is stored verbatim as the
// payload of a NOTE memory.
type Note struct {
	Id         string    `json:"id"`
	Title      string    `json:"title,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
	Content    Content   `json:"content"`
}

type Content struct {
	Paragraphs []Paragraph `json:"paragraphs"`
}

type Paragraph struct {
	Rendered *string `json:"rendered,omitempty"`
}

// Indexable reports whether the paragraph has rendered text worth embedding.
func (p Paragraph) Indexable() bool {
	return p.Rendered != nil && len(strings.TrimSpace(*p.Rendered)) > 0
}

func NewParagraph(text string) Paragraph {
	return Paragraph{Rendered: &text}
}
