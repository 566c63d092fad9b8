package markdown

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/w-h-a/recall/fetcher"
	"github.com/w-h-a/recall/model"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type markdownFetcher struct {
	options fetcher.Options
	md      goldmark.Markdown
}

// Fetch reads every .md file below the configured directory. A note's id is
// its slash separated path relative to that directory.
func (f *markdownFetcher) Fetch(ctx context.Context) ([]model.Note, error) {
	root := f.options.Location

	var notes []model.Note

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		note, err := f.readNote(root, path, d)
		if err != nil {
			return err
		}

		notes = append(notes, note)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(notes, func(i, j int) bool { return notes[i].Id < notes[j].Id })

	return notes, nil
}

func (f *markdownFetcher) readNote(root, path string, d fs.DirEntry) (model.Note, error) {
	info, err := d.Info()
	if err != nil {
		return model.Note{}, err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return model.Note{}, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return model.Note{}, err
	}

	doc := f.md.Parser().Parse(text.NewReader(src))

	note := model.Note{
		Id:         filepath.ToSlash(rel),
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		ModifiedAt: info.ModTime().UTC(),
	}

	titled := false

	for block := doc.FirstChild(); block != nil; block = block.NextSibling() {
		if block.Kind() == ast.KindThematicBreak {
			note.Content.Paragraphs = append(note.Content.Paragraphs, model.Paragraph{})
			continue
		}

		content := strings.TrimSpace(blockText(block, src))

		if !titled && block.Kind() == ast.KindHeading && len(content) > 0 {
			note.Title = content
			titled = true
		}

		note.Content.Paragraphs = append(note.Content.Paragraphs, model.NewParagraph(content))
	}

	return note, nil
}

func blockText(n ast.Node, src []byte) string {
	if n.Type() == ast.TypeInline {
		return ""
	}

	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		var b strings.Builder
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			b.Write(line.Value(src))
		}
		return strings.TrimRight(b.String(), "\n")
	}

	var parts []string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t := strings.TrimSpace(blockText(child, src)); len(t) > 0 {
			parts = append(parts, t)
		}
	}

	return strings.Join(parts, "\n")
}

func NewFetcher(opts ...fetcher.Option) fetcher.Fetcher {
	options := fetcher.NewOptions(opts...)

	f := &markdownFetcher{
		options: options,
		md:      goldmark.New(),
	}

	return f
}
