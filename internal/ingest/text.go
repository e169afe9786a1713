package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextIngester reads a plain text startup one-pager from disk. One-pagers
// conventionally open with the company name on its own line; that line
// becomes the title and stays out of the description.
type TextIngester struct{}

func (t *TextIngester) Ingest(ctx context.Context, source string) (*Document, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("could not read file %s: %w", source, err)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("file %s is empty", source)
	}

	title, body := splitOnePager(text)
	return &Document{
		Text:      body,
		Title:     title,
		Source:    filepath.Base(source),
		WordCount: wordCount(body),
	}, nil
}

// splitOnePager treats a short first line as the company name and the rest
// as the summary. A file that opens with prose keeps its full text as the
// body, as does a file that is nothing but a name.
func splitOnePager(text string) (title, body string) {
	head, rest, found := strings.Cut(text, "\n")
	head = strings.TrimSpace(strings.TrimLeft(head, "# "))
	if !found || head == "" || len(head) > 60 || strings.Count(head, " ") > 6 {
		return titleFromText(text, 80), text
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return head, text
	}
	return head, rest
}
