package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFIngester extracts plain text from a pitch deck or one-pager PDF. The
// cover slide gets special treatment: the company name usually sits there,
// wrapped in boilerplate that must not become the title.
type PDFIngester struct{}

func (p *PDFIngester) Ingest(ctx context.Context, source string) (*Document, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(source)
	if err != nil {
		return nil, fmt.Errorf("could not read PDF %s: %w", source, err)
	}
	defer f.Close()

	var slides []string
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue // Skip slides that fail to extract
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		slides = append(slides, text)
	}

	if len(slides) == 0 {
		return nil, fmt.Errorf("could not extract text from PDF %s, it may be scanned or image-based", source)
	}

	// Slides stay separated by blank lines so description truncation lands
	// between slides rather than mid-sentence inside one.
	text := strings.Join(slides, "\n\n")

	title := deckTitle(slides[0])
	if title == "" {
		title = titleFromText(text, 80)
	}

	return &Document{
		Text:      text,
		Title:     title,
		Source:    filepath.Base(source),
		WordCount: wordCount(text),
	}, nil
}

// deckTitle picks the company name off a cover slide: the first line that
// isn't cover boilerplate. Empty when the whole slide is boilerplate.
func deckTitle(cover string) string {
	for _, line := range strings.Split(cover, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isDeckBoilerplate(line) {
			continue
		}
		if len(line) > 80 {
			line = line[:80] + "..."
		}
		return line
	}
	return ""
}

var coverBoilerplate = []string{
	"confidential",
	"pitch deck",
	"investor presentation",
	"investor deck",
	"do not distribute",
	"all rights reserved",
	"seed round",
	"series a",
	"series b",
}

func isDeckBoilerplate(line string) bool {
	l := strings.ToLower(line)
	for _, marker := range coverBoilerplate {
		if strings.Contains(l, marker) {
			return true
		}
	}
	return false
}
