// Package ingest loads startup material (a company page URL, a pitch deck
// PDF, or a plain text file) and condenses it into the startup profile a
// pitch session is seeded with.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/apresai/pitchroom/internal/persona"
)

type SourceType string

const (
	SourceURL  SourceType = "url"
	SourcePDF  SourceType = "pdf"
	SourceText SourceType = "text"

	// maxInputSize is the maximum allowed size for input content (25 MB).
	maxInputSize = 25 * 1024 * 1024

	// maxDescriptionChars bounds the startup description embedded in the
	// system prompt. Whole pitch decks don't fit in a prompt budget.
	maxDescriptionChars = 4000
)

func (s SourceType) String() string {
	return string(s)
}

// Document is the raw extracted material before profile condensation.
type Document struct {
	Text      string
	Title     string
	Source    string
	WordCount int
}

// Startup condenses the document into the profile handed to a session: the
// title becomes the company name, the leading text the description.
func (d *Document) Startup() persona.Startup {
	desc := strings.TrimSpace(d.Text)
	if len(desc) > maxDescriptionChars {
		cut := desc[:maxDescriptionChars]
		// Cut at a word boundary when one is near.
		if idx := strings.LastIndexByte(cut, ' '); idx > maxDescriptionChars/2 {
			cut = cut[:idx]
		}
		desc = cut + "..."
	}
	return persona.Startup{
		Name:        d.Title,
		Description: desc,
	}
}

type Ingester interface {
	Ingest(ctx context.Context, source string) (*Document, error)
}

func DetectSource(input string) SourceType {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return SourceURL
	}
	if strings.HasSuffix(strings.ToLower(input), ".pdf") {
		return SourcePDF
	}
	return SourceText
}

func NewIngester(input string) Ingester {
	switch DetectSource(input) {
	case SourceURL:
		return &URLIngester{}
	case SourcePDF:
		return &PDFIngester{}
	default:
		return &TextIngester{}
	}
}

// LoadStartup ingests a source and returns the condensed profile.
func LoadStartup(ctx context.Context, source string) (persona.Startup, error) {
	doc, err := NewIngester(source).Ingest(ctx, source)
	if err != nil {
		return persona.Startup{}, err
	}
	return doc.Startup(), nil
}

func wordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count
}

func titleFromText(text string, maxLen int) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxInputSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), maxInputSize/(1024*1024))
	}
	return nil
}
