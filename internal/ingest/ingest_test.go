package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSource(t *testing.T) {
	assert.Equal(t, SourceURL, DetectSource("https://petuber.example.com/about"))
	assert.Equal(t, SourceURL, DetectSource("http://petuber.example.com"))
	assert.Equal(t, SourcePDF, DetectSource("deck.pdf"))
	assert.Equal(t, SourcePDF, DetectSource("DECK.PDF"))
	assert.Equal(t, SourceText, DetectSource("notes.txt"))
	assert.Equal(t, SourceText, DetectSource("just a company name"))
}

func TestTextIngestBuildsStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petuber.txt")
	content := "PetUber\nOn-demand dog walking marketplace. We match walkers with owners in under two minutes."
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	doc, err := (&TextIngester{}).Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "PetUber", doc.Title)
	assert.Equal(t, 13, doc.WordCount)

	startup := doc.Startup()
	assert.Equal(t, "PetUber", startup.Name)
	assert.Contains(t, startup.Description, "dog walking marketplace")
	assert.False(t, strings.HasPrefix(startup.Description, "PetUber"),
		"name line stays out of the description")
}

func TestSplitOnePager(t *testing.T) {
	title, body := splitOnePager("# PetUber\nOn-demand dog walking.")
	assert.Equal(t, "PetUber", title)
	assert.Equal(t, "On-demand dog walking.", body)

	// A name with nothing after it keeps the full text as the body.
	title, body = splitOnePager("PetUber")
	assert.Equal(t, "PetUber", title)
	assert.Equal(t, "PetUber", body)

	// Prose openings are not company names.
	prose := "We are building the on-demand marketplace for dog walking in dense cities.\nMore detail."
	title, body = splitOnePager(prose)
	assert.Equal(t, prose, body)
	assert.Contains(t, title, "We are building")
}

func TestDeckTitleSkipsCoverBoilerplate(t *testing.T) {
	cover := "CONFIDENTIAL\nInvestor Presentation\n\nPetUber\nSeed Round 2026"
	assert.Equal(t, "PetUber", deckTitle(cover))

	assert.Equal(t, "", deckTitle("Confidential\nDo not distribute"),
		"all-boilerplate covers yield no title")
}

func TestStartupDescriptionIsTruncated(t *testing.T) {
	doc := &Document{
		Title: "BigDeck",
		Text:  strings.Repeat("traction and more traction ", 1000),
	}

	startup := doc.Startup()
	assert.LessOrEqual(t, len(startup.Description), maxDescriptionChars+4)
	assert.True(t, strings.HasSuffix(startup.Description, "..."))
}

func TestIngestRejectsMissingFile(t *testing.T) {
	_, err := (&TextIngester{}).Ingest(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}

func TestIngestRejectsDirectory(t *testing.T) {
	_, err := (&TextIngester{}).Ingest(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}
