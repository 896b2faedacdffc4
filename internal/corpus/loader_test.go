package corpus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpusFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFileParsesHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpusFile(t, dir, "fsra_broker_rules.txt", `source_name: FSRA
source_url: https://www.fsrao.ca/consumers/mortgages
jurisdiction: Ontario
published_date: 2024-06-01
page_title: Mortgage Brokering in Ontario
---
Brokers must be licensed by FSRA to arrange mortgages in Ontario.
`)

	doc, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "fsra_broker_rules", doc.ID)
	assert.Equal(t, "FSRA", doc.SourceName)
	assert.Equal(t, "https://www.fsrao.ca/consumers/mortgages", doc.URL)
	assert.Equal(t, "Ontario", doc.Jurisdiction)
	assert.Equal(t, "Mortgage Brokering in Ontario", doc.Title)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), doc.PublishedDate)
	assert.Equal(t, "Brokers must be licensed by FSRA to arrange mortgages in Ontario.", doc.RawText)
	assert.False(t, doc.IngestedDate.IsZero())
}

func TestLoadFileNoSeparatorIsAllBody(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpusFile(t, dir, "notes.txt", "Down payment rules for insured mortgages.\nMore text.")

	doc, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "unknown", doc.SourceName)
	assert.Equal(t, "Down payment rules for insured mortgages.\nMore text.", doc.RawText)
	// Title falls back to the first body line
	assert.Equal(t, "Down payment rules for insured mortgages.", doc.Title)
}

func TestLoadFileTitleFallsBackToFileName(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpusFile(t, dir, "cmhc_premium-rates.txt", `source_name: CMHC
---
`)

	doc, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "cmhc premium rates", doc.Title)
	assert.Empty(t, doc.RawText)
}

func TestLoadFileHeaderLinesWithoutColonSkipped(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpusFile(t, dir, "doc.txt", `source_name: CMHC
this line has no colon and is ignored
jurisdiction: Federal
---
Body.
`)

	doc, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "CMHC", doc.SourceName)
	assert.Equal(t, "Federal", doc.Jurisdiction)
}

func TestLoadFileBadPublishedDate(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpusFile(t, dir, "doc.txt", `published_date: June 1st
---
Body.
`)

	_, err := LoadFile(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "published_date")
}

func TestLoadDirLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "b_second.txt", "---\nSecond.")
	writeCorpusFile(t, dir, "a_first.txt", "---\nFirst.")
	writeCorpusFile(t, dir, "ignored.md", "not a corpus file")

	docs, err := LoadDir(dir)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "a_first", docs[0].ID)
	assert.Equal(t, "b_second", docs[1].ID)
}

func TestLoadDirEmpty(t *testing.T) {
	docs, err := LoadDir(t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, docs)
}
