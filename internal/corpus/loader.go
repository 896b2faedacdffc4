// Package corpus reads source documents from disk.
//
// Corpus files are plain .txt with a small key: value header terminated by a
// "---" line, followed by the document body:
//
//	source_name: FSRA
//	source_url: https://www.fsrao.ca/...
//	jurisdiction: Ontario
//	published_date: 2024-06-01
//	page_title: Mortgage Brokering in Ontario
//	---
//	Body text starts here.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/logger"
)

// Header keys recognised in corpus files. Unknown keys are ignored.
const (
	keySourceName    = "source_name"
	keySourceURL     = "source_url"
	keyJurisdiction  = "jurisdiction"
	keyPublishedDate = "published_date"
	keyPageTitle     = "page_title"
)

// headerSeparator terminates the metadata header.
const headerSeparator = "---"

// LoadDir reads every .txt file in dir, in lexical order, and returns one
// document per file. A directory with no .txt files yields an empty slice,
// not an error.
func LoadDir(dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	docs := make([]domain.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", filepath.Base(path), err)
		}
		docs = append(docs, doc)
	}

	logger.Debug("Loaded %d corpus documents from %s", len(docs), dir)
	return docs, nil
}

// LoadFile reads one corpus file into a document. The document ID is the
// file name without its extension, so re-ingesting the same file supersedes
// the previous version.
func LoadFile(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reading corpus file: %w", err)
	}

	header, body := splitHeaderBody(string(data))

	doc := domain.Document{
		ID:           strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		SourceName:   header[keySourceName],
		URL:          header[keySourceURL],
		Jurisdiction: header[keyJurisdiction],
		Title:        header[keyPageTitle],
		IngestedDate: time.Now().UTC(),
		RawText:      strings.TrimSpace(body),
	}

	if doc.SourceName == "" {
		doc.SourceName = "unknown"
	}
	if doc.Title == "" {
		doc.Title = deriveTitle(doc.RawText, doc.ID)
	}
	if raw := header[keyPublishedDate]; raw != "" {
		published, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return domain.Document{}, fmt.Errorf("parsing published_date %q: %w", raw, err)
		}
		doc.PublishedDate = published
	}

	return doc, nil
}

// splitHeaderBody separates the key: value header from the body. Everything
// before the first "---" line is header; lines without a colon are skipped.
// A file with no separator is all body.
func splitHeaderBody(raw string) (map[string]string, string) {
	header := make(map[string]string)

	sepIdx := -1
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == headerSeparator {
			sepIdx = i
			break
		}
	}
	if sepIdx < 0 {
		return header, raw
	}

	for _, line := range lines[:sepIdx] {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		header[key] = strings.TrimSpace(value)
	}

	return header, strings.Join(lines[sepIdx+1:], "\n")
}

// deriveTitle falls back to the first non-empty body line, then to the file
// name with separators replaced by spaces.
func deriveTitle(body, docID string) string {
	for _, line := range strings.Split(body, "\n") {
		if stripped := strings.TrimSpace(line); stripped != "" {
			return stripped
		}
	}

	title := strings.NewReplacer("_", " ", "-", " ").Replace(docID)
	title = strings.TrimSpace(title)
	if title == "" {
		return "Untitled Document"
	}
	return title
}
