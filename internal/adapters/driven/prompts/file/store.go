// Package file provides a prompt store backed by user-editable files on disk.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mortar-ai/mortar/internal/core/ports/driven"
	"github.com/mortar-ai/mortar/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore serves prompt templates from a directory of .txt files,
// materialising embedded defaults on first use. Files the user has not
// created fall back to the embedded text, so a broken prompt directory
// never takes the pipeline down.
type PromptStore struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string

	setupOnce sync.Once
	setupErr  error

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// defaultPrompts holds the embedded template text, keyed by prompt name.
// It is both the fallback and the initial content written to disk.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptAnswerSystem: `You are Mortar, a compliant assistant for Canadian mortgage guidance.
Rules:
- Use only the provided Context excerpts for factual claims.
- If the Context is insufficient, state that and ask a clarifying question.
- Do not provide personalized financial or legal advice.
- Cite sources using the provided bracketed IDs exactly (e.g., [S1]); do not invent or alter citation IDs.
- Use citations sparingly: cite once at the end of a paragraph or section when the same source supports multiple sentences, and avoid repeating identical citations after every bullet unless different sources are used.
- Do not use LaTeX. Do not use "$" currency symbols; instead write amounts like "CAD 40,000".
- Every factual sentence must include at least one citation tag.
- Format your response with these sections (omit only if information truly unavailable): Answer, Key points, Next steps (optional), Citations, Disclaimer (optional).
- The Citations section must always appear when citations are required and must list only the IDs that were actually used in the answer text.
- In the Citations section provide one line per cited ID in the format "S1 - <title> (<jurisdiction>)".
- Do not list citations that were retrieved but not referenced.
- Keep the response concise and grounded in the sources.`,

	driven.PromptClarify: `I could not find enough in my verified sources to answer that confidently.
Could you rephrase the question, or add details such as the province, the purchase price range, or whether this is a first home?`,
}

// NewPromptStore creates a prompt store rooted at promptDir, defaulting to
// ~/.mortar/prompts when empty. No I/O happens until the first Load.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".mortar", "prompts")
	}

	return &PromptStore{
		dir:   promptDir,
		cache: make(map[string]string),
	}, nil
}

// Load returns the template for name, from cache, then disk, then the
// embedded default. An unknown name with no file behind it is an error.
func (s *PromptStore) Load(name string) (string, error) {
	s.setupOnce.Do(s.setup)
	if s.setupErr != nil {
		if text, ok := defaultPrompts[name]; ok {
			return text, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.setupErr)
	}

	s.mu.RLock()
	text, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return text, nil
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if text, ok := defaultPrompts[name]; ok {
			return text, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}
	text = strings.TrimSpace(string(data))

	s.mu.Lock()
	// A concurrent Load may have cached a value already; keep the first one.
	if cached, ok := s.cache[name]; ok {
		text = cached
	} else {
		s.cache[name] = text
	}
	s.mu.Unlock()

	return text, nil
}

// Reload drops all cached templates so the next Load re-reads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Watch clears the cache whenever a file in the prompt directory changes,
// so edits take effect without a restart. Call Close to stop watching.
func (s *PromptStore) Watch() error {
	s.setupOnce.Do(s.setup)
	if s.setupErr != nil {
		return fmt.Errorf("prompt store init failed: %w", s.setupErr)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompt watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch prompt directory: %w", err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})
	go s.watchLoop()

	return nil
}

func (s *PromptStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("Prompt file changed, reloading: %s", event.Name)
				s.Reload()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Prompt watcher error: %v", err)
		case <-s.done:
			return
		}
	}
}

// Close stops the file watcher, if one is running.
func (s *PromptStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.dir, name+".txt")
}

// setup creates the prompt directory, writes any missing default files and
// drops in a README. Runs once, lazily, on first Load or Watch.
func (s *PromptStore) setup() {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		s.setupErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	for name, content := range defaultPrompts {
		path := s.path(name)
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			s.setupErr = fmt.Errorf("create default prompt %q: %w", name, err)
			return
		}
	}

	readme := filepath.Join(s.dir, "README.md")
	if _, err := os.Stat(readme); !os.IsNotExist(err) {
		return
	}
	content := `# Mortar Prompts

This directory contains customisable prompts used by Mortar's answer pipeline.

## Files

- ` + "`answer_system.txt`" + ` - System instructions for grounded answering
- ` + "`clarify.txt`" + ` - Response used when retrieval confidence is low

## Customisation

Edit any file to customise behaviour. Changes take effect on the next request.

The answer prompt governs grounding: keep the citation rules intact or the
pipeline's enforcement step will reject most answers.
`
	if err := os.WriteFile(readme, []byte(content), 0600); err != nil {
		s.setupErr = fmt.Errorf("create prompts README: %w", err)
	}
}
