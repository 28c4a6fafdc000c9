// Package grammar owns tree-sitter parser handles per language. It is the
// leaf-most component of the indexing pipeline: lazy, cached, read-mostly.
package grammar

import (
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/yxanul/demongrep/internal/errors"
)

// Lang is a language tag recognized by the registry.
type Lang string

const (
	Go         Lang = "go"
	Python     Lang = "python"
	Rust       Lang = "rust"
	TypeScript Lang = "typescript"
	TSX        Lang = "tsx"
	JavaScript Lang = "javascript"
	JSX        Lang = "jsx"
	Unknown    Lang = "unknown"
)

var extToLang = map[string]Lang{
	".go":  Go,
	".py":  Python,
	".rs":  Rust,
	".ts":  TypeScript,
	".tsx": TSX,
	".js":  JavaScript,
	".mjs": JavaScript,
	".jsx": JSX,
}

// FromExtension maps a file extension (with leading dot) to a language tag.
// Unrecognized extensions return Unknown, never an error — the chunker falls
// back to sliding-window chunking for Unknown.
func FromExtension(ext string) Lang {
	if l, ok := extToLang[ext]; ok {
		return l
	}
	return Unknown
}

type loader func() *sitter.Language

var loaders = map[Lang]loader{
	Go:         golang.GetLanguage,
	Python:     python.GetLanguage,
	Rust:       rust.GetLanguage,
	TypeScript: typescript.GetLanguage,
	TSX:        tsx.GetLanguage,
	JavaScript: javascript.GetLanguage,
	JSX:        javascript.GetLanguage,
}

// Registry holds one tree-sitter handle per language, instantiated on first
// use and cached forever. Safe for concurrent readers; there is no unload.
type Registry struct {
	mu      sync.RWMutex
	handles map[Lang]*sitter.Language
}

// New returns an empty registry. Handles are created lazily by Get.
func New() *Registry {
	return &Registry{handles: make(map[Lang]*sitter.Language)}
}

// Get returns the parser handle for lang, instantiating it on first use.
// Unsupported languages are a recoverable error: callers (the chunker) must
// fall back rather than treat this as fatal.
func (r *Registry) Get(lang Lang) (*sitter.Language, error) {
	r.mu.RLock()
	h, ok := r.handles[lang]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	load, ok := loaders[lang]
	if !ok {
		return nil, errors.Parse(fmt.Sprintf("unsupported language: %s", lang), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under write lock in case another goroutine raced us.
	if h, ok := r.handles[lang]; ok {
		return h, nil
	}
	h = load()
	r.handles[lang] = h
	return h, nil
}

// Preload forces instantiation of every language in langs, surfacing the
// first failure. Warming the registry this way keeps first-use grammar load
// cost out of per-file latency.
func (r *Registry) Preload(langs []Lang) error {
	for _, l := range langs {
		if _, err := r.Get(l); err != nil {
			return err
		}
	}
	return nil
}

// Supported reports whether lang has a registered loader.
func Supported(lang Lang) bool {
	_, ok := loaders[lang]
	return ok
}

var defaultRegistry = New()

// Default returns the process-wide registry. Like the embedding cache, it is
// process-wide, reconstructible after a crash, and never persisted.
func Default() *Registry {
	return defaultRegistry
}
