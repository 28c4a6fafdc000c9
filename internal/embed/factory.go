package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses Ollama's local HTTP API for embeddings. Default.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings — no network, no model
	// download. Useful for tests and for BM25-only operation.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder for provider; an empty or unrecognized
// provider builds the Ollama embedder. DEMONGREP_EMBEDDER, when set to
// "ollama" or "static", overrides provider.
//
// Query embedding caching is enabled by default. Set
// DEMONGREP_EMBED_CACHE=false to disable it.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	var embedder Embedder
	var err error

	if envProvider := os.Getenv("DEMONGREP_EMBEDDER"); envProvider != "" {
		switch strings.ToLower(envProvider) {
		case "ollama":
			embedder, err = newOllamaEmbedder(ctx, model)
		case "static":
			embedder, err = NewStaticEmbedder(StaticDimensions), nil
		}
	}

	if embedder == nil && err == nil {
		switch provider {
		case ProviderOllama:
			embedder, err = newOllamaEmbedder(ctx, model)
		case ProviderStatic:
			embedder, err = NewStaticEmbedder(StaticDimensions), nil
		default:
			embedder, err = newOllamaEmbedder(ctx, model)
		}
	}

	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedder(embedder, DefaultEmbeddingCacheSize)
	}

	return embedder, nil
}

func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("DEMONGREP_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// newOllamaEmbedder builds an OllamaEmbedder from DEMONGREP_OLLAMA_* env
// overrides layered onto config-file and package defaults.
func newOllamaEmbedder(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if model != "" && isOllamaModelName(model) {
		cfg.Model = model
	}

	if host := os.Getenv("DEMONGREP_OLLAMA_HOST"); host != "" {
		cfg.Host = host
	}
	if modelOverride := os.Getenv("DEMONGREP_OLLAMA_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or use offline embeddings: demongrep index --provider static", err)
	}
	return embedder, nil
}

// ParseProvider converts a string to ProviderType, defaulting to Ollama.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	default:
		return ProviderOllama
	}
}

func (p ProviderType) String() string { return string(p) }

// isOllamaModelName reports whether model looks like an Ollama tag
// ("qwen3-embedding:0.6b") as opposed to a bare model family name.
func isOllamaModelName(model string) bool {
	return strings.Contains(model, ":")
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderOllama), string(ProviderStatic)}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo describes a constructed embedder.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder, unwrapping the cache
// decorator to identify the underlying provider.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}
	return info
}

// MustNewEmbedder creates an embedder and panics on failure. Only for tests
// and initialization paths where failure is unrecoverable.
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
