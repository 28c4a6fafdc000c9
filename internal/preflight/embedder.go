package preflight

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// embedderProbeTimeout bounds the Ollama reachability probe so a down
// server can't stall the whole check run.
const embedderProbeTimeout = 2 * time.Second

// CheckEmbedder checks whether the Ollama server backing the embedding
// service is reachable. Not required: the service falls back to the
// static embedder when no server is available.
func (c *Checker) CheckEmbedder(ctx context.Context, host string) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	if c.offline {
		result.Status = StatusWarn
		result.Message = "Offline mode: static embedder will be used"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/version", nil)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("invalid embedder host %q: %v", host, err)
		return result
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "Ollama not reachable (static embedder will be used)"
		result.Details = fmt.Sprintf("host: %s", host)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Ollama responded with HTTP %d", resp.StatusCode)
		result.Details = fmt.Sprintf("host: %s", host)
		return result
	}

	result.Status = StatusPass
	result.Message = "Ollama reachable"
	result.Details = fmt.Sprintf("host: %s", host)
	return result
}
