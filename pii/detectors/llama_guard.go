package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultLlamaModel    = "llama-guard3"
	defaultLlamaTimeout  = 60 * time.Second

	// response bodies above this size are truncated in error messages
	maxErrorBody = 512
)

// LlamaGuard prompts a Llama Guard model served by Ollama's /api/generate endpoint.
type LlamaGuard struct {
	baseURL    string
	model      string
	extras     map[string]any
	httpClient *http.Client
}

// NewLlamaGuard reads base_url, model and timeout from opts. Every other option is merged
// into the generate request body, so Ollama settings such as "options" or "keep_alive" pass
// through.
func NewLlamaGuard(opts Options) (*LlamaGuard, error) {
	return &LlamaGuard{
		baseURL:    strings.TrimSuffix(opts.String("base_url", defaultOllamaBaseURL), "/"),
		model:      opts.String("model", defaultLlamaModel),
		extras:     opts.extras("base_url", "model", "timeout"),
		httpClient: &http.Client{Timeout: opts.Duration("timeout", defaultLlamaTimeout)},
	}, nil
}

func (l *LlamaGuard) Detect(ctx context.Context, text string) (GuardResult, error) {
	reqBody := make(map[string]any, len(l.extras)+4)
	for k, v := range l.extras {
		reqBody[k] = v
	}
	reqBody["model"] = l.model
	reqBody["prompt"] = buildLlamaGuardPrompt(text)
	reqBody["stream"] = false
	reqBody["format"] = "json"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return GuardResult{}, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return GuardResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := doJSON(l.httpClient, req)
	if err != nil {
		return GuardResult{}, fmt.Errorf("ollama generate: %w", err)
	}
	return ParseLlamaGuardResponse(text, body, l.model), nil
}

// doJSON sends req and returns the response body. Non-2xx statuses are errors.
func doJSON(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}
	return body, nil
}
