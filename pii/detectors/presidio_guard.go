package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultPresidioBaseURL = "http://localhost:5002"
	defaultPresidioLang    = "en"
	defaultPresidioTimeout = 30 * time.Second
	presidioModelName      = "presidio"
)

// PresidioGuard calls a Presidio analyzer service over HTTP.
type PresidioGuard struct {
	baseURL    string
	language   string
	extras     map[string]any
	httpClient *http.Client
}

// NewPresidioGuard reads base_url, language and timeout from opts. Other options such as
// "entities" or "score_threshold" are forwarded in the /analyze request body.
func NewPresidioGuard(opts Options) (*PresidioGuard, error) {
	return &PresidioGuard{
		baseURL:    strings.TrimSuffix(opts.String("base_url", defaultPresidioBaseURL), "/"),
		language:   opts.String("language", defaultPresidioLang),
		extras:     opts.extras("base_url", "language", "timeout"),
		httpClient: &http.Client{Timeout: opts.Duration("timeout", defaultPresidioTimeout)},
	}, nil
}

func (p *PresidioGuard) Detect(ctx context.Context, text string) (GuardResult, error) {
	reqBody := make(map[string]any, len(p.extras)+2)
	for k, v := range p.extras {
		reqBody[k] = v
	}
	reqBody["text"] = text
	reqBody["language"] = p.language

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return GuardResult{}, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze", bytes.NewReader(jsonData))
	if err != nil {
		return GuardResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := doJSON(p.httpClient, req)
	if err != nil {
		return GuardResult{}, fmt.Errorf("presidio analyze: %w", err)
	}
	return ParsePresidioResponse(text, body, presidioModelName), nil
}
