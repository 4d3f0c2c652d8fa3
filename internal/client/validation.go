package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/checkfox/leadroute/internal/models"
)

// ValidationClient calls a source's third-party validation API before the
// lead is routed. Sources without a validation URL skip the call entirely.
type ValidationClient struct {
	httpClient *http.Client
}

// NewValidationClient creates a new validation client
func NewValidationClient(timeout time.Duration) *ValidationClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ValidationClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ValidationResult represents the verdict from the validation API
type ValidationResult struct {
	Valid      bool
	StatusCode int
	Body       string
}

// Validate submits the configured field's value to the validation API. The
// API answers with a JSON body carrying a boolean "valid" key; a 2xx response
// without that key counts as valid.
func (c *ValidationClient) Validate(ctx context.Context, cfg models.SourceValidationConfig, value string) (*ValidationResult, error) {
	if !cfg.Enabled() {
		return &ValidationResult{Valid: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ValidationURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation request: %w", err)
	}

	query := req.URL.Query()
	query.Set(cfg.ValidationField, value)
	req.URL.RawQuery = query.Encode()

	if cfg.ValidationAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.ValidationAPIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read validation response: %w", err)
	}

	result := &ValidationResult{
		StatusCode: resp.StatusCode,
		Body:       string(bodyBytes),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Valid = false
		return result, nil
	}

	var verdict struct {
		Valid *bool `json:"valid"`
	}
	if err := json.Unmarshal(bodyBytes, &verdict); err == nil && verdict.Valid != nil {
		result.Valid = *verdict.Valid
		return result, nil
	}

	result.Valid = true
	return result, nil
}
