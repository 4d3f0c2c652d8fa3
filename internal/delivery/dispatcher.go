package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/checkfox/leadroute/internal/models"
)

// Response captures what the destination answered
type Response struct {
	StatusCode int
	Body       string
}

// Dispatcher performs the outbound call to a destination and reports the
// result. Attempts are bounded by the destination's timeout; there is no
// automatic retry.
type Dispatcher interface {
	Dispatch(ctx context.Context, destination *models.Destination, payload models.JSONB) (*Response, error)
}

// HTTPDispatcher delivers leads over HTTP. GET requests carry the payload
// as query parameters; POST/PUT requests send JSON or form-encoded bodies
// per the destination's content type.
type HTTPDispatcher struct {
	client *http.Client
}

// NewHTTPDispatcher creates a Dispatcher. Per-request deadlines come from
// the destination config, so the shared client carries no global timeout.
func NewHTTPDispatcher() *HTTPDispatcher {
	return &HTTPDispatcher{client: &http.Client{}}
}

// Dispatch implements Dispatcher
func (d *HTTPDispatcher) Dispatch(ctx context.Context, destination *models.Destination, payload models.JSONB) (*Response, error) {
	cfg := destination.Config

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := d.buildRequest(ctx, cfg, payload)
	if err != nil {
		return nil, models.NewDeliveryError(0, "failed to build request", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, models.NewDeliveryError(0, "destination unreachable", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, models.NewDeliveryError(resp.StatusCode, "failed to read response body", err)
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Body:       string(bodyBytes),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, models.NewDeliveryError(resp.StatusCode,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, response.Body), nil)
	}

	return response, nil
}

func (d *HTTPDispatcher) buildRequest(ctx context.Context, cfg models.DestinationConfig, payload models.JSONB) (*http.Request, error) {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	var req *http.Request
	var err error

	switch {
	case method == http.MethodGet:
		req, err = http.NewRequestWithContext(ctx, method, cfg.URL, nil)
		if err != nil {
			return nil, err
		}
		query := req.URL.Query()
		for key, value := range payload {
			query.Set(key, fmt.Sprintf("%v", value))
		}
		req.URL.RawQuery = query.Encode()

	case cfg.ContentType == "form":
		form := url.Values{}
		for key, value := range payload {
			form.Set(key, fmt.Sprintf("%v", value))
		}
		req, err = http.NewRequestWithContext(ctx, method, cfg.URL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	default:
		body, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return nil, marshalErr
		}
		req, err = http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	switch cfg.AuthType {
	case "bearer":
		if token := cfg.AuthCredentials["token"]; token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case "basic":
		if username := cfg.AuthCredentials["username"]; username != "" {
			req.SetBasicAuth(username, cfg.AuthCredentials["password"])
		}
	}

	return req, nil
}
