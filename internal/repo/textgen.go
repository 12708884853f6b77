package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// TextGenClient calls the text-generation gateway on behalf of a caller.
// It holds no credentials of its own; every Execute is authorised by the
// caller's bearer token.
type TextGenClient struct {
	baseURL     string
	executePath string
	statusPath  string
	httpClient  *http.Client
}

// NewTextGenClient constructs a client targeting the configured gateway.
func NewTextGenClient(baseURL, executePath, statusPath string, timeout time.Duration) *TextGenClient {
	return &TextGenClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		executePath: executePath,
		statusPath:  statusPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type textGenEnvelope struct {
	Success bool                  `json:"success"`
	Data    *models.TextGenResult `json:"data"`
	Error   string                `json:"error"`
}

// Execute issues one chat-completions call. A transport failure, a non-200
// status or success=false are all reported as errors.
func (c *TextGenClient) Execute(ctx context.Context, token string, req models.TextGenRequest) (models.TextGenResult, error) {
	if c == nil {
		return models.TextGenResult{}, fmt.Errorf("textgen client not initialised")
	}
	if c.baseURL == "" {
		return models.TextGenResult{}, fmt.Errorf("textgen base URL not configured")
	}
	if req.Operation == "" {
		req.Operation = models.OperationChatCompletions
	}

	var envelope textGenEnvelope
	if err := c.doJSON(ctx, http.MethodPost, c.resolvePath(c.executePath), token, req, &envelope); err != nil {
		return models.TextGenResult{}, fmt.Errorf("textgen execute request failed: %w", err)
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "unsuccessful response"
		}
		return models.TextGenResult{}, fmt.Errorf("textgen execute: %s", msg)
	}
	if envelope.Data == nil {
		return models.TextGenResult{}, fmt.Errorf("textgen execute returned no data")
	}
	return *envelope.Data, nil
}

// Status probes whether the gateway has a configured provider.
func (c *TextGenClient) Status(ctx context.Context) (models.TextGenStatus, error) {
	if c == nil {
		return models.TextGenStatus{}, fmt.Errorf("textgen client not initialised")
	}
	if c.baseURL == "" {
		return models.TextGenStatus{}, nil
	}
	var status models.TextGenStatus
	if err := c.doJSON(ctx, http.MethodGet, c.resolvePath(c.statusPath), "", nil, &status); err != nil {
		return models.TextGenStatus{}, fmt.Errorf("textgen status request failed: %w", err)
	}
	return status, nil
}

func (c *TextGenClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *TextGenClient) doJSON(ctx context.Context, method, endpoint, token string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("textgen returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
