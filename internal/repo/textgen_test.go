package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func TestTextGenExecuteSendsEnvelope(t *testing.T) {
	client := NewTextGenClient("https://gateway.example.com/base", "/api/v1/ai/execute", "/api/v1/ai/status", time.Second)
	client.httpClient = stubHTTPClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/base/api/v1/ai/execute" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		var body models.TextGenRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Operation != models.OperationChatCompletions || body.Provider != "openai" {
			t.Fatalf("unexpected envelope %+v", body)
		}
		if len(body.Params.Messages) != 2 || body.Params.MaxTokens != 512 {
			t.Fatalf("unexpected params %+v", body.Params)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"content": `{"summary":"ok"}`,
				"model":   "gpt-test",
				"usage":   map[string]any{"promptTokens": 10, "completionTokens": 5, "totalTokens": 15},
			},
		}), nil
	}))

	res, err := client.Execute(context.Background(), "tok-1", models.TextGenRequest{
		Provider: "openai",
		Params: models.ChatParams{
			Messages:  []models.ChatMessage{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
			MaxTokens: 512,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != `{"summary":"ok"}` || res.Usage.TotalTokens != 15 || res.Model != "gpt-test" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTextGenExecuteUnsuccessful(t *testing.T) {
	client := NewTextGenClient("https://gateway.example.com", "/execute", "/status", time.Second)
	client.httpClient = stubHTTPClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{"success": false, "error": "quota exceeded"}), nil
	}))

	_, err := client.Execute(context.Background(), "tok", models.TextGenRequest{})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestTextGenExecuteHTTPError(t *testing.T) {
	client := NewTextGenClient("https://gateway.example.com", "/execute", "/status", time.Second)
	client.httpClient = stubHTTPClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusBadGateway, map[string]any{}), nil
	}))

	if _, err := client.Execute(context.Background(), "tok", models.TextGenRequest{}); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}

func TestTextGenStatus(t *testing.T) {
	client := NewTextGenClient("https://gateway.example.com", "/execute", "/status", time.Second)
	client.httpClient = stubHTTPClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodGet || req.Header.Get("Authorization") != "" {
			t.Fatalf("unexpected status request %s %v", req.Method, req.Header)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"configured": true, "providers": []string{"openai"}}), nil
	}))

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Configured || len(status.Providers) != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestTextGenStatusWithoutBaseURL(t *testing.T) {
	status, err := NewTextGenClient("", "/execute", "/status", time.Second).Status(context.Background())
	if err != nil || status.Configured {
		t.Fatalf("expected unconfigured status, got %+v err=%v", status, err)
	}
}
