package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

type envelope struct {
	Success bool                  `json:"success"`
	Data    *models.TextGenResult `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func main() {
	logger := utils.NewLogger("info", false).With(slog.String("component", "textgen-mock"))
	addr := os.Getenv("MOCK_TEXTGEN_ADDRESS")
	if addr == "" {
		addr = ":8090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/ai/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, models.TextGenStatus{Configured: true, Providers: []string{"openai"}})
	})

	mux.HandleFunc("/api/v1/ai/execute", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, envelope{Error: "missing bearer token"})
			return
		}
		var req models.TextGenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, envelope{Error: err.Error()})
			return
		}
		content := reply(lastUserMessage(req.Params.Messages))
		writeJSON(w, envelope{Success: true, Data: &models.TextGenResult{
			Content: content,
			Model:   req.Params.Model,
			Usage:   models.TokenUsage{CompletionTokens: len(content) / 4, TotalTokens: len(content) / 4},
		}})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func lastUserMessage(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// reply picks a canned answer by the shape the prompt asks for. Summaries
// are wrapped in prose to exercise lenient decoding on the caller side.
func reply(prompt string) string {
	switch {
	case strings.Contains(prompt, `"possibleCauses"`):
		return `{"summary": "Errors cluster around token validation in auth.",
"possibleCauses": ["Signing keys were rotated without restarting auth"],
"suggestedActions": ["Compare the JWKS cache age with the last key rotation", "Restart auth pods one at a time"]}`
	case strings.Contains(prompt, `"explanation"`):
		return `{"explanation": "The related entries start right after a deploy and repeat every few seconds.",
"suggestedActions": ["Roll back the most recent deploy of the affected service"]}`
	default:
		return "Here is the analysis:\n" + `{
  // insights are ordered by severity
  "summary": "Authentication failures dominate the window.",
  "insights": [
    {"text": "Token validation is failing for many sessions", "severity": "critical", "category": "error", "searchHint": "Token validation", "services": ["auth"]},
    {"text": "Request latency is elevated", "severity": "warning", "category": "performance"},
  ]
}`
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int("status", rw.status), slog.Duration("duration", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
