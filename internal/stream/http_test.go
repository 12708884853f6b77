package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func newTestServer(t *testing.T) (*httptest.Server, *Broadcaster) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBroadcaster(time.Hour, logger)
	mux := http.NewServeMux()
	NewHandler(b, 16, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, b
}

// readEvent returns the next named event and its data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "":
			if event != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamDeliversPublishedEntries(t *testing.T) {
	srv, b := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/logs/stream?minLevel=warn&streamId=s1,s2", nil)
	req.Header.Set(HeaderOrgID, "org-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	reader := bufio.NewReader(resp.Body)

	event, data := readEvent(t, reader)
	if event != EventConnected || !strings.Contains(data, `"subscribers":1`) {
		t.Fatalf("unexpected first frame %s %s", event, data)
	}
	if b.Count() != 1 {
		t.Fatalf("expected one subscriber, got %d", b.Count())
	}

	body := `[
		{"id": "1", "streamId": "s1", "level": "INFO", "message": "skip me"},
		{"id": "2", "streamId": "s1", "level": "error", "message": "deliver me"},
		{"id": "3", "streamId": "s9", "level": "error", "message": "wrong stream"}
	]`
	pub, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/logs/publish", strings.NewReader(body))
	pub.Header.Set(HeaderOrgID, "org-1")
	pubResp, err := http.DefaultClient.Do(pub)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	defer pubResp.Body.Close()
	if pubResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", pubResp.StatusCode)
	}
	var ack map[string]int
	if err := json.NewDecoder(pubResp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["accepted"] != 3 || ack["delivered"] != 1 {
		t.Fatalf("unexpected ack %v", ack)
	}

	event, data = readEvent(t, reader)
	if event != EventLogs {
		t.Fatalf("expected logs event, got %s", event)
	}
	var entries []models.LogEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "2" || entries[0].OrgID != "org-1" {
		t.Fatalf("unexpected delivered entries %+v", entries)
	}
}

func TestStreamRequiresOrg(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/logs/stream")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStreamRejectsUnknownLevel(t *testing.T) {
	srv, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/logs/stream?minLevel=loud", nil)
	req.Header.Set(HeaderOrgID, "org-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPublishRejectsForeignOrg(t *testing.T) {
	srv, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/logs/publish", strings.NewReader(`{"orgId": "org-2", "message": "x"}`))
	req.Header.Set(HeaderOrgID, "org-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestDecodeBatchFillsDefaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	entries, err := DecodeBatch([]byte(`{"message": "hello", "level": "Warning"}`), "org-1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry")
	}
	e := entries[0]
	if e.OrgID != "org-1" || e.ID == "" || !e.Timestamp.Equal(now) || e.Level != models.LevelWarn {
		t.Fatalf("defaults not applied: %+v", e)
	}

	if _, err := DecodeBatch([]byte(`"nope"`), "org-1", now); err == nil {
		t.Fatalf("expected error for scalar body")
	}
	if _, err := DecodeBatch([]byte(`[{"message": "x"}]`), "", now); err == nil {
		t.Fatalf("expected error when no organisation is known")
	}
}
