package utils

import (
	"errors"
	"testing"
	"time"
)

func TestParseRFC3339(t *testing.T) {
	got, err := ParseRFC3339(" 2024-05-01T12:00:00.250+02:00 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 250_000_000, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := ParseRFC3339(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if _, err := ParseRFC3339("01/05/2024"); err == nil {
		t.Fatalf("expected error for non RFC 3339 value")
	}
}

func TestAppErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError("opensearch.query", "search failed", cause)

	if err.Error() != "opensearch.query: search failed: connection refused" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Op != "opensearch.query" {
		t.Fatalf("expected AppError, got %T", err)
	}

	if msg := NewAppError("opensearch.query", "orgId is required", nil).Error(); msg != "opensearch.query: orgId is required" {
		t.Fatalf("unexpected message without cause: %s", msg)
	}
}
