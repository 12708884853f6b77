package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// ErrOrgMismatch is returned when a batch carries an entry for a different
// organisation than the one it was submitted under.
var ErrOrgMismatch = errors.New("entry orgId does not match request organisation")

// DecodeBatch parses a JSON array of entries or a single entry object.
// Entries without an orgId inherit orgID; a conflicting orgId is rejected.
// Missing ids and timestamps are filled in and level names are normalised.
func DecodeBatch(data []byte, orgID string, now time.Time) ([]models.LogEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	var entries []models.LogEntry
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
	case '{':
		var entry models.LogEntry
		if err := json.Unmarshal(trimmed, &entry); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		entries = []models.LogEntry{entry}
	default:
		return nil, fmt.Errorf("batch must be a JSON array or object")
	}

	for i := range entries {
		e := &entries[i]
		switch {
		case e.OrgID == "":
			e.OrgID = orgID
		case orgID != "" && e.OrgID != orgID:
			return nil, ErrOrgMismatch
		}
		if e.OrgID == "" {
			return nil, fmt.Errorf("entry %d has no orgId", i)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		if level, ok := models.ParseLevel(string(e.Level)); ok {
			e.Level = level
		}
	}
	return entries, nil
}
