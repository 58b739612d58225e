// Package cursor implements the opaque keyset cursors used to page
// through the run ledger.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor marks the last run of a page. Runs are ordered by start time
// then ledger row id, both descending.
type Cursor struct {
	StartedAt string `json:"started_at"`
	LastID    int64  `json:"last_id"`
}

// New creates a cursor from the last row of a page.
func New(startedAt string, lastID int64) (*Cursor, error) {
	if startedAt == "" {
		return nil, fmt.Errorf("cursor requires a start time")
	}
	if lastID <= 0 {
		return nil, fmt.Errorf("cursor requires a row id")
	}
	return &Cursor{StartedAt: startedAt, LastID: lastID}, nil
}

// Encode serializes the cursor to an opaque base64 string
func (c *Cursor) Encode() (string, error) {
	jsonData, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(jsonData), nil
}

// Decode deserializes a cursor from an opaque base64 string
func Decode(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty cursor string")
	}

	jsonData, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}
	if c.StartedAt == "" || c.LastID <= 0 {
		return nil, fmt.Errorf("incomplete cursor")
	}
	return &c, nil
}

// Where returns the SQL condition selecting rows after the cursor, with
// its parameters.
func (c *Cursor) Where() (string, []any) {
	return "(started_at < ? OR (started_at = ? AND id < ?))",
		[]any{c.StartedAt, c.StartedAt, c.LastID}
}
