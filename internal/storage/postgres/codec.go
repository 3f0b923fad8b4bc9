package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// noUpdateError is the column value meaning the last refresh succeeded.
const noUpdateError = "false"

func encodeHistory(h map[string]int) (string, error) {
	if h == nil {
		h = map[string]int{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(b), nil
}

// decodeHistory skips unreadable documents; a corrupt column must not block refreshes.
func decodeHistory(raw string) map[string]int {
	out := map[string]int{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	if out == nil {
		out = map[string]int{}
	}
	return out
}

func encodeResults(items []tracker.ResultItem) (string, error) {
	if items == nil {
		items = []tracker.ResultItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode last result: %w", err)
	}
	return string(b), nil
}

func decodeResults(raw string) []tracker.ResultItem {
	var out []tracker.ResultItem
	if strings.TrimSpace(raw) == "" {
		return []tracker.ResultItem{}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []tracker.ResultItem{}
	}
	return out
}

func encodeUpdateError(e *tracker.UpdateError) (string, error) {
	if e == nil {
		return noUpdateError, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode update error: %w", err)
	}
	return string(b), nil
}

func decodeUpdateError(raw string) *tracker.UpdateError {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == noUpdateError {
		return nil
	}
	var e tracker.UpdateError
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return &tracker.UpdateError{Error: raw}
	}
	return &e
}
