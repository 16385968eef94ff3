package utils

import (
	"errors"
	"strings"
)

// ValidatePeerID validates that a peer identity is non-empty and does not
// contain path separators ("/", "\\") or "..". Peer ids end up in log lines
// and persisted recipient lists, so hostile values are rejected at the edge.
func ValidatePeerID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return errors.New("peer id is required and must be a non-empty string")
	}
	if trimmed != id {
		return errors.New("peer id must not contain leading or trailing whitespace")
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return errors.New("peer id must not contain path separators or '..'")
	}
	return nil
}
