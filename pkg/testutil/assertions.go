package testutil

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// AssertSnapshotEqual fails the test when the snapshots differ.
func AssertSnapshotEqual(t *testing.T, expected, actual model.Snapshot) {
	t.Helper()
	if expected.Equal(actual) {
		return
	}
	exp, _ := json.Marshal(expected.Clone())
	act, _ := json.Marshal(actual.Clone())
	t.Errorf("snapshot mismatch:\nexpected: %s\nactual:   %s", exp, act)
}

// AssertCardCount verifies the number of live cards.
func AssertCardCount(t *testing.T, s model.Snapshot, expected int) {
	t.Helper()
	if len(s.Cards) != expected {
		t.Errorf("expected %d cards, got %d", expected, len(s.Cards))
	}
}

// AssertNoDuplicateIDs verifies card ids are unique across live and
// archived cards.
func AssertNoDuplicateIDs(t *testing.T, s model.Snapshot) {
	t.Helper()
	seen := make(map[string]bool)
	for _, c := range s.Cards {
		if seen[c.ID] {
			t.Errorf("duplicate card ID: %s", c.ID)
		}
		seen[c.ID] = true
	}
	for _, a := range s.ArchivedCards {
		if seen[a.Card.ID] {
			t.Errorf("duplicate card ID: %s", a.Card.ID)
		}
		seen[a.Card.ID] = true
	}
}

// AssertAllValid verifies every entity passes validation.
func AssertAllValid(t *testing.T, s model.Snapshot) {
	t.Helper()
	if err := s.Validate(); err != nil {
		t.Errorf("snapshot invalid: %v", err)
	}
}

// AssertJSONEqual compares two values after JSON encoding.
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()
	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}
	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual:   %s", expectedJSON, actualJSON)
	}
}

// BoardPath returns a board.json path inside a fresh temp dir.
func BoardPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "board.json")
}

// WriteV1File writes s in the legacy layout (collections at the top level)
// and returns the exact bytes written.
func WriteV1File(t *testing.T, path string, s model.Snapshot) []byte {
	t.Helper()
	data, err := json.MarshalIndent(s.Clone(), "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal v1 document: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return data
}

// ReadFile reads path or fails the test.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}
