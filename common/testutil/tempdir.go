package testutil

import (
	"os"
	"testing"
)

// TempDir creates a data directory for a test Engine or its components,
// removed automatically at test cleanup.
func TempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "triekv-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}
