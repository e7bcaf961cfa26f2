package harness

import (
	"os"
	"testing"
)

func fileNonEmpty(t *testing.T, path string) bool {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	return info.Size() > 0
}
