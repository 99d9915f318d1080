package uuid

import (
	"testing"

	googleuuid "github.com/google/uuid"
)

func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if _, err := googleuuid.Parse(id); err != nil {
			t.Fatalf("New returned an unparseable ID %q: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("New returned duplicate ID %q", id)
		}
		seen[id] = true
	}
}
