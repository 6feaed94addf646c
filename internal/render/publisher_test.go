package render

import (
	"testing"

	"github.com/chatstream/visibility/internal/visindex"
)

func TestDedupeByPosition(t *testing.T) {
	updates := visindex.Updates{
		{ID: "a", Position: 0, Hidden: true},
		{ID: "b", Position: 1, Hidden: true},
		{ID: "a2", Position: 0, Hidden: false},
		{ID: "c", Position: 2, Hidden: true},
		{ID: "b2", Position: 1, Hidden: false},
	}

	deduped := dedupeByPosition(updates)
	if len(deduped) != 3 {
		t.Fatalf("got %d updates, want 3", len(deduped))
	}
	// First occurrence wins and scan order is preserved.
	for i, want := range []string{"a", "b", "c"} {
		if deduped[i].ID != want {
			t.Fatalf("deduped[%d].ID = %s, want %s", i, deduped[i].ID, want)
		}
	}
}

func TestDedupeByPositionNoDuplicates(t *testing.T) {
	updates := visindex.Updates{
		{ID: "a", Position: 0},
		{ID: "b", Position: 1},
	}
	deduped := dedupeByPosition(updates)
	if len(deduped) != 2 {
		t.Fatalf("got %d updates, want 2", len(deduped))
	}
}

func TestDedupeByPositionSmallInputs(t *testing.T) {
	if got := dedupeByPosition(nil); len(got) != 0 {
		t.Fatalf("nil input: got %d updates", len(got))
	}
	one := visindex.Updates{{ID: "a", Position: 9}}
	if got := dedupeByPosition(one); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("single input: got %+v", got)
	}
}
