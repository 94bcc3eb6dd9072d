package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mosaicnetworks/murmur/src/common"
)

func TestInsertIdempotent(t *testing.T) {
	s := NewInmemStore()

	if !s.Insert(common.IntValue(5)) {
		t.Fatal("first Insert(5) should report a new value")
	}
	if s.Insert(common.IntValue(5)) {
		t.Fatal("second Insert(5) should not report a new value")
	}
	if l := s.Len(); l != 1 {
		t.Fatalf("Len should be 1, not %d", l)
	}
	if !s.Contains(common.IntValue(5)) {
		t.Fatal("store should contain 5")
	}
}

func TestMergeReturnsNewlyAdded(t *testing.T) {
	s := NewInmemStore()
	s.Insert(common.IntValue(1))

	added := s.Merge([]common.Value{
		common.IntValue(1),
		common.IntValue(2),
		common.IntValue(3),
		common.IntValue(2),
	})

	want := []common.Value{common.IntValue(2), common.IntValue(3)}
	if diff := cmp.Diff(want, added); diff != "" {
		t.Fatalf("Merge mismatch (-want +got):\n%s", diff)
	}

	if again := s.Merge(want); len(again) != 0 {
		t.Fatalf("re-merging known values should add nothing, got %v", again)
	}
}

func TestSnapshotMonotonic(t *testing.T) {
	s := NewInmemStore()

	prev := 0
	for i := 0; i < 50; i++ {
		s.Merge([]common.Value{common.IntValue(i % 20), common.IntValue(i)})
		snap := s.Snapshot()
		if len(snap) < prev {
			t.Fatalf("snapshot shrank from %d to %d", prev, len(snap))
		}
		prev = len(snap)
	}

	snap := s.Snapshot()
	if l := len(snap); l != 50 {
		t.Fatalf("snapshot should contain 50 values, not %d", l)
	}
	for i, v := range snap {
		if v != common.IntValue(i) {
			t.Fatalf("snapshot[%d] should be %d, not %s", i, i, v)
		}
	}

	// mutating the snapshot does not touch the store
	snap[0] = common.IntValue(1000)
	if s.Contains(common.IntValue(1000)) {
		t.Fatal("Snapshot returned a reference, not a copy")
	}
}
