package audio

import "testing"

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Push([]float32{float32(i), float32(i)})
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	got := r.Snapshot()
	want := []float32{2, 2, 3, 3, 4, 4}
	if len(got) != len(want) {
		t.Fatalf("Snapshot() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRingSnapshotCopies(t *testing.T) {
	r := NewRing(2)
	chunk := []float32{1, 2}
	r.Push(chunk)
	chunk[0] = 99
	got := r.Snapshot()
	if got[0] != 1 {
		t.Errorf("ring stored a reference instead of a copy: got %v", got[0])
	}
}

func TestRingZeroCapacity(t *testing.T) {
	r := NewRing(0)
	r.Push([]float32{1, 2, 3})
	if r.Len() != 0 {
		t.Errorf("zero-capacity ring stored %d chunks", r.Len())
	}
}
