package task

import "testing"

type payload struct {
	annotation Annotation
	value      int
}

func TestSlabNewAllocates(t *testing.T) {
	s := NewSlab[payload]()
	p := s.New()
	if p == nil {
		t.Fatalf("New() = nil")
	}
}

func TestSlabReleaseZeroesAndRecycles(t *testing.T) {
	s := NewSlab[payload]()
	p := s.New()
	p.value = 42
	s.Release(p)

	p2 := s.New()
	if p2.value != 0 {
		t.Fatalf("recycled value = %d, want 0 (Release must zero before returning to pool)", p2.value)
	}
}

func TestSystemAllocatorAlwaysFresh(t *testing.T) {
	var a SystemAllocator[payload]
	p1 := a.New()
	p1.value = 7
	a.Release(p1)

	p2 := a.New()
	if p2.value != 0 {
		t.Fatalf("SystemAllocator.New() returned non-zero value %d", p2.value)
	}
	if p1 == p2 {
		t.Fatalf("SystemAllocator reused the same pointer, expected a fresh allocation")
	}
}
