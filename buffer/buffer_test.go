package buffer

import (
	"testing"

	"github.com/mxtasking/tasking/prefetch"
	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/task"
)

type fixedTask struct {
	ann task.Annotation
}

func (f *fixedTask) Execute(uint16) task.Result   { return task.Done() }
func (f *fixedTask) Annotation() *task.Annotation { return &f.ann }
func (f *fixedTask) TraceID() uint64              { return 0 }

type fakeSource struct{ tasks []task.Task }

func (s *fakeSource) Drain(n int) []task.Task {
	if n > len(s.tasks) {
		n = len(s.tasks)
	}
	out := s.tasks[:n]
	s.tasks = s.tasks[n:]
	return out
}

func TestBufferFillAndNext(t *testing.T) {
	b := New(8, prefetch.NewDisabled())
	src := &fakeSource{tasks: []task.Task{&fixedTask{}, &fixedTask{}, &fixedTask{}}}

	n := b.Fill(src, 10, nil)
	if n != 3 {
		t.Fatalf("Fill() = %d, want 3", n)
	}
	if b.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", b.Size())
	}
	if b.AvailableSlots() != 5 {
		t.Fatalf("AvailableSlots() = %d, want 5", b.AvailableSlots())
	}

	slot, ok := b.Next()
	if !ok || slot.Task == nil {
		t.Fatalf("Next() = (%v, %v), want a task and ok=true", slot, ok)
	}
	if b.Size() != 2 {
		t.Fatalf("Size() after Next() = %d, want 2", b.Size())
	}
}

func TestBufferFillClampsToAvailable(t *testing.T) {
	b := New(4, prefetch.NewDisabled())
	src := &fakeSource{tasks: []task.Task{&fixedTask{}, &fixedTask{}, &fixedTask{}, &fixedTask{}, &fixedTask{}}}

	n := b.Fill(src, 10, nil)
	if n != 4 {
		t.Fatalf("Fill() = %d, want 4 (clamped to capacity)", n)
	}
	if b.AvailableSlots() != 0 {
		t.Fatalf("AvailableSlots() = %d, want 0", b.AvailableSlots())
	}
}

func TestBufferFillProgramsFixedPrefetch(t *testing.T) {
	b := New(8, prefetch.NewFixed(2))
	reg := resourceptr.NewRegistry()
	idx := reg.Reserve()
	ptr := resourceptr.Make(idx, 0, resourceptr.None, 0)

	withHint := &fixedTask{ann: task.Annotation{
		Prefetch: &task.PrefetchHint{Resource: ptr, Descriptor: prefetch.MakeSize(prefetch.SizeTemporal, 64)},
	}}
	src := &fakeSource{tasks: []task.Task{&fixedTask{}, &fixedTask{}, withHint}}

	b.Fill(src, 10, nil)

	// withHint landed at ring index 2; its prefetch should be programmed
	// 2 slots earlier, at index 0.
	if b.slots[0].Prefetch.IsZero() {
		t.Fatalf("slot 0 has no programmed prefetch, want the hint from slot 2's task")
	}
	if b.slots[2].Task != task.Task(withHint) {
		t.Fatalf("slot 2 does not hold the expected task")
	}
}

func TestBufferEmptyNext(t *testing.T) {
	b := New(4, prefetch.NewDisabled())
	if _, ok := b.Next(); ok {
		t.Fatalf("Next() on empty buffer ok = true, want false")
	}
}

func TestBufferRefillThreshold(t *testing.T) {
	automatic := New(8, prefetch.NewAutomatic(400))
	if got := automatic.RefillThreshold(); got != prefetch.HistorySize {
		t.Fatalf("RefillThreshold() = %d, want %d", got, prefetch.HistorySize)
	}

	fixed := New(8, prefetch.NewFixed(3))
	if got := fixed.RefillThreshold(); got != 3 {
		t.Fatalf("RefillThreshold() = %d, want 3", got)
	}
}
