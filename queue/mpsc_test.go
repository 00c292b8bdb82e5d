package queue

import (
	"sync"
	"testing"

	"github.com/mxtasking/tasking/task"
)

func TestMPSCRoundsCapacityToPowerOfTwo(t *testing.T) {
	q := NewMPSC(5)
	if q.Capacity() != 8 {
		t.Fatalf("Capacity() = %d, want 8", q.Capacity())
	}
}

func TestMPSCPushPopSingleProducer(t *testing.T) {
	q := NewMPSC(4)
	for i := 0; i < 4; i++ {
		if err := q.Push(&fakeTask{id: i}); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}
	if err := q.Push(&fakeTask{id: 99}); err != ErrRingFull {
		t.Fatalf("Push on full ring error = %v, want ErrRingFull", err)
	}

	for i := 0; i < 4; i++ {
		got, ok := q.Pop()
		if !ok || got.(*fakeTask).id != i {
			t.Fatalf("Pop() = (%v, %v), want (%d, true)", got, ok, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("Pop() on empty ring ok = true, want false")
	}
}

func TestMPSCPopFrontBatches(t *testing.T) {
	q := NewMPSC(8)
	for i := 0; i < 5; i++ {
		_ = q.Push(&fakeTask{id: i})
	}
	out := q.PopFront(3)
	if len(out) != 3 {
		t.Fatalf("PopFront(3) returned %d tasks, want 3", len(out))
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}

func TestMPSCConcurrentProducersPreserveAllPushes(t *testing.T) {
	const producers = 8
	const perProducer = 50
	q := NewMPSC(1024)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for q.Push(&fakeTask{id: p*perProducer + i}) == ErrRingFull {
				}
			}
		}(p)
	}
	wg.Wait()

	seen := map[int]bool{}
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		seen[v.(*fakeTask).id] = true
	}
	if len(seen) != producers*perProducer {
		t.Fatalf("observed %d distinct tasks, want %d", len(seen), producers*perProducer)
	}
}

func TestMPSCSingleProducerFIFO(t *testing.T) {
	q := NewMPSC(16)
	for i := 0; i < 10; i++ {
		_ = q.Push(&fakeTask{id: i})
	}
	for i := 0; i < 10; i++ {
		v, ok := q.Pop()
		if !ok || v.(*fakeTask).id != i {
			t.Fatalf("Pop() = (%v, %v), want (%d, true): FIFO broken for single producer", v, ok, i)
		}
	}
}

var _ Backing = (*SPSC)(nil)
