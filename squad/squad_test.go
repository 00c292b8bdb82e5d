package squad

import (
	"sync"
	"testing"

	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/task"
)

type idTask struct {
	ann task.Annotation
	id  int
}

func (t *idTask) Execute(uint16) task.Result    { return task.Done() }
func (t *idTask) Annotation() *task.Annotation  { return &t.ann }
func (t *idTask) TraceID() uint64               { return 0 }

func TestPushLocalAndLen(t *testing.T) {
	home := resourceptr.Make(1, 0, resourceptr.Batched, 0)
	s := New(home, 8)
	s.PushLocal(&idTask{id: 1})
	s.PushLocal(&idTask{id: 2})
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestFlushMovesRemoteIntoLocal(t *testing.T) {
	home := resourceptr.Make(1, 0, resourceptr.Batched, 0)
	s := New(home, 8)
	for i := 0; i < 3; i++ {
		if err := s.PushRemote(&idTask{id: i}, uint16(i)); err != nil {
			t.Fatalf("PushRemote(%d): %v", i, err)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("Len() before flush = %d, want 0 (still in remote ring)", s.Len())
	}
	moved := s.Flush()
	if moved != 3 {
		t.Fatalf("Flush() = %d, want 3", moved)
	}
	if s.Len() != 3 {
		t.Fatalf("Len() after flush = %d, want 3", s.Len())
	}
}

func TestProducerCountTracksDistinctWorkers(t *testing.T) {
	home := resourceptr.Make(1, 0, resourceptr.Batched, 0)
	s := New(home, 8)
	_ = s.PushRemote(&idTask{id: 1}, 5)
	_ = s.PushRemote(&idTask{id: 2}, 5)
	_ = s.PushRemote(&idTask{id: 3}, 9)
	if got := s.ProducerCount(); got != 2 {
		t.Fatalf("ProducerCount() = %d, want 2", got)
	}
}

func TestDrainAllFlushesAndReturnsFIFOOrder(t *testing.T) {
	home := resourceptr.Make(1, 0, resourceptr.Batched, 0)
	s := New(home, 8)
	s.PushLocal(&idTask{id: 0})
	_ = s.PushRemote(&idTask{id: 1}, 1)
	_ = s.PushRemote(&idTask{id: 2}, 1)

	drained := s.DrainAll()
	if len(drained) != 3 {
		t.Fatalf("DrainAll() len = %d, want 3", len(drained))
	}
	for i, tk := range drained {
		if tk.(*idTask).id != i {
			t.Fatalf("drained[%d].id = %d, want %d (FIFO order)", i, tk.(*idTask).id, i)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("Len() after DrainAll = %d, want 0", s.Len())
	}
}

func TestSpawnTaskRedispatchesWithFirstElementLocal(t *testing.T) {
	home := resourceptr.Make(1, 0, resourceptr.Batched, 0)
	s := New(home, 8)
	s.PushLocal(&idTask{id: 0})
	s.PushLocal(&idTask{id: 1})
	s.PushLocal(&idTask{id: 2})

	var mu sync.Mutex
	var redispatched []int
	var forcedLocal []bool
	spawn := NewSpawnTask(s, func(tk task.Task, forceLocal bool) {
		mu.Lock()
		defer mu.Unlock()
		redispatched = append(redispatched, tk.(*idTask).id)
		forcedLocal = append(forcedLocal, forceLocal)
	})

	result := spawn.Execute(0)
	if !result.Remove {
		t.Fatalf("spawn task result = %+v, want Remove=true", result)
	}
	if len(redispatched) != 3 {
		t.Fatalf("redispatched count = %d, want 3", len(redispatched))
	}
	for i, id := range redispatched {
		if id != i {
			t.Fatalf("redispatched[%d] = %d, want %d", i, id, i)
		}
	}
	if !forcedLocal[0] {
		t.Fatalf("first redispatched element must be forced local")
	}
	for i := 1; i < len(forcedLocal); i++ {
		if forcedLocal[i] {
			t.Fatalf("redispatched[%d] should not be forced local", i)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("squad should be empty after spawn task executes, Len() = %d", s.Len())
	}
}

func TestSpawnTaskTargetsSquadHome(t *testing.T) {
	home := resourceptr.Make(42, 7, resourceptr.Batched, 0)
	s := New(home, 4)
	spawn := NewSpawnTask(s, func(task.Task, bool) {})
	dest := spawn.Annotation().Destination
	if dest.Kind != task.DestWorker || dest.WorkerID != home.WorkerID() {
		t.Fatalf("spawn task destination = %+v, want worker %d", dest, home.WorkerID())
	}
}

func TestConcurrentRemotePushesAllSurviveFlush(t *testing.T) {
	home := resourceptr.Make(1, 0, resourceptr.Batched, 0)
	s := New(home, 64)
	const producers = 8
	const perProducer = 4
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(worker uint16) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = s.PushRemote(&idTask{id: i}, worker)
			}
		}(uint16(p))
	}
	wg.Wait()

	moved := s.Flush()
	if moved != producers*perProducer {
		t.Fatalf("Flush() = %d, want %d", moved, producers*perProducer)
	}
	if s.ProducerCount() != producers {
		t.Fatalf("ProducerCount() = %d, want %d", s.ProducerCount(), producers)
	}
}
