package pool

import (
	"testing"

	"github.com/mxtasking/tasking/buffer"
	"github.com/mxtasking/tasking/config"
	"github.com/mxtasking/tasking/prefetch"
	"github.com/mxtasking/tasking/resourceptr"
	"github.com/mxtasking/tasking/task"
)

type idTask struct {
	id  int
	ann task.Annotation
}

func (t *idTask) Execute(uint16) task.Result   { return task.Done() }
func (t *idTask) Annotation() *task.Annotation { return &t.ann }
func (t *idTask) TraceID() uint64              { return 0 }

func TestPushBackLocalAndWithdraw(t *testing.T) {
	p := New(config.Single, 1, 0, 16, 16)
	p.PushBackLocal(&idTask{id: 1})
	p.PushBackLocal(&idTask{id: 2})

	buf := buffer.New(8, prefetch.NewDisabled())
	n := p.Withdraw(buf, nil)
	if n != 2 {
		t.Fatalf("Withdraw() = %d, want 2", n)
	}
}

func TestPushBackRemoteSingleBackend(t *testing.T) {
	p := New(config.Single, 1, 0, 16, 16)
	if err := p.PushBackRemote(&idTask{id: 1}, 3, 7); err != nil {
		t.Fatalf("PushBackRemote() error = %v", err)
	}

	buf := buffer.New(8, prefetch.NewDisabled())
	if n := p.Withdraw(buf, nil); n != 1 {
		t.Fatalf("Withdraw() = %d, want 1", n)
	}
}

func TestPushBackRemoteNUMALocalRouting(t *testing.T) {
	p := New(config.NUMALocal, 4, 2, 16, 16)
	if err := p.PushBackRemote(&idTask{id: 1}, 2, 0); err != nil {
		t.Fatalf("PushBackRemote() error = %v", err)
	}
	if err := p.PushBackRemote(&idTask{id: 2}, 1, 0); err != nil {
		t.Fatalf("PushBackRemote() error = %v", err)
	}

	if got := p.remotes[2].normal.Len(); got != 1 {
		t.Fatalf("shard 2 normal Len() = %d, want 1 (NUMA node 2 routes there)", got)
	}
	if got := p.remotes[1].normal.Len(); got != 1 {
		t.Fatalf("shard 1 normal Len() = %d, want 1 (NUMA node 1 routes there)", got)
	}
}

func TestWithdrawDrainsNormalBeforeLow(t *testing.T) {
	p := New(config.Single, 1, 0, 16, 16)
	p.PushBackLocal(&idTask{id: 1, ann: task.Annotation{Priority: task.Low}})
	p.PushBackLocal(&idTask{id: 2, ann: task.Annotation{Priority: task.Normal}})

	buf := buffer.New(8, prefetch.NewDisabled())
	n := p.Withdraw(buf, nil)
	if n != 1 {
		t.Fatalf("Withdraw() = %d, want 1 (only normal tier on first pass)", n)
	}
	slot, _ := buf.Next()
	if slot.Task.(*idTask).id != 2 {
		t.Fatalf("withdrawn task id = %d, want 2 (normal priority)", slot.Task.(*idTask).id)
	}
}

func TestWithdrawFallsBackToLowWhenNormalEmpty(t *testing.T) {
	p := New(config.Single, 1, 0, 16, 16)
	p.PushBackLocal(&idTask{id: 1, ann: task.Annotation{Priority: task.Low}})

	buf := buffer.New(8, prefetch.NewDisabled())
	n := p.Withdraw(buf, nil)
	if n != 1 {
		t.Fatalf("Withdraw() = %d, want 1 (low tier used since normal was empty)", n)
	}
}

func TestOccupancyPredictionRoundTrip(t *testing.T) {
	p := New(config.Single, 1, 0, 16, 16)
	p.PredictUsage(resourceptr.Excessive)
	if !p.HasExcessiveUsagePrediction() {
		t.Fatalf("HasExcessiveUsagePrediction() = false, want true")
	}
	p.Revoke(resourceptr.Excessive)
	if p.HasExcessiveUsagePrediction() {
		t.Fatalf("HasExcessiveUsagePrediction() = true after Revoke, want false")
	}
}

func TestWithdrawRespectsBufferCapacity(t *testing.T) {
	p := New(config.Single, 1, 0, 16, 16)
	for i := 0; i < 10; i++ {
		p.PushBackLocal(&idTask{id: i})
	}
	buf := buffer.New(4, prefetch.NewDisabled())
	n := p.Withdraw(buf, nil)
	if n != 4 {
		t.Fatalf("Withdraw() = %d, want 4 (clamped to buffer capacity)", n)
	}
}
