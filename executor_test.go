package diskcache

import (
	"sync/atomic"
	"testing"
)

func TestSerialExecutorPreservesOrder(t *testing.T) {
	t.Parallel()

	exec := NewSerialExecutor()
	defer exec.Close()

	var got []int
	done := make(chan struct{})
	for i := range 100 {
		exec.Execute(func() {
			got = append(got, i)
			if i == 99 {
				close(done)
			}
		})
	}
	<-done

	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran out of order: got %d", i, v)
		}
	}
}

func TestSerialExecutorCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	exec := NewSerialExecutor()

	var ran atomic.Int64
	for range 50 {
		exec.Execute(func() {
			ran.Add(1)
		})
	}
	exec.Close()

	if n := ran.Load(); n != 50 {
		t.Fatalf("Close() should drain the queue: ran %d of 50 tasks", n)
	}
}

func TestSerialExecutorDropsTasksAfterClose(t *testing.T) {
	t.Parallel()

	exec := NewSerialExecutor()
	exec.Close()

	exec.Execute(func() {
		t.Error("task submitted after Close must not run")
	})
	exec.Close()
}
