package rfcomm

import (
	"testing"
	"time"
)

func TestSerialDispatcherRunsInOrder(t *testing.T) {
	d := NewSerialDispatcher()
	defer d.Close()

	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		d.Post(func() { got = append(got, i) })
	}
	d.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never drained")
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran out of order (got %d)", i, v)
		}
	}
}

func TestSerialDispatcherTasksCanPost(t *testing.T) {
	d := NewSerialDispatcher()
	defer d.Close()

	done := make(chan struct{})
	d.Post(func() {
		d.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestSerialDispatcherDropsAfterClose(t *testing.T) {
	d := NewSerialDispatcher()

	ran := make(chan struct{})
	d.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("pre-close task never ran")
	}

	d.Close()
	d.Post(func() { t.Error("task posted after Close must not run") })
	time.Sleep(50 * time.Millisecond)
}
