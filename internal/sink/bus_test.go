package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBusThread_DispatchesWakeWhenDeadlineArrives(t *testing.T) {
	b := NewBusThread()
	q := NewQueue(4)
	b.Register("primary", q)
	b.ReportNextWake("primary", time.Millisecond)

	done := make(chan struct{})
	go func() {
		b.Run()
		close(done)
	}()

	select {
	case msg := <-q.C():
		assert.Equal(t, KindWake, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("bus thread never dispatched a wake")
	}

	b.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bus thread did not exit after Stop")
	}
}

func TestBusThread_StopPostsQuitToEveryBranch(t *testing.T) {
	b := NewBusThread()
	primaryQ := NewQueue(4)
	offloadQ := NewQueue(4)
	b.Register("primary", primaryQ)
	b.Register("offload", offloadQ)

	go b.Run()
	b.Stop()

	assertQuit(t, primaryQ)
	assertQuit(t, offloadQ)
}

func assertQuit(t *testing.T, q *Queue) {
	t.Helper()
	select {
	case msg := <-q.C():
		assert.Equal(t, KindQuit, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("branch queue never received KindQuit")
	}
}
