package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohaudio/audiofx/internal/hal"
)

type fakeResampler struct {
	feedCalls []int
	produce   []float32
}

func (r *fakeResampler) Feed(maxSamples int) []float32 {
	r.feedCalls = append(r.feedCalls, maxSamples)
	if len(r.produce) == 0 {
		return nil
	}
	return r.produce
}

func TestOffloadTimer_OnWakeFeedsAndWritesWhileNeedData(t *testing.T) {
	adapter := newFakeLockAdapter()
	resampler := &fakeResampler{produce: []float32{0.1, 0.1}}
	ot := NewOffloadTimer(adapter, resampler, 48000, 2, nil)

	ot.OnWake()

	assert.Equal(t, 1, adapter.renderCount())
	assert.Equal(t, 1, adapter.locks, "running lock acquired on first write")
	require.NotEmpty(t, resampler.feedCalls)
}

func TestOffloadTimer_WouldBlockTransitionsToWaitConsume(t *testing.T) {
	adapter := newFakeLockAdapter()
	adapter.renderWritten = 0
	resampler := &fakeResampler{produce: []float32{0.1, 0.1}}
	ot := NewOffloadTimer(adapter, resampler, 48000, 2, nil)

	ot.OnWake()

	assert.Equal(t, WaitConsume, ot.state.Load())
}

func TestOffloadTimer_OnWakeIgnoredOutsideNeedData(t *testing.T) {
	adapter := newFakeLockAdapter()
	resampler := &fakeResampler{produce: []float32{0.1, 0.1}}
	ot := NewOffloadTimer(adapter, resampler, 48000, 2, nil)
	ot.state.Store(WaitConsume)

	ot.OnWake()

	assert.Equal(t, 0, adapter.renderCount())
}

func TestOffloadTimer_NonblockWriteCompletedReturnsToNeedData(t *testing.T) {
	adapter := newFakeLockAdapter()
	ot := NewOffloadTimer(adapter, &fakeResampler{}, 48000, 2, nil)
	ot.state.Store(WaitConsume)

	shouldWake := ot.OnCallback(hal.NonblockWriteCompleted)

	assert.True(t, shouldWake)
	assert.Equal(t, NeedData, ot.state.Load())
}

func TestOffloadTimer_OtherCallbackTypesDoNotDriveStateMachine(t *testing.T) {
	adapter := newFakeLockAdapter()
	ot := NewOffloadTimer(adapter, &fakeResampler{}, 48000, 2, nil)
	ot.state.Store(WaitConsume)

	shouldWake := ot.OnCallback(hal.DrainCompleted)

	assert.False(t, shouldWake)
	assert.Equal(t, WaitConsume, ot.state.Load())
}

func TestOffloadTimer_SuspendReleasesLockOnlyIfHeld(t *testing.T) {
	adapter := newFakeLockAdapter()
	ot := NewOffloadTimer(adapter, &fakeResampler{produce: []float32{0.1, 0.1}}, 48000, 2, nil)

	ot.Suspend() // not held yet
	assert.Equal(t, 0, adapter.unlocks)

	ot.OnWake() // acquires
	ot.Suspend()
	assert.Equal(t, 1, adapter.unlocks)
}

func TestOffloadTimer_FlushResetsCacheAndReturnsToNeedData(t *testing.T) {
	adapter := newFakeLockAdapter()
	ot := NewOffloadTimer(adapter, &fakeResampler{}, 48000, 2, nil)
	ot.cachedDuration = 5 * time.Second

	err := ot.Flush()

	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ot.cachedDuration)
	assert.Equal(t, NeedData, ot.state.Load())
	assert.Equal(t, 1, adapter.flushed)
}

func TestOffloadTimer_RunStepsOnWakeAndExitsOnQuit(t *testing.T) {
	adapter := newFakeLockAdapter()
	resampler := &fakeResampler{produce: []float32{0.1, 0.1}}
	ot := NewOffloadTimer(adapter, resampler, 48000, 2, nil)
	wakeQ := NewQueue(4)

	done := make(chan struct{})
	go func() {
		ot.Run(wakeQ, func(time.Duration) {})
		close(done)
	}()

	wakeQ.Post(Message{Kind: KindWake})
	wakeQ.Post(Message{Kind: KindQuit})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OffloadTimer.Run did not exit after KindQuit")
	}
	assert.Equal(t, 1, adapter.renderCount())
}
