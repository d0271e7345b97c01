package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimaryFlag_TryDispatchExcludesConcurrentDispatch(t *testing.T) {
	var f PrimaryFlag
	assert.True(t, f.TryDispatch())
	assert.False(t, f.TryDispatch(), "second dispatch must be rejected until Release")
	f.Release()
	assert.True(t, f.TryDispatch(), "dispatch allowed again after Release")
}

func TestOffloadFlag_CompareAndSwapOnlyFromExpectedState(t *testing.T) {
	var f OffloadFlag
	f.Store(NeedData)

	assert.False(t, f.CompareAndSwap(WaitConsume, NeedData), "no transition when not in WaitConsume")
	assert.Equal(t, NeedData, f.Load())

	assert.True(t, f.CompareAndSwap(NeedData, WaitConsume))
	assert.Equal(t, WaitConsume, f.Load())
}

func TestOffloadState_String(t *testing.T) {
	assert.Equal(t, "NEED_DATA", NeedData.String())
	assert.Equal(t, "WAIT_CONSUME", WaitConsume.String())
	assert.Equal(t, "FLUSHING", Flushing.String())
}
