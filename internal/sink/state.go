package sink

import "sync/atomic"

// PrimaryFlag is the producer/consumer handshake atomic the primary branch
// uses to avoid double-dispatching a tick ("dflag", spec.md §5).
type PrimaryFlag struct {
	v atomic.Int32
}

const (
	primaryIdle int32 = iota
	primaryDispatched
)

// TryDispatch flips the flag from idle to dispatched, reporting whether it
// won the race (false means a dispatch is already outstanding).
func (f *PrimaryFlag) TryDispatch() bool {
	return f.v.CompareAndSwap(primaryIdle, primaryDispatched)
}

// Release flips the flag back to idle. PrimaryTimer.Tick calls it once the
// tick has been posted to the writer queue, not when the writer has
// consumed it.
func (f *PrimaryFlag) Release() {
	f.v.Store(primaryIdle)
}

// OffloadState is the offload branch's three-state machine ("hdistate",
// spec.md §4.6): NEED_DATA / WAIT_CONSUME / FLUSHING.
type OffloadState int32

const (
	NeedData OffloadState = iota
	WaitConsume
	Flushing
)

func (s OffloadState) String() string {
	switch s {
	case NeedData:
		return "NEED_DATA"
	case WaitConsume:
		return "WAIT_CONSUME"
	case Flushing:
		return "FLUSHING"
	default:
		return "UNKNOWN"
	}
}

// OffloadFlag wraps the atomic storage for OffloadState with release/
// acquire semantics on every transition (spec.md §5).
type OffloadFlag struct {
	v atomic.Int32
}

func (f *OffloadFlag) Load() OffloadState {
	return OffloadState(f.v.Load())
}

func (f *OffloadFlag) Store(s OffloadState) {
	f.v.Store(int32(s))
}

// CompareAndSwap transitions from `from` to `to`, reporting success.
func (f *OffloadFlag) CompareAndSwap(from, to OffloadState) bool {
	return f.v.CompareAndSwap(int32(from), int32(to))
}
