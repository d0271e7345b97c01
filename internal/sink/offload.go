package sink

import (
	"time"

	"github.com/ohaudio/audiofx/internal/hal"
	"github.com/ohaudio/audiofx/internal/ratelog"
)

// targetCacheForeground/targetCacheBackground are the offload resampler's
// feed-ahead budget: shallow while the session is foreground-active (to
// keep pause/resume latency low), deep while backgrounded (to let the CPU
// sleep longer between wakes) (spec.md §4.6).
const (
	targetCacheForeground = 200 * time.Millisecond
	targetCacheBackground = 7 * time.Second

	// maxOffloadBlock bounds a single memchunk regardless of how much cache
	// headroom is available.
	maxOffloadBlock = 4096

	presentationResyncInterval = 300 * time.Millisecond
)

// Resampler is the offload branch's feed source: Feed is asked for up to
// maxSamples of PCM and returns what it actually produced (which may be
// less, including zero, if the session has nothing queued).
type Resampler interface {
	Feed(maxSamples int) []float32
}

// OffloadTimer is the offload timer thread (spec.md §4.6): an event-driven
// NEED_DATA/WAIT_CONSUME/FLUSHING state machine rather than a fixed-period
// ticker, because offload HDI write completion is itself the clock.
type OffloadTimer struct {
	adapter    hal.Adapter
	resampler  Resampler
	logger     *ratelog.Logger
	sampleRate uint32
	channels   uint32

	state OffloadFlag

	foreground bool
	lockHeld   bool

	cachedDuration   time.Duration
	lastPresentation time.Time

	now func() time.Time
}

// NewOffloadTimer constructs an OffloadTimer driving adapter.
func NewOffloadTimer(adapter hal.Adapter, resampler Resampler, sampleRate, channels uint32, logger *ratelog.Logger) *OffloadTimer {
	return &OffloadTimer{
		adapter: adapter, resampler: resampler, logger: logger,
		sampleRate: sampleRate, channels: channels, foreground: true,
		now: time.Now,
	}
}

// SetForeground toggles the target-cache depth (spec.md §4.6).
func (o *OffloadTimer) SetForeground(fg bool) {
	o.foreground = fg
}

func (o *OffloadTimer) targetCache() time.Duration {
	if o.foreground {
		return targetCacheForeground
	}
	return targetCacheBackground
}

// framesFor converts a duration to a sample-frame count at o.sampleRate.
func (o *OffloadTimer) framesFor(d time.Duration) int {
	if o.sampleRate == 0 {
		return 0
	}
	return int(d * time.Duration(o.sampleRate) / time.Second)
}

// OnWake drives one step of the state machine. In NEED_DATA it feeds as
// much as the target cache allows and attempts a write; WAIT_CONSUME and
// FLUSHING ignore wakes until a callback moves the state machine along.
func (o *OffloadTimer) OnWake() {
	if o.state.Load() != NeedData {
		return
	}
	o.resyncPresentation()

	headroom := o.targetCache() - o.cachedDuration
	if headroom <= 0 {
		return
	}
	maxFrames := o.framesFor(headroom)
	if maxFrames > maxOffloadBlock {
		maxFrames = maxOffloadBlock
	}
	if maxFrames <= 0 {
		return
	}

	samples := o.resampler.Feed(maxFrames * int(o.channels))
	if len(samples) == 0 {
		return
	}

	if !o.lockHeld {
		if lock, ok := o.adapter.(hal.RunningLock); ok {
			lock.LockRunning()
		}
		o.lockHeld = true
	}

	written, err := o.adapter.RenderFrame(EncodePCM(samples))
	switch {
	case err != nil:
		if o.logger != nil {
			o.logger.Error("offload", "write_error", "offload hdi write failed", "err", err)
		}
	case written == 0:
		// HDI reports full without an error: would-block.
		o.state.CompareAndSwap(NeedData, WaitConsume)
	default:
		framesWritten := written / 4 / int(max32(o.channels, 1))
		o.cachedDuration += time.Duration(framesWritten) * time.Second / time.Duration(max32(o.sampleRate, 1))
		if o.logger != nil {
			o.logger.Trace("offload render tick", "frames", framesWritten, "cached", o.cachedDuration)
		}
	}
}

// OnCallback handles an asynchronous HAL callback. Only
// NonblockWriteCompleted drives the state machine (spec.md §4.7); it
// transitions WAIT_CONSUME back to NEED_DATA so the next wake resumes
// feeding. The caller is responsible for posting a wake message to this
// timer's queue after this returns true.
func (o *OffloadTimer) OnCallback(cb hal.CallbackType) (shouldWake bool) {
	if cb != hal.NonblockWriteCompleted {
		return false
	}
	return o.state.CompareAndSwap(WaitConsume, NeedData)
}

// resyncPresentation refreshes cachedDuration from the HDI's own notion of
// how much it has actually consumed, at most every 300ms (spec.md §4.6).
func (o *OffloadTimer) resyncPresentation() {
	now := o.now()
	if !o.lastPresentation.IsZero() && now.Sub(o.lastPresentation) < presentationResyncInterval {
		return
	}
	o.lastPresentation = now
	_, pos, err := o.adapter.GetPresentationPosition()
	if err != nil {
		return
	}
	o.cachedDuration = pos
}

// Suspend releases the running lock (if held); called when the sink goes
// idle or the session pauses.
func (o *OffloadTimer) Suspend() {
	if !o.lockHeld {
		return
	}
	if lock, ok := o.adapter.(hal.RunningLock); ok {
		lock.UnlockRunning()
	}
	o.lockHeld = false
}

// Flush transitions to FLUSHING, clears the cache estimate, and calls the
// adapter's Flush.
func (o *OffloadTimer) Flush() error {
	o.state.Store(Flushing)
	defer o.state.Store(NeedData)
	o.cachedDuration = 0
	return o.adapter.Flush()
}

// offloadPoll is how often the bus should re-check the offload branch even
// though it is fundamentally event-driven (HDI write-completion callbacks
// are what really drive it forward); this just bounds how long a stalled
// NEED_DATA can go unnoticed.
const offloadPoll = 10 * time.Millisecond

// Run is the offload timer thread body: it steps the state machine on
// every KindWake and exits after observing KindQuit, releasing the
// running lock and draining its queue first.
func (o *OffloadTimer) Run(wakeQ *Queue, nextWake func(time.Duration)) {
	for msg := range wakeQ.C() {
		switch msg.Kind {
		case KindQuit:
			wakeQ.Drain()
			o.Suspend()
			return
		case KindWake:
			o.OnWake()
			if nextWake != nil {
				nextWake(offloadPoll)
			}
		}
	}
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
