package sink

import (
	"time"

	"github.com/ohaudio/audiofx/internal/hal"
	"github.com/ohaudio/audiofx/internal/mixer"
	"github.com/ohaudio/audiofx/internal/ratelog"
)

// InputProvider returns the sink inputs live for the upcoming render tick.
type InputProvider func() []mixer.SinkInput

// PrimaryTimer is the primary timer thread (spec.md §4.6): on each wake it
// renders one tick via the Scene Mixer, starts the HDI if needed, posts the
// buffer to the writer queue, and reports back the duration until it next
// wants to be woken so the bus thread can fold that into the shared wake
// budget.
type PrimaryTimer struct {
	mixer      *mixer.Mixer
	adapter    hal.Adapter
	writerQ    *Queue
	inputs     InputProvider
	sampleRate uint32
	frameLen   uint32
	logger     *ratelog.Logger

	flag      PrimaryFlag
	timestamp time.Duration
	running   bool

	now func() time.Time
}

// NewPrimaryTimer constructs a PrimaryTimer driving adapter with frames of
// frameLen samples at sampleRate.
func NewPrimaryTimer(m *mixer.Mixer, adapter hal.Adapter, writerQ *Queue, inputs InputProvider, sampleRate, frameLen uint32, logger *ratelog.Logger) *PrimaryTimer {
	return &PrimaryTimer{
		mixer: m, adapter: adapter, writerQ: writerQ, inputs: inputs,
		sampleRate: sampleRate, frameLen: frameLen, logger: logger,
		now: time.Now,
	}
}

// blockDuration is the wall-clock duration one frameLen tick covers.
func (p *PrimaryTimer) blockDuration() time.Duration {
	if p.sampleRate == 0 {
		return 0
	}
	return time.Duration(p.frameLen) * time.Second / time.Duration(p.sampleRate)
}

// Tick renders and dispatches one frame, returning the duration until the
// next wake should occur. Per spec.md §4.6 it is
// min(block_duration-elapsed, last_write_time); here approximated as the
// block duration less however long this tick itself took, floored at zero.
func (p *PrimaryTimer) Tick() time.Duration {
	start := p.now()

	if !p.running {
		if err := p.adapter.Start(); err != nil {
			if p.logger != nil {
				p.logger.Error("primary", "start_error", "primary hdi start failed", "err", err)
			}
			return p.blockDuration()
		}
		p.running = true
	}

	if !p.flag.TryDispatch() {
		return p.blockDuration()
	}
	defer p.flag.Release()

	samples := p.mixer.RenderTick(p.inputs(), p.frameLen)
	p.writerQ.Post(Message{Kind: KindRender, Render: EncodePCM(samples)})
	p.timestamp += p.blockDuration()
	if p.logger != nil {
		p.logger.Trace("primary render tick", "samples", len(samples), "timestamp", p.timestamp)
	}

	elapsed := p.now().Sub(start)
	remaining := p.blockDuration() - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Timestamp reports the cumulative duration of audio dispatched so far.
func (p *PrimaryTimer) Timestamp() time.Duration {
	return p.timestamp
}

// Run is the thread body: it services wakeQ until KindQuit, calling Tick on
// every KindWake and posting its own next-wake request back via
// nextWake (nil is fine if the caller doesn't track it, e.g. in tests).
func (p *PrimaryTimer) Run(wakeQ *Queue, writerQuit func(), nextWake func(time.Duration)) {
	for msg := range wakeQ.C() {
		switch msg.Kind {
		case KindQuit:
			wakeQ.Drain()
			if writerQuit != nil {
				writerQuit()
			}
			return
		case KindWake:
			next := p.Tick()
			if nextWake != nil {
				nextWake(next)
			}
		}
	}
}
