// Package sink implements the Cooperative multi-sink rendering loop (C6):
// a bus thread computing a shared wake budget across a primary timer
// thread, an event-driven offload timer thread, and an optional
// multichannel timer thread, each with its own HDI writer thread(s). Queue
// plumbing is grounded on src/dlq.go's "linked queue plus wake-up channel"
// pattern, reimplemented as buffered Go channels rather than a C linked
// list guarded by a mutex and condvar.
package sink

import (
	"sync"
	"time"

	"github.com/ohaudio/audiofx/internal/hal"
	"github.com/ohaudio/audiofx/internal/mixer"
	"github.com/ohaudio/audiofx/internal/ratelog"
)

// Config wires one physical sink instance's branches. Multichannel and
// offload are optional; a nil adapter disables that branch.
type Config struct {
	PrimaryAdapter  hal.Adapter
	PrimaryMixer    *mixer.Mixer
	PrimaryInputs   InputProvider
	SampleRate      uint32
	FrameLen        uint32

	MultichannelAdapter hal.Adapter
	MultichannelMixer   *mixer.Mixer
	MultichannelInputs  InputProvider

	OffloadAdapter   hal.Adapter
	OffloadResampler Resampler
	OffloadChannels  uint32

	Logger *ratelog.Logger
}

// Sink owns every thread class for one physical sink instance (spec.md
// §4.6/§5) and the HAL adapters they drive. Construct with New, then Start
// and Stop exactly once.
type Sink struct {
	bus *BusThread

	primaryTimer   *PrimaryTimer
	primaryWakeQ   *Queue
	primaryWriterQ *Queue
	primaryWriter  *Writer
	primaryAdapter hal.Adapter

	multichannelTimer   *PrimaryTimer
	multichannelWakeQ   *Queue
	multichannelWriterQ *Queue
	multichannelWriter  *Writer
	multichannelAdapter hal.Adapter
	hasMultichannel     bool

	offloadTimer   *OffloadTimer
	offloadWakeQ   *Queue
	offloadAdapter hal.Adapter
	hasOffload     bool

	wg sync.WaitGroup
}

// New builds a Sink from cfg. It does not start any threads.
func New(cfg Config) *Sink {
	s := &Sink{
		bus:            NewBusThread(),
		primaryWakeQ:   NewQueue(4),
		primaryWriterQ: NewQueue(8),
		primaryAdapter: cfg.PrimaryAdapter,
	}
	s.primaryTimer = NewPrimaryTimer(cfg.PrimaryMixer, cfg.PrimaryAdapter, s.primaryWriterQ, cfg.PrimaryInputs, cfg.SampleRate, cfg.FrameLen, cfg.Logger)
	s.primaryWriter = NewWriter("primary", cfg.PrimaryAdapter, s.primaryWriterQ, cfg.Logger)
	s.bus.Register("primary", s.primaryWakeQ)

	if cfg.MultichannelAdapter != nil {
		s.hasMultichannel = true
		s.multichannelAdapter = cfg.MultichannelAdapter
		s.multichannelWakeQ = NewQueue(4)
		s.multichannelWriterQ = NewQueue(8)
		s.multichannelTimer = NewPrimaryTimer(cfg.MultichannelMixer, cfg.MultichannelAdapter, s.multichannelWriterQ, cfg.MultichannelInputs, cfg.SampleRate, cfg.FrameLen, cfg.Logger)
		s.multichannelWriter = NewWriter("multichannel", cfg.MultichannelAdapter, s.multichannelWriterQ, cfg.Logger)
		s.bus.Register("multichannel", s.multichannelWakeQ)
	}

	if cfg.OffloadAdapter != nil {
		s.hasOffload = true
		s.offloadAdapter = cfg.OffloadAdapter
		s.offloadWakeQ = NewQueue(4)
		s.offloadTimer = NewOffloadTimer(cfg.OffloadAdapter, cfg.OffloadResampler, cfg.SampleRate, cfg.OffloadChannels, cfg.Logger)
		s.offloadAdapter.RegisterCallback(func(cb hal.CallbackType) {
			if s.offloadTimer.OnCallback(cb) {
				s.offloadWakeQ.Post(Message{Kind: KindWake})
			}
		})
		s.bus.Register("offload", s.offloadWakeQ)
	}

	return s
}

// Start launches every thread class. Threads run until Stop is called.
func (s *Sink) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.bus.Run()
	}()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.primaryTimer.Run(s.primaryWakeQ,
			func() { s.primaryWriterQ.Post(Message{Kind: KindQuit}) },
			func(next time.Duration) { s.bus.ReportNextWake("primary", next) })
	}()
	go func() {
		defer s.wg.Done()
		s.primaryWriter.Run()
	}()

	if s.hasMultichannel {
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			s.multichannelTimer.Run(s.multichannelWakeQ,
				func() { s.multichannelWriterQ.Post(Message{Kind: KindQuit}) },
				func(next time.Duration) { s.bus.ReportNextWake("multichannel", next) })
		}()
		go func() {
			defer s.wg.Done()
			s.multichannelWriter.Run()
		}()
	}

	if s.hasOffload {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.offloadTimer.Run(s.offloadWakeQ, func(next time.Duration) { s.bus.ReportNextWake("offload", next) })
		}()
	}
}

// Stop tears every thread down in the order spec.md §5 requires: signal
// the bus (which signals every timer), wait for timers to signal their
// writers and exit, wait for writers to exit, then release the HAL
// adapters. Queues need no explicit free in Go; they are dropped with the
// Sink once every goroutine referencing them has returned.
func (s *Sink) Stop() {
	s.bus.Stop()
	s.wg.Wait()

	_ = s.primaryAdapter.DeInit()
	if s.hasMultichannel {
		_ = s.multichannelAdapter.DeInit()
	}
	if s.hasOffload {
		_ = s.offloadAdapter.DeInit()
	}
}

// PrimaryTimestamp reports the cumulative duration of audio the primary
// branch has dispatched so far.
func (s *Sink) PrimaryTimestamp() time.Duration {
	return s.primaryTimer.Timestamp()
}

// PrimaryMixer returns the primary branch's Scene Mixer, for subscribing an
// inner-capture consumer via its RegisterInnerCapture.
func (s *Sink) PrimaryMixer() *mixer.Mixer {
	return s.primaryTimer.mixer
}

// MultichannelMixer returns the multichannel branch's Scene Mixer, or nil
// if the branch wasn't configured.
func (s *Sink) MultichannelMixer() *mixer.Mixer {
	if !s.hasMultichannel {
		return nil
	}
	return s.multichannelTimer.mixer
}
