package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/mixer"
)

func TestSink_StartStopTearsDownCleanlyAndReleasesAdapters(t *testing.T) {
	primaryAdapter := newFakeAdapter()
	m := mixer.New(passthroughChains{}, nil, 2, catalog.LayoutStereo)

	s := New(Config{
		PrimaryAdapter: primaryAdapter,
		PrimaryMixer:   m,
		PrimaryInputs:  func() []mixer.SinkInput { return nil },
		SampleRate:     48000,
		FrameLen:       480,
	})

	s.Start()
	time.Sleep(20 * time.Millisecond) // let at least one tick land

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sink.Stop did not return — teardown likely deadlocked")
	}

	assert.True(t, primaryAdapter.deinited)
}

func TestSink_WithOffloadBranchTearsDownCleanly(t *testing.T) {
	primaryAdapter := newFakeAdapter()
	offloadAdapter := newFakeLockAdapter()
	m := mixer.New(passthroughChains{}, nil, 2, catalog.LayoutStereo)

	s := New(Config{
		PrimaryAdapter:   primaryAdapter,
		PrimaryMixer:     m,
		PrimaryInputs:    func() []mixer.SinkInput { return nil },
		SampleRate:       48000,
		FrameLen:         480,
		OffloadAdapter:   offloadAdapter,
		OffloadResampler: &fakeResampler{},
		OffloadChannels:  2,
	})

	s.Start()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sink.Stop did not return with an offload branch attached")
	}

	assert.True(t, offloadAdapter.deinited)
}
