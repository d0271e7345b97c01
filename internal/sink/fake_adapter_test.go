package sink

import (
	"sync"
	"time"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/hal"
)

// fakeAdapter is an in-memory hal.Adapter test double used across this
// package's tests, mirroring the hal package's own fakePaStream/StubAdapter
// seam pattern.
type fakeAdapter struct {
	mu sync.Mutex

	started  bool
	deinited bool
	flushed  int

	renders      [][]byte
	renderErr    error
	renderWritten int // -1 means "len(buf)"

	framesPresented uint64
	posErr          error

	cb hal.Callback
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{renderWritten: -1}
}

func (f *fakeAdapter) Init(attr hal.Attr) error { return nil }
func (f *fakeAdapter) DeInit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deinited = true
	return nil
}
func (f *fakeAdapter) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}
func (f *fakeAdapter) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}
func (f *fakeAdapter) Pause() error  { return f.Stop() }
func (f *fakeAdapter) Resume() error { return f.Start() }
func (f *fakeAdapter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
	return nil
}

func (f *fakeAdapter) RenderFrame(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renderErr != nil {
		return 0, f.renderErr
	}
	cp := append([]byte(nil), buf...)
	f.renders = append(f.renders, cp)
	if f.renderWritten == -1 {
		return len(buf), nil
	}
	return f.renderWritten, nil
}

func (f *fakeAdapter) GetLatency() (time.Duration, error) { return 0, nil }
func (f *fakeAdapter) GetPresentationPosition() (uint64, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.posErr != nil {
		return 0, 0, f.posErr
	}
	return f.framesPresented, 0, nil
}
func (f *fakeAdapter) SetVolume(left, right float32) error { return nil }
func (f *fakeAdapter) GetVolume() (float32, float32, error) { return 1, 1, nil }
func (f *fakeAdapter) SetMute(mute bool) error               { return nil }
func (f *fakeAdapter) GetMute() (bool, error)                { return false, nil }
func (f *fakeAdapter) SetAudioScene(scene catalog.SceneType, device catalog.DeviceType) error {
	return nil
}
func (f *fakeAdapter) SetOutputRoute(device catalog.DeviceType) error { return nil }
func (f *fakeAdapter) SetBufferSize(ms uint32) error                  { return nil }
func (f *fakeAdapter) RegisterCallback(cb hal.Callback)               { f.cb = cb }
func (f *fakeAdapter) SetAudioParameter(key, condition, value string) error { return nil }
func (f *fakeAdapter) GetAudioParameter(key, condition string) (string, error) {
	return "", nil
}

func (f *fakeAdapter) renderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.renders)
}

// fakeLockAdapter adds RunningLock on top of fakeAdapter, for the offload
// branch's wake-lock test coverage.
type fakeLockAdapter struct {
	*fakeAdapter
	locks, unlocks int
}

func newFakeLockAdapter() *fakeLockAdapter {
	return &fakeLockAdapter{fakeAdapter: newFakeAdapter()}
}

func (f *fakeLockAdapter) LockRunning()   { f.locks++ }
func (f *fakeLockAdapter) UnlockRunning() { f.unlocks++ }
