package hal

import (
	"sync"
	"time"

	"github.com/ohaudio/audiofx/internal/catalog"
)

// StubAdapter is an in-memory Adapter for the device classes this rewrite
// has no real hardware backend for (offload, a2dp, usb, remote,
// multichannel). It accepts every write, reports a synthetic presentation
// position advancing at wall-clock rate, and is good enough to drive the
// sink threading core's state machines in the absence of hardware.
type StubAdapter struct {
	mu sync.Mutex

	kind       Kind
	deviceName string
	attr       Attr

	started   bool
	startedAt time.Time
	volumeL   float32
	volumeR   float32
	muted     bool

	framesRendered uint64
	callback       Callback

	runningLocked bool
}

// NewStubFactory returns a Factory constructing StubAdapters tagged with
// kind, for Registry.Register.
func NewStubFactory(kind Kind) Factory {
	return func(deviceName string) (Adapter, error) {
		return &StubAdapter{kind: kind, deviceName: deviceName, volumeL: 1, volumeR: 1}, nil
	}
}

func (a *StubAdapter) Init(attr Attr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attr = attr
	return nil
}

func (a *StubAdapter) DeInit() error { return nil }

func (a *StubAdapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	a.startedAt = time.Now()
	return nil
}

func (a *StubAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = false
	return nil
}

func (a *StubAdapter) Pause() error  { return a.Stop() }
func (a *StubAdapter) Resume() error { return a.Start() }

func (a *StubAdapter) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.callback != nil {
		a.callback(FlushCompleted)
	}
	return nil
}

func (a *StubAdapter) RenderFrame(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	channels := a.attr.Channels
	if channels == 0 {
		channels = 1
	}
	a.framesRendered += uint64(len(buf) / 4 / int(channels))
	if a.callback != nil {
		a.callback(NonblockWriteCompleted)
	}
	return len(buf), nil
}

func (a *StubAdapter) GetLatency() (time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Duration(a.attr.BufferMs) * time.Millisecond, nil
}

func (a *StubAdapter) GetPresentationPosition() (uint64, time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return a.framesRendered, 0, nil
	}
	return a.framesRendered, time.Since(a.startedAt), nil
}

func (a *StubAdapter) SetVolume(left, right float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volumeL, a.volumeR = left, right
	return nil
}

func (a *StubAdapter) GetVolume() (float32, float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volumeL, a.volumeR, nil
}

func (a *StubAdapter) SetMute(mute bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.muted = mute
	return nil
}

func (a *StubAdapter) GetMute() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted, nil
}

func (a *StubAdapter) SetAudioScene(scene catalog.SceneType, device catalog.DeviceType) error {
	return nil
}

func (a *StubAdapter) SetOutputRoute(device catalog.DeviceType) error { return nil }

func (a *StubAdapter) SetBufferSize(ms uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attr.BufferMs = ms
	return nil
}

func (a *StubAdapter) RegisterCallback(cb Callback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = cb
}

func (a *StubAdapter) SetAudioParameter(key, condition, value string) error { return nil }
func (a *StubAdapter) GetAudioParameter(key, condition string) (string, error) {
	return "", nil
}

// LockRunning/UnlockRunning implement RunningLock for the offload kind's
// wake-lock semantics (spec.md §4.6: "acquired on the first write and
// released on suspend").
func (a *StubAdapter) LockRunning() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runningLocked = true
}

func (a *StubAdapter) UnlockRunning() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runningLocked = false
}
