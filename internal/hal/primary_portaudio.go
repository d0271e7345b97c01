package hal

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/ohaudio/audiofx/internal/catalog"
)

// paStream is the slice of *portaudio.Stream this adapter needs, seamed so
// tests never touch a real sound card, the same shape gpio_route.go uses
// for outputLine.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Write() error
}

type paOpener func(sampleRate float64, channels int, buf []float32) (paStream, error)

func openPortaudioStream(sampleRate float64, channels int, buf []float32) (paStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("hal: portaudio.Initialize: %w", err)
	}
	s, err := portaudio.OpenDefaultStream(0, channels, sampleRate, len(buf)/max(channels, 1), &buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("hal: portaudio.OpenDefaultStream: %w", err)
	}
	return s, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// PrimaryAdapter drives the system's default output device via
// gordonklaus/portaudio. It is the one HAL adapter in this rewrite backed by
// real hardware I/O rather than a stub; src/audio.go's go.mod dependency on
// portaudio was never wired up in the teacher, this finishes that.
type PrimaryAdapter struct {
	mu sync.Mutex

	deviceName string
	attr       Attr
	open       paOpener

	stream paStream
	buf    []float32

	volumeL, volumeR float32
	muted            bool
	started          bool

	callback Callback

	startedAt      time.Time
	framesRendered uint64
}

// NewPrimaryAdapter constructs a PrimaryAdapter for deviceName (informational
// only — portaudio.OpenDefaultStream always targets the system default).
func NewPrimaryAdapter(deviceName string) (Adapter, error) {
	return &PrimaryAdapter{deviceName: deviceName, open: openPortaudioStream, volumeL: 1, volumeR: 1}, nil
}

func (a *PrimaryAdapter) Init(attr Attr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attr = attr
	frames := int(attr.SampleRate) * int(attr.BufferMs) / 1000
	if frames <= 0 {
		frames = int(attr.SampleRate) / 100
	}
	a.buf = make([]float32, frames*int(attr.Channels))

	stream, err := a.open(float64(attr.SampleRate), int(attr.Channels), a.buf)
	if err != nil {
		return fmt.Errorf("hal: primary Init: %w", err)
	}
	a.stream = stream
	return nil
}

func (a *PrimaryAdapter) DeInit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return nil
	}
	err := a.stream.Close()
	a.stream = nil
	if err != nil {
		return fmt.Errorf("hal: primary DeInit: %w", err)
	}
	return nil
}

func (a *PrimaryAdapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return fmt.Errorf("hal: primary Start: not initialized")
	}
	if err := a.stream.Start(); err != nil {
		if a.callback != nil {
			a.callback(ErrorOccur)
		}
		return fmt.Errorf("hal: primary Start: %w", err)
	}
	a.started = true
	a.startedAt = time.Now()
	return nil
}

func (a *PrimaryAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil || !a.started {
		return nil
	}
	a.started = false
	if err := a.stream.Stop(); err != nil {
		return fmt.Errorf("hal: primary Stop: %w", err)
	}
	return nil
}

func (a *PrimaryAdapter) Pause() error  { return a.Stop() }
func (a *PrimaryAdapter) Resume() error { return a.Start() }

func (a *PrimaryAdapter) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.buf {
		a.buf[i] = 0
	}
	if a.callback != nil {
		a.callback(FlushCompleted)
	}
	return nil
}

// RenderFrame copies buf (little-endian float32 PCM) into the portaudio
// ring buffer and writes it. Tolerates a shorter buf than the internal
// buffer by writing only what's given; never reports written > len(buf).
func (a *PrimaryAdapter) RenderFrame(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return 0, fmt.Errorf("hal: primary RenderFrame: not initialized")
	}

	n := len(buf) / 4
	if n > len(a.buf) {
		n = len(a.buf)
	}
	for i := 0; i < n; i++ {
		a.buf[i] = bytesToFloat32(buf[i*4 : i*4+4])
	}
	for i := n; i < len(a.buf); i++ {
		a.buf[i] = 0
	}

	if err := a.stream.Write(); err != nil {
		if a.callback != nil {
			a.callback(ErrorOccur)
		}
		return 0, fmt.Errorf("hal: primary write: %w", err)
	}
	a.framesRendered += uint64(n / max(int(a.attr.Channels), 1))
	written := n * 4
	if a.callback != nil {
		a.callback(NonblockWriteCompleted)
	}
	return written, nil
}

func bytesToFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

func (a *PrimaryAdapter) GetLatency() (time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buf) == 0 || a.attr.SampleRate == 0 {
		return 0, nil
	}
	frames := len(a.buf) / max(int(a.attr.Channels), 1)
	return time.Duration(frames) * time.Second / time.Duration(a.attr.SampleRate), nil
}

func (a *PrimaryAdapter) GetPresentationPosition() (uint64, time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return a.framesRendered, 0, nil
	}
	return a.framesRendered, time.Since(a.startedAt), nil
}

func (a *PrimaryAdapter) SetVolume(left, right float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volumeL, a.volumeR = left, right
	return nil
}

func (a *PrimaryAdapter) GetVolume() (float32, float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volumeL, a.volumeR, nil
}

func (a *PrimaryAdapter) SetMute(mute bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.muted = mute
	return nil
}

func (a *PrimaryAdapter) GetMute() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted, nil
}

func (a *PrimaryAdapter) SetAudioScene(scene catalog.SceneType, device catalog.DeviceType) error {
	return nil
}

func (a *PrimaryAdapter) SetOutputRoute(device catalog.DeviceType) error { return nil }

func (a *PrimaryAdapter) SetBufferSize(ms uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attr.BufferMs = ms
	return nil
}

func (a *PrimaryAdapter) RegisterCallback(cb Callback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = cb
}

func (a *PrimaryAdapter) SetAudioParameter(key, condition, value string) error { return nil }
func (a *PrimaryAdapter) GetAudioParameter(key, condition string) (string, error) {
	return "", nil
}
