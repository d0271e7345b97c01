// Package hal is the HAL Adapter Facade (C7): a uniform interface over the
// concrete sink device classes (primary, offload, a2dp, usb, remote,
// multichannel), replacing the source's virtual-inheritance adapter
// hierarchy with a closed tagged-variant dispatched by Kind (spec.md §9
// "Virtual inheritance on sink adapters").
package hal

import (
	"fmt"
	"time"

	"github.com/ohaudio/audiofx/internal/catalog"
)

// Kind identifies one of the closed set of concrete adapter classes
// (spec.md §4.7).
type Kind int

const (
	KindPrimary Kind = iota
	KindOffload
	KindA2DP
	KindUSB
	KindRemote
	KindMultichannel
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindOffload:
		return "offload"
	case KindA2DP:
		return "a2dp"
	case KindUSB:
		return "usb"
	case KindRemote:
		return "remote"
	case KindMultichannel:
		return "multichannel"
	default:
		return "unknown"
	}
}

// Attr is the stream attribute block passed to Init.
type Attr struct {
	SampleRate uint32
	Channels   uint32
	Layout     catalog.ChannelLayout
	BufferMs   uint32
}

// CallbackType is one of the HAL event kinds the core subscribes to
// (spec.md §4.7). Only NonblockWriteCompleted drives state in the offload
// machine; the rest are informational.
type CallbackType int

const (
	NonblockWriteCompleted CallbackType = iota
	DrainCompleted
	FlushCompleted
	RenderFull
	ErrorOccur
)

// Callback receives HAL events. Per spec.md §9 ("Callbacks from HDI layer
// into the offload state machine"), implementations must never call back
// into chain-manager or mixer code directly — only convert the event into a
// message and post it, which is the caller's responsibility, not the
// adapter's.
type Callback func(CallbackType)

// Adapter is the uniform operation set every concrete sink device class
// implements (spec.md §4.7).
type Adapter interface {
	Init(attr Attr) error
	DeInit() error
	Start() error
	Stop() error
	Pause() error
	Resume() error
	Flush() error
	// RenderFrame writes buf (interleaved native-format PCM) to the
	// device. Implementations must tolerate and report partial writes via
	// the returned written count; they must never report written > len(buf).
	RenderFrame(buf []byte) (written int, err error)
	GetLatency() (time.Duration, error)
	GetPresentationPosition() (frames uint64, pos time.Duration, err error)
	SetVolume(left, right float32) error
	GetVolume() (left, right float32, err error)
	SetMute(mute bool) error
	GetMute() (bool, error)
	SetAudioScene(scene catalog.SceneType, device catalog.DeviceType) error
	SetOutputRoute(device catalog.DeviceType) error
	SetBufferSize(ms uint32) error
	RegisterCallback(cb Callback)
	SetAudioParameter(key, condition, value string) error
	GetAudioParameter(key, condition string) (string, error)
}

// RunningLock is the offload wake-lock surface (spec.md §4.6 "runninglock").
// Only offload adapters need to implement it; callers type-assert.
type RunningLock interface {
	LockRunning()
	UnlockRunning()
}

// ErrUnsupportedKind is returned by New for a Kind with no registered
// constructor.
var ErrUnsupportedKind = fmt.Errorf("hal: unsupported adapter kind")

// Factory builds a concrete Adapter for one device name (e.g. "hw:0" or a
// sink name from the policy server).
type Factory func(deviceName string) (Adapter, error)

// Registry resolves a Kind to a Factory, the seam production wiring uses to
// pick a concrete adapter without the facade needing a type switch over
// concrete structs.
type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register associates a Kind with the constructor used to build it.
func (r *Registry) Register(kind Kind, f Factory) {
	r.factories[kind] = f
}

// New builds an Adapter of the given kind for deviceName.
func (r *Registry) New(kind Kind, deviceName string) (Adapter, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("hal: %s: %w", kind, ErrUnsupportedKind)
	}
	return f(deviceName)
}
