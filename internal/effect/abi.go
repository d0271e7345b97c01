// Package effect implements the loadable-effect-library registry (C1) and
// the effect-chain ABI (command codes, descriptors, handles) that the chain
// manager and effect chain build on. It is modeled on
// frameworks/native/audioeffect/{include,src}/audio_effect_chain*.{h,cpp}
// from the OpenHarmony multimedia_audio_framework this package replaces,
// with the cgo shared-object loading from src/audio.go (samoyed) rewritten
// as Go's plugin-style factory registration.
package effect

import "fmt"

// Command is one of the ABI command codes a handle's Command method
// understands (spec.md §6 "Effect library ABI"). Names, not numeric values,
// are load-bearing; the actual values only need to be stable within one
// process.
type Command int

const (
	CmdInit Command = iota
	CmdEnable
	CmdSetConfig
	CmdSetParam
	CmdSetIMU
)

func (c Command) String() string {
	switch c {
	case CmdInit:
		return "INIT"
	case CmdEnable:
		return "ENABLE"
	case CmdSetConfig:
		return "SET_CONFIG"
	case CmdSetParam:
		return "SET_PARAM"
	case CmdSetIMU:
		return "SET_IMU"
	default:
		return "UNKNOWN"
	}
}

// SampleFormat identifies the PCM encoding of an IOConfig leg.
type SampleFormat int

const (
	FormatF32 SampleFormat = iota
	FormatS16
)

// IOConfig describes one leg (in or out) of an effect's negotiated format.
type IOConfig struct {
	SampleRate uint32
	Channels   uint32
	Layout     uint64
	Format     SampleFormat
}

// ChainIOConfig is the full negotiated format passed to EFFECT_CMD_INIT /
// EFFECT_CMD_SET_CONFIG, matching AudioEffectConfig in the original source.
type ChainIOConfig struct {
	In  IOConfig
	Out IOConfig
}

// DefaultChainIOConfig is the 48 kHz/stereo/float32 default an EffectChain
// starts with (spec.md §4.2 "Construction fixes ... a default io-config").
func DefaultChainIOConfig() ChainIOConfig {
	return ChainIOConfig{
		In:  IOConfig{SampleRate: 48000, Channels: 2, Layout: uint64(3), Format: FormatF32},
		Out: IOConfig{SampleRate: 48000, Channels: 2, Layout: uint64(3), Format: FormatF32},
	}
}

// SetParamPayload is the structured form of the EFFECT_CMD_SET_PARAM
// command body (spec.md §4.2 step 4): a fixed marker followed by scene,
// mode, rotation and AP volume.
type SetParamPayload struct {
	Marker   int32
	Scene    int32
	Mode     int32
	Rotation int32
	APVolume int32
}

// EffectSetParamMarker is the "EFFECT_SET_PARAM" tag that leads a SetParam
// command payload, following AudioEffectChain::AddEffectHandle in the
// original source.
const EffectSetParamMarker int32 = 1

// HeadPosture is the IMU snapshot sent with EFFECT_CMD_SET_IMU.
// Orientation is a unit vector; the remaining three fields mirror the
// original's HeadPostureData{valid, w/x/y/z-ish} shape collapsed to
// (valid, orientation).
type HeadPosture struct {
	Valid       int32
	Orientation [3]float64 // unit vector; see internal/sensor for construction
}

// IdentityHeadPosture is sent by Chain.HeadTrackingDisabled to flush a handle's
// internal rotation state (spec.md §4.2).
func IdentityHeadPosture() HeadPosture {
	return HeadPosture{Valid: 1, Orientation: [3]float64{1, 0, 0}}
}

// AudioBuffer is the raw buffer handed to a handle's Process call.
type AudioBuffer struct {
	Raw        []float32
	FrameLength uint32
}

// Handle is the opaque per-instance effect object (spec.md §3
// "EffectHandle"). Implementations are produced by a Library's CreateEffect
// and belong to exactly one chain.
type Handle interface {
	// Command sends one of the ABI command codes. replyLatencyUs is only
	// meaningful for CmdSetParam (the reported processing latency in
	// microseconds); callers ignore it otherwise.
	Command(cmd Command, payload any) (replyLatencyUs int32, err error)
	// Process runs one frame of audio in place between in and out.
	Process(in, out *AudioBuffer) error
}

// Descriptor is the immutable metadata block a library exposes for one
// effect (spec.md §3 "EffectDescriptor").
type Descriptor struct {
	LibraryName string
	EffectName  string
	Type        string
	ID          uint32
	APIVersion  uint32
	Flags       uint32
	CPULoad     uint32
	MemoryUsage uint32
}

// Library is a loaded effect shared-object (spec.md §3 "EffectLibrary"). In
// this Go rewrite a "library" is a registered factory rather than an
// actually-dlopen'd .so — the ABI boundary the spec describes is preserved,
// dynamic loading of native code is not (there is no native code to load).
type Library struct {
	Name        string
	Descriptors []Descriptor
	CreateEffect func(effectName string) (Handle, error)
	ReleaseEffect func(Handle) error
}

// ErrCreateFailed is returned by CreateEffect when the underlying library's
// create_effect call fails; per spec.md §4.1 this is never fatal to the
// caller, only to that one effect slot.
var ErrCreateFailed = fmt.Errorf("effect: create_effect failed")
