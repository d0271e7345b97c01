// Package catalog holds the static tables the rest of audiofx indexes by:
// supported scenes, supported modes, supported multichannel layouts, and
// device-type names. It mirrors the AUDIO_SUPPORTED_SCENE_MODES /
// AUDIO_SUPPORTED_SCENE_TYPES tables in the OpenHarmony audio-effect chain
// manager this package is modeled on.
package catalog

// SceneType is one of the high-level audio contexts chosen by the policy
// layer (spec.md §6 "Supported scenes").
type SceneType int

const (
	SceneMusic SceneType = iota
	SceneGame
	SceneMovie
	SceneSpeech
	SceneRing
	SceneOthers
	// SceneEffectNone is the virtual seventh bucket the scene mixer uses to
	// partition inputs whose chain is empty (spec.md §4.5 step 2).
	SceneEffectNone
)

func (s SceneType) String() string {
	switch s {
	case SceneMusic:
		return "SCENE_MUSIC"
	case SceneGame:
		return "SCENE_GAME"
	case SceneMovie:
		return "SCENE_MOVIE"
	case SceneSpeech:
		return "SCENE_SPEECH"
	case SceneRing:
		return "SCENE_RING"
	case SceneOthers:
		return "SCENE_OTHERS"
	case SceneEffectNone:
		return "EFFECT_NONE"
	default:
		return "SCENE_UNKNOWN"
	}
}

// Scenes lists every scene a chain can exist for, in the fixed enumeration
// order spec.md §5 requires for deterministic per-tick accumulation. It
// deliberately excludes SceneEffectNone, which never owns a real chain.
var Scenes = []SceneType{SceneMusic, SceneGame, SceneMovie, SceneSpeech, SceneRing, SceneOthers}

// Mode selects which recipe a scene uses (spec.md §6 "Supported modes").
type Mode int

const (
	ModeDefault Mode = iota
	ModeNone
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "EFFECT_DEFAULT"
	case ModeNone:
		return "EFFECT_NONE"
	default:
		return "MODE_UNKNOWN"
	}
}

// DeviceType enumerates the HAL device classes the facade (C7) dispatches
// on. The set is closed, per spec.md §9's "tagged-variant" redesign note.
type DeviceType int

const (
	DeviceNone DeviceType = iota
	DeviceSpeaker
	DeviceHeadset
	DeviceA2DP
	DeviceUSB
	DeviceRemote
)

func (d DeviceType) String() string {
	switch d {
	case DeviceNone:
		return "DEVICE_NONE"
	case DeviceSpeaker:
		return "DEVICE_SPEAKER"
	case DeviceHeadset:
		return "DEVICE_HEADSET"
	case DeviceA2DP:
		return "DEVICE_A2DP"
	case DeviceUSB:
		return "DEVICE_USB"
	case DeviceRemote:
		return "DEVICE_REMOTE"
	default:
		return "DEVICE_UNKNOWN"
	}
}

// ChannelLayout is a bit-mask identifying the physical channel positions in
// use, following the convention in spec.md's glossary ("layout bit-mask
// 1551" for 5.1.2). Concrete masks are defined so the spatializer gate
// (ChainManager.ExistAudioEffectChain) can recognize the supported
// multichannel layouts from spec.md §6.
type ChannelLayout uint64

const (
	LayoutStereo      ChannelLayout = 0x3
	Layout5Point1Back ChannelLayout = 0x3F
	Layout5Point1Dot2 ChannelLayout = 0x60F
	Layout7Point1     ChannelLayout = 0xFF
	Layout5Point1Dot4 ChannelLayout = 0xF0F
	Layout7Point1Dot2 ChannelLayout = 0x60FF
	Layout7Point1Dot4 ChannelLayout = 0xF0FF
	Layout9Point1Dot4 ChannelLayout = 0x3F0FF
	Layout9Point1Dot6 ChannelLayout = 0x3F3FF

	// LayoutMultichannelDefault is the fixed 6-channel device layout the
	// multichannel branch renders to (spec.md §4.5, "bit-mask 1551").
	LayoutMultichannelDefault ChannelLayout = 1551
)

// SupportedMultichannelLayouts backs the spatializer gate in
// ChainManager.ExistAudioEffectChain: when spatialization is requested, the
// chain's negotiated input layout must be a member of this set or the gate
// reports the chain as unavailable, per spec.md §6's "Supported
// multichannel layouts (for the spatializer gate)".
var SupportedMultichannelLayouts = map[ChannelLayout]bool{
	LayoutStereo:      true,
	Layout5Point1Back: true,
	Layout5Point1Dot2: true,
	Layout7Point1:     true,
	Layout5Point1Dot4: true,
	Layout7Point1Dot2: true,
	Layout7Point1Dot4: true,
	Layout9Point1Dot4: true,
	Layout9Point1Dot6: true,
}

// DeviceName returns the HAL sink name convention used for log lines and
// HDI diagnostics, e.g. "primary_speaker".
func DeviceName(d DeviceType) string {
	switch d {
	case DeviceSpeaker:
		return "primary_speaker"
	case DeviceHeadset:
		return "primary_wired_headset"
	case DeviceA2DP:
		return "a2dp"
	case DeviceUSB:
		return "usb"
	case DeviceRemote:
		return "remote"
	default:
		return "none"
	}
}
