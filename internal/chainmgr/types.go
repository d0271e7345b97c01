// Package chainmgr implements the Chain Manager (C4): lifecycle, (scene,
// device) keying, refcounted reuse, and coordinated reparameterization of
// effect chains over the registry (C1) and chains (C2). Modeled on
// AudioEffectChainManager in audio_effect_chain_manager.{h,cpp} from the
// original source, rebuilt here as an explicit context object rather than a
// process-wide singleton (spec.md §9 design note).
package chainmgr

import (
	"github.com/ohaudio/audiofx/internal/catalog"
)

// ChainKey is the primary identity of an effect chain (spec.md §3).
type ChainKey struct {
	Scene  catalog.SceneType
	Device catalog.DeviceType
}

// SessionEffectInfo is the per-session record the manager keeps so volume,
// rotation and spatialization updates can be recomputed without asking the
// caller again (spec.md §3).
type SessionEffectInfo struct {
	Scene                 catalog.SceneType
	Mode                  catalog.Mode
	Channels              uint32
	ChannelLayout         catalog.ChannelLayout
	SpatializationEnabled bool
	Volume                int32
}

// BufferAttr is the buffer descriptor ApplyChain operates on (spec.md §3).
// In and Out are sized by the caller; ApplyChain never allocates on the hot
// path.
type BufferAttr struct {
	In          []float32
	Out         []float32
	SampleRate  uint32
	InChannels  uint32
	OutChannels uint32
	FrameLen    uint32
}

// recipe is a named, ordered list of effect names (spec.md §3
// "chain_recipes").
type recipe struct {
	name    string
	effects []string
}

// sceneModeDeviceKey indexes scene_mode_device_to_chain_name.
type sceneModeDeviceKey struct {
	Scene  catalog.SceneType
	Mode   catalog.Mode
	Device catalog.DeviceType
}

// noneRecipeName is the synthetic empty recipe SetChain falls back to when
// scene_mode_device_to_chain_name has no entry for a key (spec.md §4.4
// "SetChain").
const noneRecipeName = ""
