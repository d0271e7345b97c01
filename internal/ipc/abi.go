package ipc

import (
	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/chainmgr"
)

// EnhanceBufferAttr is the enhance-side counterpart of chainmgr.BufferAttr,
// carrying the raw capture-path PCM and whether a reference signal for echo
// cancellation is attached (spec.md §6 "EnhanceChainManagerProcess").
type EnhanceBufferAttr struct {
	Raw    []int16
	HasRef bool
}

// EffectChainManagerProcess is the native-module ABI entry point wrapping
// ApplyEffectChain (spec.md §6). Thin: error mapping only.
func (s *Server) EffectChainManagerProcess(scene catalog.SceneType, attr *chainmgr.BufferAttr) Status {
	if attr == nil {
		return StatusError
	}
	if err := s.ApplyEffectChain(scene, *attr); err != nil {
		return StatusError
	}
	return StatusSuccess
}

// EffectChainManagerCreateCb is the native-module ABI entry point wrapping
// CreateEffectChain, called by the source's session-creation callback path.
func (s *Server) EffectChainManagerCreateCb(scene catalog.SceneType, sessionID string) Status {
	if err := s.CreateEffectChain(scene); err != nil {
		return StatusError
	}
	return StatusSuccess
}

// EffectChainManagerReleaseCb is the native-module ABI entry point wrapping
// ReleaseEffectChain, called by the source's session-teardown callback path.
func (s *Server) EffectChainManagerReleaseCb(scene catalog.SceneType, sessionID string) Status {
	s.ReleaseEffectChain(scene)
	return StatusSuccess
}

// EffectChainManagerMultichannelUpdate is the native-module ABI entry point
// signaling that a scene's input channel layout changed, re-querying the
// chain's current IO config.
func (s *Server) EffectChainManagerMultichannelUpdate(scene catalog.SceneType) Status {
	if _, ok := s.chains.InputChannelsFor(scene); !ok {
		return StatusError
	}
	return StatusSuccess
}

// EffectChainManagerVolumeUpdate is the native-module ABI entry point
// wrapping EffectVolumeUpdate.
func (s *Server) EffectChainManagerVolumeUpdate(sessionID string, volume int32) Status {
	s.EffectVolumeUpdate(sessionID, volume)
	return StatusSuccess
}

// EffectChainManagerSetHdiParam is the native-module ABI entry point
// wrapping SetHdiParam.
func (s *Server) EffectChainManagerSetHdiParam(scene catalog.SceneType, mode catalog.Mode, enabled bool) Status {
	if err := s.SetHdiParam(scene, mode, enabled); err != nil {
		return StatusError
	}
	return StatusSuccess
}

// EnhanceChainManagerProcess is the native-module ABI entry point for the
// enhance-side capture path (spec.md §6).
func (s *Server) EnhanceChainManagerProcess(scene catalog.SceneType, mode catalog.Mode, upDev, downDev catalog.DeviceType, attr *EnhanceBufferAttr) ([]int16, Status) {
	if s.enhance == nil || attr == nil {
		return nil, StatusError
	}
	return s.enhance.Process(scene, mode, upDev, downDev, attr.Raw, attr.HasRef), StatusSuccess
}

// EnhanceChainManagerCreateCb is the native-module ABI entry point wrapping
// EnhanceChainManager.CreateChain.
func (s *Server) EnhanceChainManagerCreateCb(scene catalog.SceneType, mode catalog.Mode, upDev, downDev catalog.DeviceType) Status {
	if s.enhance == nil {
		return StatusError
	}
	s.enhance.CreateChain(scene, mode, upDev, downDev)
	return StatusSuccess
}

// EnhanceChainManagerReleaseCb is the native-module ABI entry point
// wrapping EnhanceChainManager.ReleaseChain. mode is EFFECT_DEFAULT per
// spec.md §6's signature, which omits mode relative to CreateCb — the
// source's release path always targets the default-mode chain for the
// (scene, upDev, downDev) key.
func (s *Server) EnhanceChainManagerReleaseCb(scene catalog.SceneType, upDev, downDev catalog.DeviceType) Status {
	if s.enhance == nil {
		return StatusError
	}
	s.enhance.ReleaseChain(scene, catalog.ModeDefault, upDev, downDev)
	return StatusSuccess
}
