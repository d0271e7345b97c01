// Package ipc is the thin external command surface (spec.md §6): it maps
// the policy-server command set onto chainmgr.Manager and
// chainmgr.EnhanceChainManager calls and back onto an error-code style
// result, with no logic of its own. It is the one package allowed to know
// about both chain managers at once.
package ipc

import (
	"errors"
	"fmt"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/chainmgr"
	"github.com/ohaudio/audiofx/internal/effect"
)

// Status mirrors the source's int32 status-code return convention for the
// native-module ABI wrappers in Process/CreateCb/ReleaseCb (spec.md §6).
type Status int32

const (
	StatusSuccess Status = 0
	StatusError   Status = -1
)

// Server is the external command surface bound to one process's chain
// managers (spec.md §6 "Inputs from the policy server").
type Server struct {
	chains   *chainmgr.Manager
	enhance  *chainmgr.EnhanceChainManager
}

// New returns a Server dispatching onto chains and enhance.
func New(chains *chainmgr.Manager, enhance *chainmgr.EnhanceChainManager) *Server {
	return &Server{chains: chains, enhance: enhance}
}

// InitChainManager seeds both chain managers from one boot configuration
// (spec.md §6 "InitChainManager").
func (s *Server) InitChainManager(
	effects []effect.EffectSpec, recipes []chainmgr.RecipeSpec, sceneModeMap []chainmgr.SceneModeDeviceEntry,
	enhanceRecipes []chainmgr.EnhanceRecipeSpec, enhanceRouting []chainmgr.EnhanceSceneModeDevEntry,
) {
	s.chains.Init(effects, recipes, sceneModeMap)
	if s.enhance != nil {
		s.enhance.Init(enhanceRecipes, enhanceRouting)
	}
}

// CreateEffectChain wraps chainmgr.Manager.CreateChain (spec.md §6).
func (s *Server) CreateEffectChain(scene catalog.SceneType) error {
	return wrap("CreateEffectChain", s.chains.CreateChain(scene))
}

// ReleaseEffectChain wraps chainmgr.Manager.ReleaseChain.
func (s *Server) ReleaseEffectChain(scene catalog.SceneType) {
	s.chains.ReleaseChain(scene)
}

// SetEffectChain wraps chainmgr.Manager.SetChain.
func (s *Server) SetEffectChain(scene catalog.SceneType, mode catalog.Mode) {
	s.chains.SetChain(scene, mode)
}

// ExistEffectChain wraps chainmgr.Manager.ExistAudioEffectChain.
func (s *Server) ExistEffectChain(scene catalog.SceneType, mode catalog.Mode, spatialization bool) bool {
	return s.chains.ExistAudioEffectChain(scene, mode, spatialization)
}

// ApplyEffectChain wraps chainmgr.Manager.ApplyChain.
func (s *Server) ApplyEffectChain(scene catalog.SceneType, attr chainmgr.BufferAttr) error {
	return wrap("ApplyEffectChain", s.chains.ApplyChain(scene, attr))
}

// SetOutputDeviceSink wraps chainmgr.Manager.SetOutputDeviceSink.
func (s *Server) SetOutputDeviceSink(device catalog.DeviceType, sinkName string) {
	s.chains.SetOutputDeviceSink(device, sinkName)
}

// UpdateSpatializationState wraps chainmgr.Manager.UpdateSpatializationState.
func (s *Server) UpdateSpatializationState(spatializationOn, headTrackingOn bool) {
	s.chains.UpdateSpatializationState(chainmgr.SpatializationState{
		Spatialization: spatializationOn,
		HeadTracking:   headTrackingOn,
	})
}

// EffectVolumeUpdate wraps chainmgr.Manager.EffectVolumeUpdate.
func (s *Server) EffectVolumeUpdate(sessionID string, volume int32) {
	s.chains.EffectVolumeUpdate(sessionID, volume)
}

// EffectRotationUpdate wraps chainmgr.Manager.EffectRotationUpdate.
func (s *Server) EffectRotationUpdate(rotation int32) {
	s.chains.EffectRotationUpdate(rotation)
}

// AddSessionInfo wraps chainmgr.Manager.AddSession.
func (s *Server) AddSessionInfo(sessionID string, info chainmgr.SessionEffectInfo) bool {
	return s.chains.AddSession(sessionID, info)
}

// DeleteSessionInfo wraps chainmgr.Manager.RemoveSession. scene is accepted
// for API-surface parity with spec.md §6 but the manager keys sessions by
// ID alone, so it is unused here beyond documenting intent.
func (s *Server) DeleteSessionInfo(scene catalog.SceneType, sessionID string) bool {
	return s.chains.RemoveSession(sessionID)
}

// SetHdiParam wraps chainmgr.Manager.SetHdiParam.
func (s *Server) SetHdiParam(scene catalog.SceneType, mode catalog.Mode, enabled bool) error {
	return wrap("SetHdiParam", s.chains.SetHdiParam(scene, mode, enabled))
}

// DeviceTypeName wraps chainmgr.Manager.GetDeviceTypeName.
func (s *Server) DeviceTypeName(device catalog.DeviceType) string {
	return s.chains.GetDeviceTypeName(device)
}

// DeviceSinkName wraps chainmgr.Manager.GetDeviceSinkName.
func (s *Server) DeviceSinkName() string {
	return s.chains.GetDeviceSinkName()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ipc: %s: %w", op, err)
}

// ErrNoEnhanceManager names the missing-enhance-manager condition. The
// enhance operations do not return it; they report StatusError instead.
var ErrNoEnhanceManager = errors.New("ipc: enhance chain manager not configured")
