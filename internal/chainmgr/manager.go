package chainmgr

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/effect"
	"github.com/ohaudio/audiofx/internal/hdi"
	"github.com/ohaudio/audiofx/internal/ratelog"
	"github.com/ohaudio/audiofx/internal/sensor"
)

// Sensor is the subset of sensor.Tracker the manager uses, seamed for tests
// (spec.md §9 "subscription token"). The manager only reads posture
// snapshots through it; it does not activate or deactivate the sensor or
// choose an AP/DSP engine for it. The head-tracking flag only gates SET_IMU
// in ApplyChain and, when cleared, sends HeadTrackingDisabled to every chain.
type Sensor interface {
	Snapshot() sensor.Posture
}

// Manager is the Chain Manager (C4): an explicit context object owning
// every map in spec.md §3. It replaces the source's process-wide
// AudioEffectChainManager singleton (spec.md §9) — callers construct one per
// process and pass it to every thread entry point that needs it.
type Manager struct {
	mu sync.Mutex

	registry *effect.Registry
	hdi      hdi.Proxy
	sensor   Sensor
	logger   *ratelog.Logger

	initialized bool

	effectsByName map[string]effect.Descriptor
	chainRecipes  map[string]recipe
	sceneModeDev  map[sceneModeDeviceKey]string

	chains          map[ChainKey]*effect.Chain
	refcount        map[ChainKey]int
	backupRefcounts map[ChainKey]int

	sessions        map[string]SessionEffectInfo
	sceneToSessions map[catalog.SceneType]map[string]bool

	currentDevice     catalog.DeviceType
	currentDeviceName string

	spatializationEnabled bool
	headTrackingEnabled   bool
	offloadEnabled        bool

	rotation    int32
	sceneVolume map[catalog.SceneType]int32
	globalVolume int32

	frameLen uint32
}

// New constructs an uninitialized Manager. Call Init before any other
// operation except AddSession/RemoveSession (which are pure map ops).
func New(registry *effect.Registry, proxy hdi.Proxy, snsr Sensor, logger *log.Logger) *Manager {
	if proxy == nil {
		proxy = hdi.NullProxy{}
	}
	return &Manager{
		registry:        registry,
		hdi:             proxy,
		sensor:          snsr,
		logger:          ratelog.New(logger),
		effectsByName:   make(map[string]effect.Descriptor),
		chainRecipes:    make(map[string]recipe),
		sceneModeDev:    make(map[sceneModeDeviceKey]string),
		chains:          make(map[ChainKey]*effect.Chain),
		refcount:        make(map[ChainKey]int),
		backupRefcounts: make(map[ChainKey]int),
		sessions:        make(map[string]SessionEffectInfo),
		sceneToSessions: make(map[catalog.SceneType]map[string]bool),
		sceneVolume:     make(map[catalog.SceneType]int32),
	}
}

// SceneModeDeviceEntry is one (scene, mode, device) -> chain_name mapping
// entry for Init.
type SceneModeDeviceEntry struct {
	Scene     catalog.SceneType
	Mode      catalog.Mode
	Device    catalog.DeviceType
	ChainName string
}

// Init builds effects_by_name/chain_recipes/scene_mode_device_to_chain_name
// from boot configuration and seeds the HDI proxy with "bluetooth mode = 1"
// (spec.md §4.4 "Init"). Idempotent: subsequent calls replace the maps but
// never touch existing chains.
func (m *Manager) Init(effects []effect.EffectSpec, recipes []RecipeSpec, sceneModeMap []SceneModeDeviceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	effectsByName := make(map[string]effect.Descriptor, len(effects))
	for _, e := range effects {
		if d, ok := m.registry.Descriptor(e.EffectName); ok {
			effectsByName[e.EffectName] = d
		}
	}

	chainRecipes := make(map[string]recipe, len(recipes))
	for _, r := range recipes {
		chainRecipes[r.ChainName] = recipe{name: r.ChainName, effects: r.EffectNames}
	}

	sceneModeDev := make(map[sceneModeDeviceKey]string, len(sceneModeMap))
	for _, e := range sceneModeMap {
		sceneModeDev[sceneModeDeviceKey{e.Scene, e.Mode, e.Device}] = e.ChainName
	}

	m.effectsByName = effectsByName
	m.chainRecipes = chainRecipes
	m.sceneModeDev = sceneModeDev

	if _, err := m.hdi.Send(hdi.NewCommand(hdi.TagBluetoothMode, 1)); err != nil {
		m.logger.Warn("init", "HdiError", "bluetooth mode seed command failed", "err", err)
	}

	m.initialized = true
}

// RecipeSpec is one (chain_name -> [effect_name]) entry for Init, mirroring
// effect.RecipeSpec but scoped to this package to avoid a cross-package
// rename dependency.
type RecipeSpec struct {
	ChainName   string
	EffectNames []string
}

// AddSession inserts a new session record. Returns false if the session
// already existed (spec.md §4.4 "AddSession").
func (m *Manager) AddSession(sessionID string, info SessionEffectInfo) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionID]; exists {
		return false
	}
	m.sessions[sessionID] = info
	bucket := m.sceneToSessions[info.Scene]
	if bucket == nil {
		bucket = make(map[string]bool)
		m.sceneToSessions[info.Scene] = bucket
	}
	bucket[sessionID] = true
	return true
}

// RemoveSession erases a session record. Returns false if not present
// (spec.md §4.4 "RemoveSession").
func (m *Manager) RemoveSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, exists := m.sessions[sessionID]
	if !exists {
		return false
	}
	delete(m.sessions, sessionID)
	if bucket := m.sceneToSessions[info.Scene]; bucket != nil {
		delete(bucket, sessionID)
		if len(bucket) == 0 {
			delete(m.sceneToSessions, info.Scene)
		}
	}
	return true
}

// ErrNotInitialized is returned by operations that require Init to have run.
var ErrNotInitialized = fmt.Errorf("chainmgr: manager not initialized")

// ErrEmptyScene names the empty-scene StateError. CreateChain does not
// return it: SceneType has no empty value, and its zero value is SceneMusic.
var ErrEmptyScene = fmt.Errorf("chainmgr: empty scene")

// CreateChain implements spec.md §4.4 "CreateChain".
func (m *Manager) CreateChain(scene catalog.SceneType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createChainLocked(scene)
}

func (m *Manager) createChainLocked(scene catalog.SceneType) error {
	if !m.initialized {
		return ErrNotInitialized
	}

	key := ChainKey{Scene: scene, Device: m.currentDevice}

	if m.offloadEnabled {
		m.backupRefcounts[key]++
		return nil
	}

	if c, ok := m.chains[key]; ok {
		if m.refcount[key] > 0 {
			m.refcount[key]++
			return nil
		}
		c.Release()
		delete(m.chains, key)
		delete(m.refcount, key)
	}

	c := effect.New(scene, nil)
	m.chains[key] = c
	m.refcount[key] = 1
	m.setChainLocked(scene, catalog.ModeDefault)
	return nil
}

// SetChain implements spec.md §4.4 "SetChain".
func (m *Manager) SetChain(scene catalog.SceneType, mode catalog.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setChainLocked(scene, mode)
}

func (m *Manager) setChainLocked(scene catalog.SceneType, mode catalog.Mode) {
	key := ChainKey{Scene: scene, Device: m.currentDevice}
	c, ok := m.chains[key]
	if !ok {
		return
	}
	c.SetMode(mode)

	chainName := m.sceneModeDev[sceneModeDeviceKey{scene, mode, m.currentDevice}]
	rec, ok := m.chainRecipes[chainName]
	if !ok || chainName == noneRecipeName {
		return
	}

	for _, effectName := range rec.effects {
		handle, lib, err := m.registry.CreateEffect(effectName)
		if err != nil {
			m.logger.Warn(chainName, "CreationError", "create_effect failed, skipping effect", "effect", effectName, "err", err)
			continue
		}
		if !c.AddHandle(handle, lib, m.rotation, m.sceneVolume[scene]) {
			if lib != nil && lib.ReleaseEffect != nil {
				_ = lib.ReleaseEffect(handle)
			}
		}
	}

	c.Dump()
}

// ReleaseChain implements spec.md §4.4 "ReleaseChain".
func (m *Manager) ReleaseChain(scene catalog.SceneType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ChainKey{Scene: scene, Device: m.currentDevice}

	if m.offloadEnabled {
		m.backupRefcounts[key]--
		if m.backupRefcounts[key] <= 0 {
			delete(m.backupRefcounts, key)
		}
		return
	}

	m.refcount[key]--
	if m.refcount[key] <= 0 {
		if c, ok := m.chains[key]; ok {
			c.Release()
		}
		delete(m.chains, key)
		delete(m.refcount, key)
	}
}

// ApplyChain implements spec.md §4.4 "ApplyChain". Returns an error (the
// ResourceMissing kind) when no chain exists for (scene, device); the
// buffer is still memcpy'd so the hot path never drops audio.
func (m *Manager) ApplyChain(scene catalog.SceneType, attr BufferAttr) error {
	m.mu.Lock()
	key := ChainKey{Scene: scene, Device: m.currentDevice}
	c, ok := m.chains[key]
	headTracking := m.headTrackingEnabled
	offload := m.offloadEnabled
	var posture effect.HeadPosture
	if m.sensor != nil {
		posture = m.sensor.Snapshot().ToHeadPosture()
	}
	m.mu.Unlock()

	if !ok {
		n := int(attr.FrameLen * attr.OutChannels)
		if n <= len(attr.Out) && n <= len(attr.In) {
			copy(attr.Out[:n], attr.In[:n])
		}
		return fmt.Errorf("chainmgr: ApplyChain: no chain for %v: %w", key, ErrResourceMissing)
	}

	c.ApplyChain(attr.In, attr.Out, attr.FrameLen, effect.ProcInfo{
		HeadTrackingEnabled: headTracking,
		OffloadEnabled:      offload,
		Posture:             posture,
	})
	return nil
}

// ErrResourceMissing backs the ResourceMissing error kind (spec.md §7).
var ErrResourceMissing = fmt.Errorf("chainmgr: resource missing")

// SpatializationState is the input to UpdateSpatializationState.
type SpatializationState struct {
	Spatialization bool
	HeadTracking   bool
}

// UpdateSpatializationState implements spec.md §4.4
// "UpdateSpatializationState".
func (m *Manager) UpdateSpatializationState(state SpatializationState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state.Spatialization != m.spatializationEnabled {
		m.spatializationEnabled = state.Spatialization
		if state.Spatialization {
			if _, err := m.hdi.Send(hdi.NewCommand(hdi.TagInit)); err != nil {
				m.logger.Warn("spatialization", "HdiError", "HDI_INIT failed, staying on AP path", "err", err)
				m.offloadEnabled = false
			} else {
				m.offloadEnabled = true
				m.deleteAllChainsLocked()
			}
		} else {
			if _, err := m.hdi.Send(hdi.NewCommand(hdi.TagDestroy)); err != nil {
				m.logger.Warn("spatialization", "HdiError", "HDI_DESTROY failed", "err", err)
			}
			m.offloadEnabled = false
			m.recoverAllChainsLocked()
		}
	}

	if state.HeadTracking != m.headTrackingEnabled {
		m.headTrackingEnabled = state.HeadTracking
		if state.HeadTracking {
			// Enabling only records the flag; no sensor is activated
			// and no engine is selected here.
		} else {
			for _, c := range m.chains {
				c.HeadTrackingDisabled()
			}
		}
	}
}

// deleteAllChainsLocked mirrors every chain's refcount into
// backup_refcounts and releases it refcount-many times (really: once, since
// the chain object itself is single-owner; the refcount is a logical
// multiplicity). Called with mu held (spec.md §4.4 "OFF→ON" transition).
func (m *Manager) deleteAllChainsLocked() {
	for key, c := range m.chains {
		m.backupRefcounts[key] += m.refcount[key]
		c.Release()
		delete(m.chains, key)
		delete(m.refcount, key)
	}
}

// recoverAllChainsLocked drains backup_refcounts back into live chains by
// replaying createChainLocked once per backed-up reference (spec.md §4.4
// "ON→OFF" transition, "RecoverAllChains").
func (m *Manager) recoverAllChainsLocked() {
	backup := m.backupRefcounts
	m.backupRefcounts = make(map[ChainKey]int)
	for key, n := range backup {
		for i := 0; i < n; i++ {
			_ = m.createChainLocked(key.Scene)
		}
	}
}

// InputChannelsFor reports the input channel count the live chain at
// (scene, current device) expects, for the scene mixer's resampler gate
// (spec.md §4.5 step 3, "ReturnEffectChannelInfo"). ok is false when no
// usable (non-empty) chain exists for the scene, signaling the mixer to
// route the bucket through the virtual EFFECT_NONE path instead.
func (m *Manager) InputChannelsFor(scene catalog.SceneType) (channels uint32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, exists := m.chains[ChainKey{Scene: scene, Device: m.currentDevice}]
	if !exists || c.IsEmpty() {
		return 0, false
	}
	return c.IOConfig().In.Channels, true
}

// SetFrameLen records the sink thread's fixed per-tick frame length
// (spec.md §4.6). The scene mixer consults GetFrameLen to size its reusable
// per-scene scratch buffers instead of allocating fresh ones every tick.
func (m *Manager) SetFrameLen(frameLen uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameLen = frameLen
}

// GetFrameLen returns the frame length set by SetFrameLen, or 0 if unset.
func (m *Manager) GetFrameLen() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameLen
}

// GetDeviceTypeName returns the HAL sink name convention for d, e.g.
// "primary_speaker" (spec.md §4.4 "GetDeviceTypeName").
func (m *Manager) GetDeviceTypeName(d catalog.DeviceType) string {
	return catalog.DeviceName(d)
}

// GetDeviceSinkName returns the sink name the current output device was
// last set with via SetOutputDeviceSink (spec.md §4.4 "GetDeviceSinkName").
func (m *Manager) GetDeviceSinkName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentDeviceName
}

// EffectVolumeUpdate implements spec.md §4.4 "EffectVolumeUpdate".
func (m *Manager) EffectVolumeUpdate(sessionID string, volume int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	info.Volume = volume
	m.sessions[sessionID] = info

	if m.offloadEnabled {
		max := int32(0)
		for _, s := range m.sessions {
			if s.Volume > max {
				max = s.Volume
			}
		}
		if max == m.globalVolume {
			return
		}
		sink := dspParamSink{proxy: m.hdi}
		if err := sink.pushVolume(info.Scene, max); err != nil {
			m.logger.Warn("volume", "HdiError", "HDI_VOLUME failed, falling back to AP", "err", err)
			_ = apParamSink{m: m}.pushVolume(info.Scene, max)
		}
		m.globalVolume = max
		return
	}

	for scene, bucket := range m.sceneToSessions {
		max := int32(0)
		for sid := range bucket {
			if s := m.sessions[sid]; s.Volume > max {
				max = s.Volume
			}
		}
		if max == m.sceneVolume[scene] {
			continue
		}
		m.sceneVolume[scene] = max
		if err := (apParamSink{m: m}).pushVolume(scene, max); err != nil {
			m.logger.Warn(scene.String(), "CommandError", "SetParam failed during volume update", "err", err)
		}
	}
}

// EffectRotationUpdate implements spec.md §4.4 "EffectRotationUpdate".
func (m *Manager) EffectRotationUpdate(rotation int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotation = rotation

	if m.offloadEnabled {
		sink := dspParamSink{proxy: m.hdi}
		if err := sink.pushRotation(rotation); err != nil {
			m.logger.Warn("rotation", "HdiError", "HDI_ROTATION failed, falling back to AP", "err", err)
			_ = (apParamSink{m: m}).pushRotation(rotation)
		}
		return
	}

	if err := (apParamSink{m: m}).pushRotation(rotation); err != nil {
		m.logger.Warn("rotation", "CommandError", "SetParam failed during rotation update", "err", err)
	}
}

// SetOutputDeviceSink implements spec.md §4.4 "SetOutputDeviceSink".
func (m *Manager) SetOutputDeviceSink(device catalog.DeviceType, sinkName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		m.currentDevice = device
		m.currentDeviceName = sinkName
		return
	}
	if device == m.currentDevice {
		m.currentDeviceName = sinkName
		return
	}

	oldDevice := m.currentDevice
	type migrated struct {
		scene  catalog.SceneType
		mode   catalog.Mode
		io     effect.ChainIOConfig
		refs   int
	}
	var toMigrate []migrated

	for key, c := range m.chains {
		if key.Device != oldDevice {
			continue
		}
		toMigrate = append(toMigrate, migrated{scene: key.Scene, mode: c.Mode(), io: c.IOConfig(), refs: m.refcount[key]})
		c.Release()
		delete(m.chains, key)
		delete(m.refcount, key)
	}

	m.currentDevice = device
	m.currentDeviceName = sinkName

	for _, mig := range toMigrate {
		newKey := ChainKey{Scene: mig.scene, Device: device}
		nc := effect.New(mig.scene, nil)
		m.chains[newKey] = nc
		m.refcount[newKey] = mig.refs
		m.setChainLocked(mig.scene, mig.mode)
		if mig.io.In.Channels != 0 {
			_ = nc.UpdateMultichannelIoBufferConfig(mig.io.In.Channels, mig.io.In.Layout)
		}
	}
}

// ExistAudioEffectChain implements spec.md §4.4 "ExistAudioEffectChain".
func (m *Manager) ExistAudioEffectChain(scene catalog.SceneType, mode catalog.Mode, spatialization bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized || m.currentDevice == catalog.DeviceNone {
		return false
	}
	if m.offloadEnabled {
		return false
	}
	if m.currentDevice == catalog.DeviceA2DP && !spatialization {
		return false
	}
	chainName, ok := m.sceneModeDev[sceneModeDeviceKey{scene, mode, m.currentDevice}]
	if !ok {
		return false
	}
	if _, ok := m.chainRecipes[chainName]; !ok {
		return false
	}
	c, ok := m.chains[ChainKey{Scene: scene, Device: m.currentDevice}]
	if !ok {
		return false
	}
	if c.IsEmpty() {
		return false
	}
	if spatialization && !catalog.SupportedMultichannelLayouts[catalog.ChannelLayout(c.IOConfig().In.Layout)] {
		return false
	}
	return true
}

// SetHdiParam implements spec.md §4.4 "SetHdiParam".
func (m *Manager) SetHdiParam(scene catalog.SceneType, mode catalog.Mode, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bypass := byte(0)
	if !enabled {
		bypass = 1
	}
	if _, err := m.hdi.Send(hdi.NewCommand(hdi.TagBypass, bypass)); err != nil {
		return fmt.Errorf("chainmgr: SetHdiParam HDI_BYPASS: %w", err)
	}
	if _, err := m.hdi.Send(hdi.NewCommand(hdi.TagRoomMode, byte(scene), byte(mode))); err != nil {
		return fmt.Errorf("chainmgr: SetHdiParam HDI_ROOM_MODE: %w", err)
	}
	return nil
}

// GetLatency implements spec.md §4.4 "GetLatency".
func (m *Manager) GetLatency(sessionID string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.sessions[sessionID]
	if !ok {
		return 0
	}
	if m.offloadEnabled {
		return 0
	}
	if info.Mode == catalog.ModeNone {
		return 0
	}
	if m.currentDevice == catalog.DeviceA2DP && !info.SpatializationEnabled {
		return 0
	}
	c, ok := m.chains[ChainKey{Scene: info.Scene, Device: m.currentDevice}]
	if !ok {
		return 0
	}
	return c.Latency()
}

// Dump logs every live chain, for operational debugging.
func (m *Manager) Dump() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, c := range m.chains {
		m.logger.Warn(key.Scene.String(), "Dump", "chain state",
			"device", key.Device.String(),
			"device_name", catalog.DeviceName(key.Device),
			"sink_name", m.currentDeviceName,
			"refcount", m.refcount[key])
		c.Dump()
	}
}
