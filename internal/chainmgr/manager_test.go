package chainmgr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/effect"
	"github.com/ohaudio/audiofx/internal/hdi"
)

var assertErr = errors.New("boom")

// copyHandle is a trivial effect: Process copies in to out and reports a
// fixed latency on SET_PARAM (recording the rotation it carries), mirroring
// internal/effect's own test double.
type copyHandle struct {
	latencyUs    int32
	failCmd      map[effect.Command]bool
	lastRotation int32
}

func (h *copyHandle) Command(cmd effect.Command, payload any) (int32, error) {
	if h.failCmd[cmd] {
		return 0, assertErr
	}
	if cmd == effect.CmdSetParam {
		if p, ok := payload.(effect.SetParamPayload); ok {
			h.lastRotation = p.Rotation
		}
		return h.latencyUs, nil
	}
	return 0, nil
}

func (h *copyHandle) Process(in, out *effect.AudioBuffer) error {
	copy(out.Raw, in.Raw)
	return nil
}

func newTestManager(t *testing.T, proxy hdi.Proxy) (*Manager, *effect.Registry) {
	t.Helper()
	reg := effect.NewRegistry(nil)
	reg.RegisterFactory("L1", func(path string) (*effect.Library, error) {
		return &effect.Library{
			Name:        "L1",
			Descriptors: []effect.Descriptor{{LibraryName: "L1", EffectName: "E1"}},
			CreateEffect: func(name string) (effect.Handle, error) {
				return &copyHandle{latencyUs: 500}, nil
			},
			ReleaseEffect: func(effect.Handle) error { return nil },
		}, nil
	})
	survivors := reg.Load(
		[]effect.LibrarySpec{{Name: "L1", Path: "L1"}},
		[]effect.EffectSpec{{EffectName: "E1", LibraryName: "L1"}},
		nil,
	)
	require.Len(t, survivors, 1)

	m := New(reg, proxy, nil, nil)
	return m, reg
}

func bootMusicScene(t *testing.T) *Manager {
	t.Helper()
	m, _ := newTestManager(t, hdi.NullProxy{})
	m.Init(
		[]effect.EffectSpec{{EffectName: "E1", LibraryName: "L1"}},
		[]RecipeSpec{{ChainName: "music_effect_chain", EffectNames: []string{"E1"}}},
		[]SceneModeDeviceEntry{{Scene: catalog.SceneMusic, Mode: catalog.ModeDefault, Device: catalog.DeviceSpeaker, ChainName: "music_effect_chain"}},
	)
	m.SetOutputDeviceSink(catalog.DeviceSpeaker, "primary_speaker")
	return m
}

// Scenario 1: boot and play a music scene.
func TestManager_BootAndPlayMusicScene(t *testing.T) {
	m := bootMusicScene(t)

	added := m.AddSession("1", SessionEffectInfo{
		Scene: catalog.SceneMusic, Mode: catalog.ModeDefault,
		Channels: 2, ChannelLayout: catalog.LayoutStereo, Volume: 10,
	})
	require.True(t, added)

	require.NoError(t, m.CreateChain(catalog.SceneMusic))

	in := []float32{1, 1, 1, 1}
	out := make([]float32, 4)
	err := m.ApplyChain(catalog.SceneMusic, BufferAttr{In: in, Out: out, FrameLen: 1, OutChannels: 4})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1}, out)

	assert.Greater(t, m.GetLatency("1"), uint32(0))
}

type recordingProxy struct {
	sent []hdi.Tag
	fail map[hdi.Tag]bool
}

func (p *recordingProxy) Send(cmd hdi.Command) (hdi.Reply, error) {
	tag := hdi.Tag(cmd[0])
	p.sent = append(p.sent, tag)
	if p.fail[tag] {
		return hdi.Reply{hdi.StatusError}, assertErr
	}
	return hdi.Reply{hdi.StatusOK}, nil
}

// Scenario 2: offload toggle.
func TestManager_OffloadToggleBackupsAndRecoversRefcount(t *testing.T) {
	proxy := &recordingProxy{}
	m, _ := newTestManager(t, proxy)
	m.Init(
		[]effect.EffectSpec{{EffectName: "E1", LibraryName: "L1"}},
		[]RecipeSpec{{ChainName: "music_effect_chain", EffectNames: []string{"E1"}}},
		[]SceneModeDeviceEntry{{Scene: catalog.SceneMusic, Mode: catalog.ModeDefault, Device: catalog.DeviceSpeaker, ChainName: "music_effect_chain"}},
	)
	m.SetOutputDeviceSink(catalog.DeviceSpeaker, "primary_speaker")
	require.NoError(t, m.CreateChain(catalog.SceneMusic))
	require.NoError(t, m.CreateChain(catalog.SceneMusic))

	key := ChainKey{Scene: catalog.SceneMusic, Device: catalog.DeviceSpeaker}
	require.Equal(t, 2, m.refcount[key])

	m.UpdateSpatializationState(SpatializationState{Spatialization: true, HeadTracking: false})
	assert.Contains(t, proxy.sent, hdi.TagInit)
	_, exists := m.chains[key]
	assert.False(t, exists)
	assert.Equal(t, 2, m.backupRefcounts[key])

	m.UpdateSpatializationState(SpatializationState{Spatialization: false, HeadTracking: false})
	assert.Contains(t, proxy.sent, hdi.TagDestroy)
	_, exists = m.chains[key]
	assert.True(t, exists)
	assert.Equal(t, 2, m.refcount[key])
}

// Scenario 3: device change preserves mode and io-config.
func TestManager_SetOutputDeviceSinkPreservesModeAndIOConfig(t *testing.T) {
	m := bootMusicScene(t)
	require.NoError(t, m.CreateChain(catalog.SceneMusic))

	oldKey := ChainKey{Scene: catalog.SceneMusic, Device: catalog.DeviceSpeaker}
	require.NoError(t, m.chains[oldKey].UpdateMultichannelIoBufferConfig(4, uint64(catalog.Layout5Point1Back)))
	m.refcount[oldKey] = 3

	m.SetOutputDeviceSink(catalog.DeviceHeadset, "primary_wired_headset")

	_, stillExists := m.chains[oldKey]
	assert.False(t, stillExists)

	newKey := ChainKey{Scene: catalog.SceneMusic, Device: catalog.DeviceHeadset}
	newChain, ok := m.chains[newKey]
	require.True(t, ok)
	assert.Equal(t, catalog.ModeDefault, newChain.Mode())
	assert.Equal(t, uint32(4), newChain.IOConfig().In.Channels)
	assert.Equal(t, 3, m.refcount[newKey])
}

// ∀ live ChainKey k: refcount[k] > 0 ⇔ k ∈ chains.
func TestManager_RefcountChainsInvariant(t *testing.T) {
	m := bootMusicScene(t)
	require.NoError(t, m.CreateChain(catalog.SceneMusic))
	require.NoError(t, m.CreateChain(catalog.SceneMusic))

	key := ChainKey{Scene: catalog.SceneMusic, Device: catalog.DeviceSpeaker}
	_, inChains := m.chains[key]
	assert.Equal(t, m.refcount[key] > 0, inChains)

	m.ReleaseChain(catalog.SceneMusic)
	_, inChains = m.chains[key]
	assert.Equal(t, m.refcount[key] > 0, inChains)

	m.ReleaseChain(catalog.SceneMusic)
	_, inChains = m.chains[key]
	assert.False(t, inChains)
	assert.Equal(t, 0, m.refcount[key])
}

// AddSession(id) then RemoveSession(id) restores the session map.
func TestManager_AddRemoveSessionRoundTrip(t *testing.T) {
	m := bootMusicScene(t)
	before := len(m.sessions)

	require.True(t, m.AddSession("s1", SessionEffectInfo{Scene: catalog.SceneMusic}))
	require.True(t, m.RemoveSession("s1"))

	assert.Len(t, m.sessions, before)
	assert.False(t, m.sceneToSessions[catalog.SceneMusic]["s1"])
}

// CreateChain(s) then ReleaseChain(s) on an otherwise empty manager leaves
// no chain under (s, device).
func TestManager_CreateThenReleaseLeavesNoChain(t *testing.T) {
	m := bootMusicScene(t)
	require.NoError(t, m.CreateChain(catalog.SceneMusic))
	m.ReleaseChain(catalog.SceneMusic)

	key := ChainKey{Scene: catalog.SceneMusic, Device: catalog.DeviceSpeaker}
	_, exists := m.chains[key]
	assert.False(t, exists)
}

// Scenario 6: rotation propagation across two live scenes.
func TestManager_EffectRotationUpdatePropagatesToAllLiveChains(t *testing.T) {
	m, reg := newTestManager(t, hdi.NullProxy{})
	var handles []*copyHandle
	reg.RegisterFactory("L1", func(path string) (*effect.Library, error) {
		return &effect.Library{
			Name:        "L1",
			Descriptors: []effect.Descriptor{{LibraryName: "L1", EffectName: "E1"}},
			CreateEffect: func(name string) (effect.Handle, error) {
				h := &copyHandle{latencyUs: 500}
				handles = append(handles, h)
				return h, nil
			},
			ReleaseEffect: func(effect.Handle) error { return nil },
		}, nil
	})
	reg.Load(
		[]effect.LibrarySpec{{Name: "L1", Path: "L1"}},
		[]effect.EffectSpec{{EffectName: "E1", LibraryName: "L1"}},
		nil,
	)
	m.Init(
		[]effect.EffectSpec{{EffectName: "E1", LibraryName: "L1"}},
		[]RecipeSpec{{ChainName: "chain", EffectNames: []string{"E1"}}},
		[]SceneModeDeviceEntry{
			{Scene: catalog.SceneMusic, Mode: catalog.ModeDefault, Device: catalog.DeviceSpeaker, ChainName: "chain"},
			{Scene: catalog.SceneGame, Mode: catalog.ModeDefault, Device: catalog.DeviceSpeaker, ChainName: "chain"},
		},
	)
	m.SetOutputDeviceSink(catalog.DeviceSpeaker, "primary_speaker")
	require.NoError(t, m.CreateChain(catalog.SceneMusic))
	require.NoError(t, m.CreateChain(catalog.SceneGame))

	m.EffectRotationUpdate(90)

	assert.Equal(t, int32(90), m.rotation)
	require.Len(t, handles, 2)
	for _, h := range handles {
		assert.Equal(t, int32(90), h.lastRotation)
	}
}

// Applying a scene with no chain returns ResourceMissing and still copies
// in to out.
func TestManager_ApplyChainWithNoChainReturnsResourceMissingAndMemcpies(t *testing.T) {
	m := bootMusicScene(t)

	in := []float32{3, 4}
	out := make([]float32, 2)
	err := m.ApplyChain(catalog.SceneGame, BufferAttr{In: in, Out: out, FrameLen: 1, OutChannels: 2})

	require.Error(t, err)
	assert.Equal(t, []float32{3, 4}, out)
}

func TestManager_ExistAudioEffectChainFalseWhenOffloaded(t *testing.T) {
	m := bootMusicScene(t)
	require.NoError(t, m.CreateChain(catalog.SceneMusic))
	m.offloadEnabled = true

	assert.False(t, m.ExistAudioEffectChain(catalog.SceneMusic, catalog.ModeDefault, true))
}

func TestManager_ExistAudioEffectChainTrueForSupportedLayoutWithSpatialization(t *testing.T) {
	m := bootMusicScene(t)
	require.NoError(t, m.CreateChain(catalog.SceneMusic))

	c := m.chains[ChainKey{Scene: catalog.SceneMusic, Device: catalog.DeviceSpeaker}]
	require.NoError(t, c.UpdateMultichannelIoBufferConfig(6, uint64(catalog.Layout5Point1Dot2)))

	assert.True(t, m.ExistAudioEffectChain(catalog.SceneMusic, catalog.ModeDefault, true))
}

func TestManager_ExistAudioEffectChainFalseForUnsupportedLayoutWithSpatialization(t *testing.T) {
	m := bootMusicScene(t)
	require.NoError(t, m.CreateChain(catalog.SceneMusic))

	c := m.chains[ChainKey{Scene: catalog.SceneMusic, Device: catalog.DeviceSpeaker}]
	require.NoError(t, c.UpdateMultichannelIoBufferConfig(4, 0x0F)) // quad: not in the spatializer's supported set

	assert.False(t, m.ExistAudioEffectChain(catalog.SceneMusic, catalog.ModeDefault, true))
}

func TestManager_ExistAudioEffectChainIgnoresLayoutWhenSpatializationOff(t *testing.T) {
	m := bootMusicScene(t)
	require.NoError(t, m.CreateChain(catalog.SceneMusic))

	c := m.chains[ChainKey{Scene: catalog.SceneMusic, Device: catalog.DeviceSpeaker}]
	require.NoError(t, c.UpdateMultichannelIoBufferConfig(4, 0x0F))

	assert.True(t, m.ExistAudioEffectChain(catalog.SceneMusic, catalog.ModeDefault, false))
}

func TestManager_FrameLenRoundTrips(t *testing.T) {
	m, _ := newTestManager(t, hdi.NullProxy{})

	assert.Equal(t, uint32(0), m.GetFrameLen())
	m.SetFrameLen(480)
	assert.Equal(t, uint32(480), m.GetFrameLen())
}

func TestManager_GetDeviceTypeNameAndSinkName(t *testing.T) {
	m := bootMusicScene(t)

	assert.Equal(t, "primary_speaker", m.GetDeviceTypeName(catalog.DeviceSpeaker))
	assert.Equal(t, "primary_speaker", m.GetDeviceSinkName())
}

func TestManager_SetHdiParamSendsBypassThenRoomMode(t *testing.T) {
	proxy := &recordingProxy{}
	m, _ := newTestManager(t, proxy)
	require.NoError(t, m.SetHdiParam(catalog.SceneMusic, catalog.ModeDefault, true))
	assert.Equal(t, []hdi.Tag{hdi.TagBypass, hdi.TagRoomMode}, proxy.sent)
}
