package chainmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/effect"
	"github.com/ohaudio/audiofx/internal/enhance"
)

func newTestEnhanceManager(t *testing.T) *EnhanceChainManager {
	t.Helper()
	reg := effect.NewRegistry(nil)
	reg.RegisterFactory("L1", func(path string) (*effect.Library, error) {
		return &effect.Library{
			Name:        "L1",
			Descriptors: []effect.Descriptor{{LibraryName: "L1", EffectName: "AEC"}},
			CreateEffect: func(name string) (effect.Handle, error) {
				return &copyHandle{}, nil
			},
			ReleaseEffect: func(effect.Handle) error { return nil },
		}, nil
	})
	reg.Load(
		[]effect.LibrarySpec{{Name: "L1", Path: "L1"}},
		[]effect.EffectSpec{{EffectName: "AEC", LibraryName: "L1"}},
		nil,
	)

	m := NewEnhanceChainManager(reg, enhance.DataDescription{MicCount: 1, RefCount: 1}, nil)
	m.Init(
		[]EnhanceRecipeSpec{{ChainName: "capture_chain", EffectNames: []string{"AEC"}}},
		[]EnhanceSceneModeDevEntry{{Scene: catalog.SceneMusic, Mode: catalog.ModeDefault, UpDev: catalog.DeviceSpeaker, DownDev: catalog.DeviceNone, ChainName: "capture_chain"}},
	)
	return m
}

func TestEnhanceChainManager_CreateChainRefcountsOnRepeat(t *testing.T) {
	m := newTestEnhanceManager(t)
	key := EnhanceKey{Scene: catalog.SceneMusic, Mode: catalog.ModeDefault, UpDev: catalog.DeviceSpeaker, DownDev: catalog.DeviceNone}

	m.CreateChain(key.Scene, key.Mode, key.UpDev, key.DownDev)
	m.CreateChain(key.Scene, key.Mode, key.UpDev, key.DownDev)

	require.Equal(t, 2, m.refcount[key])
	assert.Equal(t, 1, m.HandleCount(key))
}

func TestEnhanceChainManager_ReleaseChainDropsAtZero(t *testing.T) {
	m := newTestEnhanceManager(t)
	key := EnhanceKey{Scene: catalog.SceneMusic, Mode: catalog.ModeDefault, UpDev: catalog.DeviceSpeaker, DownDev: catalog.DeviceNone}

	m.CreateChain(key.Scene, key.Mode, key.UpDev, key.DownDev)
	m.ReleaseChain(key.Scene, key.Mode, key.UpDev, key.DownDev)

	_, exists := m.chains[key]
	assert.False(t, exists)
}

func TestEnhanceChainManager_ProcessWithoutChainPassesThrough(t *testing.T) {
	m := newTestEnhanceManager(t)
	raw := []int16{1, 2, 3, 4}
	out := m.Process(catalog.SceneGame, catalog.ModeDefault, catalog.DeviceSpeaker, catalog.DeviceNone, raw, true)
	assert.Equal(t, raw, out)
}

func TestEnhanceChainManager_ProcessWithChainRunsHandle(t *testing.T) {
	m := newTestEnhanceManager(t)
	key := EnhanceKey{Scene: catalog.SceneMusic, Mode: catalog.ModeDefault, UpDev: catalog.DeviceSpeaker, DownDev: catalog.DeviceNone}
	m.CreateChain(key.Scene, key.Mode, key.UpDev, key.DownDev)

	raw := []int16{100, -100, 50, -50}
	out := m.Process(key.Scene, key.Mode, key.UpDev, key.DownDev, raw, true)
	require.Len(t, out, len(raw))
}
