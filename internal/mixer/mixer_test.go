package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/chainmgr"
)

type fakeChainApplier struct {
	channelsFor map[catalog.SceneType]uint32
	applyFn     func(scene catalog.SceneType, attr chainmgr.BufferAttr) error
	frameLen    uint32
}

func (f *fakeChainApplier) InputChannelsFor(scene catalog.SceneType) (uint32, bool) {
	ch, ok := f.channelsFor[scene]
	return ch, ok
}

func (f *fakeChainApplier) GetFrameLen() uint32 {
	return f.frameLen
}

func (f *fakeChainApplier) ApplyChain(scene catalog.SceneType, attr chainmgr.BufferAttr) error {
	if f.applyFn != nil {
		return f.applyFn(scene, attr)
	}
	copy(attr.Out, attr.In)
	return nil
}

type fakeCapture struct {
	writes map[catalog.SceneType][]float32
}

func (f *fakeCapture) Write(scene catalog.SceneType, samples []float32) {
	if f.writes == nil {
		f.writes = make(map[catalog.SceneType][]float32)
	}
	f.writes[scene] = samples
}

func TestMixer_RenderTickMixesAndClampsStereoBucket(t *testing.T) {
	chains := &fakeChainApplier{channelsFor: map[catalog.SceneType]uint32{catalog.SceneMusic: 2}}
	m := New(chains, nil, 2, catalog.LayoutStereo)

	inputs := []SinkInput{
		{Scene: catalog.SceneMusic, Channels: 2, Samples: []float32{0.6, 0.6}},
		{Scene: catalog.SceneMusic, Channels: 2, Samples: []float32{0.6, 0.6}},
	}
	out := m.RenderTick(inputs, 1)

	require.Len(t, out, 2)
	assert.InDelta(t, float32(0.99), out[0], 0.0001, "sum of 1.2 must clamp to 0.99")
	assert.InDelta(t, float32(0.99), out[1], 0.0001)
}

func TestMixer_RenderTickRoutesNoChainSceneToEffectNonePath(t *testing.T) {
	chains := &fakeChainApplier{channelsFor: map[catalog.SceneType]uint32{}}
	m := New(chains, nil, 2, catalog.LayoutStereo)

	inputs := []SinkInput{
		{Scene: catalog.SceneGame, Channels: 2, Samples: []float32{0.1, 0.2}},
	}
	out := m.RenderTick(inputs, 1)
	assert.Equal(t, []float32{0.1, 0.2}, out)
}

func TestMixer_RenderTickResamplesMismatchedChannelCount(t *testing.T) {
	chains := &fakeChainApplier{channelsFor: map[catalog.SceneType]uint32{catalog.SceneMusic: 1}}
	m := New(chains, nil, 2, catalog.LayoutStereo)

	// stereo input but chain expects mono: averaged to 1ch, then upmixed
	// back to stereo post-chain (pass-through ApplyChain here).
	inputs := []SinkInput{
		{Scene: catalog.SceneMusic, Channels: 2, Samples: []float32{0.4, 0.2}},
	}
	out := m.RenderTick(inputs, 1)
	require.Len(t, out, 2)
	assert.InDelta(t, float32(0.3), out[0], 0.0001)
	assert.InDelta(t, float32(0.3), out[1], 0.0001)
}

func TestMixer_RenderTickCapturesPreEffectAudio(t *testing.T) {
	cap := &fakeCapture{}
	chains := &fakeChainApplier{
		channelsFor: map[catalog.SceneType]uint32{catalog.SceneMusic: 2},
		applyFn: func(scene catalog.SceneType, attr chainmgr.BufferAttr) error {
			// effect doubles the signal; capture must still see the
			// pre-effect (unmodified) mix, not this.
			for i := range attr.Out {
				attr.Out[i] = attr.In[i] * 2
			}
			return nil
		},
	}
	m := New(chains, cap, 2, catalog.LayoutStereo)

	inputs := []SinkInput{{Scene: catalog.SceneMusic, Channels: 2, Samples: []float32{0.1, 0.1}}}
	out := m.RenderTick(inputs, 1)

	require.Contains(t, cap.writes, catalog.SceneMusic)
	assert.Equal(t, []float32{0.1, 0.1}, cap.writes[catalog.SceneMusic], "capture tap must see pre-effect audio")
	assert.InDelta(t, float32(0.2), out[0], 0.0001, "sink output reflects the post-effect result")
}

func TestMixer_RenderTickScratchBuffersDoNotLeakAcrossTicks(t *testing.T) {
	chains := &fakeChainApplier{channelsFor: map[catalog.SceneType]uint32{catalog.SceneMusic: 2}, frameLen: 1}
	m := New(chains, nil, 2, catalog.LayoutStereo)

	first := m.RenderTick([]SinkInput{
		{Scene: catalog.SceneMusic, Channels: 2, Samples: []float32{0.5, 0.5}},
		{Scene: catalog.SceneMusic, Channels: 2, Samples: []float32{0.4, 0.4}},
	}, 1)
	require.Len(t, first, 2)
	assert.InDelta(t, float32(0.9), first[0], 0.0001)

	// Second tick contributes a single, smaller-valued session. If the
	// reused per-scene scratch buffer weren't re-zeroed before reuse, this
	// would still carry the first tick's 0.9 contribution.
	second := m.RenderTick([]SinkInput{
		{Scene: catalog.SceneMusic, Channels: 2, Samples: []float32{0.1, 0.1}},
	}, 1)
	require.Len(t, second, 2)
	assert.InDelta(t, float32(0.1), second[0], 0.0001)
	assert.InDelta(t, float32(0.1), second[1], 0.0001)
}

func TestMixer_RegisterInnerCaptureReceivesPreEffectAudioUntilUnregistered(t *testing.T) {
	chains := &fakeChainApplier{
		channelsFor: map[catalog.SceneType]uint32{catalog.SceneMusic: 2},
		applyFn: func(scene catalog.SceneType, attr chainmgr.BufferAttr) error {
			for i := range attr.Out {
				attr.Out[i] = attr.In[i] * 2
			}
			return nil
		},
	}
	m := New(chains, nil, 2, catalog.LayoutStereo)

	cap := &fakeCapture{}
	token := m.RegisterInnerCapture(cap)

	inputs := []SinkInput{{Scene: catalog.SceneMusic, Channels: 2, Samples: []float32{0.1, 0.1}}}
	out := m.RenderTick(inputs, 1)

	require.Contains(t, cap.writes, catalog.SceneMusic)
	assert.Equal(t, []float32{0.1, 0.1}, cap.writes[catalog.SceneMusic])
	assert.InDelta(t, float32(0.2), out[0], 0.0001)

	m.UnregisterInnerCapture(token)
	cap.writes = nil
	m.RenderTick(inputs, 1)
	assert.Nil(t, cap.writes, "unregistered subscriber must receive nothing further")
}

func TestMixer_RegisterInnerCaptureSupportsMultipleConcurrentSubscribers(t *testing.T) {
	chains := &fakeChainApplier{channelsFor: map[catalog.SceneType]uint32{catalog.SceneMusic: 2}}
	m := New(chains, nil, 2, catalog.LayoutStereo)

	first, second := &fakeCapture{}, &fakeCapture{}
	m.RegisterInnerCapture(first)
	m.RegisterInnerCapture(second)

	m.RenderTick([]SinkInput{{Scene: catalog.SceneMusic, Channels: 2, Samples: []float32{0.2, 0.2}}}, 1)

	assert.Equal(t, []float32{0.2, 0.2}, first.writes[catalog.SceneMusic])
	assert.Equal(t, []float32{0.2, 0.2}, second.writes[catalog.SceneMusic])
}

func TestNewMultichannelBranch_TargetsFixedSixChannelLayout(t *testing.T) {
	m := NewMultichannelBranch(&fakeChainApplier{channelsFor: map[catalog.SceneType]uint32{}}, nil)
	assert.Equal(t, uint32(6), m.OutChannels)
	assert.Equal(t, catalog.LayoutMultichannelDefault, m.OutLayout)
}
