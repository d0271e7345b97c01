// Package mixer implements the Scene Mixer (C5): partitions sink inputs
// into per-scene buckets, resamples each bucket to its chain's expected
// channel count, applies the chain, and accumulates into a per-tick sink
// buffer with clipping. Modeled on module_effect_sink.c's per-bucket mixer
// call structure from the original source.
package mixer

import (
	"sync"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/chainmgr"
)

// SinkInput is one active session's contribution to a render tick (spec.md
// §3 "Sink input (scene mixer view)").
type SinkInput struct {
	SessionID             string
	Scene                 catalog.SceneType
	Mode                  catalog.Mode
	SpatializationEnabled bool
	Channels              uint32
	Layout                catalog.ChannelLayout
	Samples               []float32 // interleaved, Channels-wide, this tick's frame count
	A2DPOffload           bool
}

// ChainApplier is the subset of chainmgr.Manager the mixer needs: apply a
// scene's chain, learn the channel count it expects on input, and report
// the sink thread's declared per-tick frame length.
type ChainApplier interface {
	ApplyChain(scene catalog.SceneType, attr chainmgr.BufferAttr) error
	InputChannelsFor(scene catalog.SceneType) (uint32, bool)
	GetFrameLen() uint32
}

// CaptureSink receives the pre-effect mixed PCM for the inner-capture
// (loopback) monitor. Per spec.md §4.5 step 5 / §9 open question, the tap
// only ever sees pre-effect audio — intentionally, so captured audio is
// device-agnostic regardless of which DSP chain happens to be live.
type CaptureSink interface {
	Write(scene catalog.SceneType, samples []float32)
}

// InnerCaptureToken identifies one RegisterInnerCapture subscription, to be
// passed back to UnregisterInnerCapture.
type InnerCaptureToken int

const clampLimit = 0.99

// Mixer runs one sink's render tick (spec.md §4.5). OutChannels is the
// final sink channel count every bucket's contribution is resampled into
// before summation (stereo for the primary branch, 6 for multichannel).
type Mixer struct {
	chains      ChainApplier
	OutChannels uint32
	OutLayout   catalog.ChannelLayout

	// mixedScratch/effectScratch hold each scene's reusable pre/post-chain
	// buffers, preallocated to chains.GetFrameLen() frames (spec.md's
	// SUPPLEMENTED FEATURES "GetFrameLen ... used by the mixer to size
	// scratch buffers") so a steady-state tick at the declared frame length
	// never reallocates.
	mixedScratch  map[catalog.SceneType][]float32
	effectScratch map[catalog.SceneType][]float32

	// captureMu guards captures/nextCaptureToken, since RegisterInnerCapture
	// and UnregisterInnerCapture are called from the IPC goroutine while
	// RenderTick runs on the sink's own goroutine, modeled on
	// playback_capturer_manager.cpp's token-keyed capturer set.
	captureMu        sync.Mutex
	captures         map[InnerCaptureToken]CaptureSink
	nextCaptureToken InnerCaptureToken
}

// New constructs a Mixer targeting the given sink channel count/layout. A
// non-nil capture is registered as the mixer's first inner-capture
// subscriber; callers wanting to add or remove consumers afterwards use
// RegisterInnerCapture/UnregisterInnerCapture.
func New(chains ChainApplier, capture CaptureSink, outChannels uint32, outLayout catalog.ChannelLayout) *Mixer {
	m := &Mixer{
		chains: chains, OutChannels: outChannels, OutLayout: outLayout,
		mixedScratch:  make(map[catalog.SceneType][]float32),
		effectScratch: make(map[catalog.SceneType][]float32),
		captures:      make(map[InnerCaptureToken]CaptureSink),
	}
	if capture != nil {
		m.RegisterInnerCapture(capture)
	}
	return m
}

// RegisterInnerCapture subscribes sink to the mixer's pre-effect mixed PCM
// for every scene, returning a token to later pass to
// UnregisterInnerCapture. Multiple subscribers may be registered at once.
func (m *Mixer) RegisterInnerCapture(sink CaptureSink) InnerCaptureToken {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	m.nextCaptureToken++
	token := m.nextCaptureToken
	m.captures[token] = sink
	return token
}

// UnregisterInnerCapture removes the subscription identified by token.
// Unregistering an unknown or already-removed token is a no-op.
func (m *Mixer) UnregisterInnerCapture(token InnerCaptureToken) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	delete(m.captures, token)
}

// writeCapture fans samples out to every registered inner-capture
// subscriber. Returns immediately without copying samples if nobody is
// subscribed.
func (m *Mixer) writeCapture(scene catalog.SceneType, samples []float32) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	if len(m.captures) == 0 {
		return
	}
	for _, c := range m.captures {
		c.Write(scene, samples)
	}
}

// NewMultichannelBranch constructs a Mixer for the multichannel branch,
// which always targets the fixed 6-channel device layout 1551 (spec.md
// §4.5 "The multichannel branch ... uses a fixed device layout").
func NewMultichannelBranch(chains ChainApplier, capture CaptureSink) *Mixer {
	return New(chains, capture, 6, catalog.LayoutMultichannelDefault)
}

// RenderTick partitions inputs into scene buckets, mixes and applies each
// bucket's chain, and returns the accumulated, clamped sink buffer (spec.md
// §4.5). frameLen is the number of sample frames this tick covers.
func (m *Mixer) RenderTick(inputs []SinkInput, frameLen uint32) []float32 {
	out := make([]float32, int(frameLen)*int(m.OutChannels))

	buckets := partition(inputs)
	for _, scene := range catalog.Scenes {
		bucket := buckets[scene]
		if len(bucket) == 0 {
			continue
		}
		m.renderBucket(scene, bucket, frameLen, out)
	}
	if bucket := buckets[catalog.SceneEffectNone]; len(bucket) > 0 {
		m.renderEffectNoneBucket(bucket, frameLen, out)
	}

	clamp(out)
	return out
}

// partition groups inputs by scene; renderBucket redirects a scene whose
// chain the ChainApplier reports as absent/empty to the virtual
// EFFECT_NONE path (spec.md §4.5 step 2).
func partition(inputs []SinkInput) map[catalog.SceneType][]SinkInput {
	buckets := make(map[catalog.SceneType][]SinkInput)
	for _, in := range inputs {
		buckets[in.Scene] = append(buckets[in.Scene], in)
	}
	return buckets
}

func (m *Mixer) renderBucket(scene catalog.SceneType, bucket []SinkInput, frameLen uint32, out []float32) {
	expected, ok := m.chains.InputChannelsFor(scene)
	if !ok {
		m.renderEffectNoneBucket(bucket, frameLen, out)
		return
	}

	mixed := m.scratch(m.mixedScratch, scene, int(frameLen)*int(expected))
	for _, in := range bucket {
		resampled := in.Samples
		if in.Channels != expected {
			resampled = ResampleChannels(in.Samples, int(in.Channels), int(expected))
		}
		addInto(mixed, resampled)
	}

	m.writeCapture(scene, append([]float32(nil), mixed...))

	effectOut := m.scratch(m.effectScratch, scene, len(mixed))
	attr := chainmgr.BufferAttr{
		In: mixed, Out: effectOut,
		FrameLen: frameLen, InChannels: expected, OutChannels: expected,
	}
	_ = m.chains.ApplyChain(scene, attr)

	final := effectOut
	if expected != m.OutChannels {
		final = ResampleChannels(effectOut, int(expected), int(m.OutChannels))
	}
	addInto(out, final)
}

// scratch returns pool[scene] zeroed and resized to exactly n elements,
// growing its backing array to at least chains.GetFrameLen() frames of
// m.OutChannels headroom on first use so later ticks at the declared frame
// length reuse the same allocation instead of allocating fresh every tick.
func (m *Mixer) scratch(pool map[catalog.SceneType][]float32, scene catalog.SceneType, n int) []float32 {
	buf := pool[scene]
	if cap(buf) < n {
		prealloc := int(m.chains.GetFrameLen()) * int(m.OutChannels)
		if prealloc < n {
			prealloc = n
		}
		buf = make([]float32, prealloc)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = 0
	}
	pool[scene] = buf
	return buf
}

func (m *Mixer) renderEffectNoneBucket(bucket []SinkInput, frameLen uint32, out []float32) {
	for _, in := range bucket {
		resampled := in.Samples
		if in.Channels != m.OutChannels {
			resampled = ResampleChannels(in.Samples, int(in.Channels), int(m.OutChannels))
		}
		m.writeCapture(catalog.SceneEffectNone, append([]float32(nil), resampled...))
		addInto(out, resampled)
	}
}

func addInto(dst, src []float32) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] += src[i]
	}
}

func clamp(buf []float32) {
	for i, v := range buf {
		if v > clampLimit {
			buf[i] = clampLimit
		} else if v < -clampLimit {
			buf[i] = -clampLimit
		}
	}
}
