// Package enhance implements the microphone-capture effect chain (C3): the
// same chain shape as internal/effect, but frame-oriented on interleaved PCM
// bytes with a reference/mic channel split instead of float32 ping-pong.
// Modeled on audio_enhance_chain.{h,cpp} in the original source.
package enhance

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ohaudio/audiofx/internal/effect"
)

// DataDescription is the numeric parameter block sent with the first
// SET_CONFIG a chain issues (spec.md §4.3).
type DataDescription struct {
	FrameLengthMs  uint32
	SampleRate     uint32
	DataFormatBits uint32
	MicCount       uint32
	RefCount       uint32
	OutChannels    uint32
}

type handleEntry struct {
	handle effect.Handle
	lib    *effect.Library
}

// Chain is one enhance chain, keyed by the caller at (scene, mode, up
// device, down device) granularity (spec.md §6 EnhanceChainManagerCreateCb).
type Chain struct {
	mu      sync.Mutex
	handles []handleEntry
	desc    DataDescription
	configured bool

	logger *log.Logger
}

// New constructs an enhance chain for the given numeric description.
func New(desc DataDescription, logger *log.Logger) *Chain {
	if logger == nil {
		logger = log.Default()
	}
	return &Chain{desc: desc, logger: logger}
}

// AddHandle mirrors effect.Chain.AddHandle's skip-on-failure contract but
// without the per-handle SET_PARAM step; enhance chains are parameterized
// once via SET_CONFIG on first process.
func (c *Chain) AddHandle(handle effect.Handle, lib *effect.Library) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := handle.Command(effect.CmdInit, c.desc); err != nil {
		c.logger.Warn("enhance EFFECT_CMD_INIT failed, skipping handle", "err", err)
		return false
	}
	if _, err := handle.Command(effect.CmdEnable, c.desc); err != nil {
		c.logger.Warn("enhance EFFECT_CMD_ENABLE failed, skipping handle", "err", err)
		return false
	}
	c.handles = append(c.handles, handleEntry{handle: handle, lib: lib})
	return true
}

// deinterleave splits raw interleaved capture PCM into per-channel
// channel-major buffers, zeroing the reference channels when the scene has
// no AEC reference (spec.md §4.3).
func deinterleave(raw []int16, refCount, micCount int, hasRef bool) [][]int16 {
	total := refCount + micCount
	frames := 0
	if total > 0 {
		frames = len(raw) / total
	}
	out := make([][]int16, total)
	for ch := range out {
		out[ch] = make([]int16, frames)
	}
	if !hasRef {
		// reference channels stay zeroed; only mic channels are filled from raw
		for f := 0; f < frames; f++ {
			for ch := 0; ch < micCount; ch++ {
				out[refCount+ch][f] = raw[f*total+refCount+ch]
			}
		}
		return out
	}
	for f := 0; f < frames; f++ {
		for ch := 0; ch < total; ch++ {
			out[ch][f] = raw[f*total+ch]
		}
	}
	return out
}

// reinterleave packs channel-major [ref..., mic...] buffers back into a
// single interleaved slice, the layout the effect ABI expects.
func reinterleave(channels [][]int16, frames int) []int16 {
	total := len(channels)
	out := make([]int16, frames*total)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < total; ch++ {
			out[f*total+ch] = channels[ch][f]
		}
	}
	return out
}

// Process runs one capture frame through every handle. On first call it
// also sends SET_CONFIG with the chain's DataDescription. On any handle
// failure the frame passes through unchanged (spec.md §4.3).
func (c *Chain) Process(raw []int16, hasRef bool) []int16 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.handles) == 0 {
		return raw
	}

	if !c.configured {
		for _, he := range c.handles {
			if _, err := he.handle.Command(effect.CmdSetConfig, c.desc); err != nil {
				c.logger.Warn("enhance EFFECT_CMD_SET_CONFIG failed", "err", err)
			}
		}
		c.configured = true
	}

	refCount, micCount := int(c.desc.RefCount), int(c.desc.MicCount)
	total := refCount + micCount
	if total == 0 {
		return raw
	}
	frames := len(raw) / total

	channels := deinterleave(raw, refCount, micCount, hasRef)
	interleaved := reinterleave(channels, frames)

	inAB := &effect.AudioBuffer{Raw: int16ToFloat32(interleaved), FrameLength: uint32(frames)}
	outAB := &effect.AudioBuffer{Raw: make([]float32, len(interleaved)), FrameLength: uint32(frames)}

	for _, he := range c.handles {
		if err := he.handle.Process(inAB, outAB); err != nil {
			c.logger.Warn("enhance process failed, pass-through for this frame", "err", err)
			return raw
		}
		inAB, outAB = outAB, inAB
	}

	return float32ToInt16(inAB.Raw)
}

// Release releases every remaining handle via its owning library, mirroring
// effect.Chain.Release.
func (c *Chain) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, he := range c.handles {
		if he.lib != nil && he.lib.ReleaseEffect != nil {
			_ = he.lib.ReleaseEffect(he.handle)
		}
	}
	c.handles = nil
}

// HandleCount reports the number of live handles, for tests.
func (c *Chain) HandleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v) / 32768
	}
	return out
}

func float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		s := v * 32768
		if s > 32767 {
			s = 32767
		}
		if s < -32768 {
			s = -32768
		}
		out[i] = int16(s)
	}
	return out
}
