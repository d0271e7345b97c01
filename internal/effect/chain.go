package effect

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ohaudio/audiofx/internal/catalog"
)

// ProcInfo carries the per-apply context a chain needs but does not own:
// whether head tracking and offload are currently active (spec.md §4.4
// "AudioEffectProcInfo").
type ProcInfo struct {
	HeadTrackingEnabled bool
	OffloadEnabled      bool
	Posture             HeadPosture
}

// handleEntry pairs a live handle with the library that created it, so
// Release can call back into the right ReleaseEffect (spec.md §3
// "lib_refs (aligned to handles)").
type handleEntry struct {
	handle Handle
	lib    *Library
}

// Chain is one (scene, device) effect chain (C2). It owns an ordered list
// of effect handles, a serializing lock, and the negotiated IO config.
// Modeled on AudioEffectChain in audio_effect_chain.{h,cpp}.
type Chain struct {
	Scene catalog.SceneType

	mu      sync.Mutex
	mode    catalog.Mode
	handles []handleEntry
	io      ChainIOConfig
	latency uint32

	logger *log.Logger
}

// New constructs an empty chain with no handles and the default io-config
// (spec.md §4.2 "Construction").
func New(scene catalog.SceneType, logger *log.Logger) *Chain {
	if logger == nil {
		logger = log.Default()
	}
	return &Chain{
		Scene:  scene,
		mode:   catalog.ModeDefault,
		io:     DefaultChainIOConfig(),
		logger: logger.With("scene", scene.String()),
	}
}

// SetMode only records the label; it does not itself rebuild the chain
// (spec.md §4.2).
func (c *Chain) SetMode(mode catalog.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}

// Mode returns the currently recorded mode.
func (c *Chain) Mode() catalog.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// IOConfig returns a copy of the chain's negotiated io-config.
func (c *Chain) IOConfig() ChainIOConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.io
}

// IsEmpty reports whether the chain currently has zero handles.
func (c *Chain) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles) == 0
}

// Latency returns the chain's last-published accumulated latency in
// microseconds.
func (c *Chain) Latency() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

func setParamPayload(scene catalog.SceneType, mode catalog.Mode, rotation int32, apVolume int32) SetParamPayload {
	return SetParamPayload{
		Marker:   EffectSetParamMarker,
		Scene:    int32(scene),
		Mode:     int32(mode),
		Rotation: rotation,
		APVolume: apVolume,
	}
}

// AddHandle runs a newly created handle through INIT/ENABLE/SET_CONFIG/
// SET_PARAM and appends it on success. On any command failure the handle is
// NOT appended — per spec.md §4.2, the caller still owns it and must
// release it. rotation and apVolume seed the first SET_PARAM call.
func (c *Chain) AddHandle(handle Handle, lib *Library, rotation int32, apVolume int32) (added bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	io := c.io
	if _, err := handle.Command(CmdInit, io); err != nil {
		c.logger.Warn("EFFECT_CMD_INIT failed, skipping handle", "mode", c.mode, "err", err)
		return false
	}
	if _, err := handle.Command(CmdEnable, io); err != nil {
		c.logger.Warn("EFFECT_CMD_ENABLE failed, skipping handle", "mode", c.mode, "err", err)
		return false
	}
	if _, err := handle.Command(CmdSetConfig, io); err != nil {
		c.logger.Warn("EFFECT_CMD_SET_CONFIG failed, skipping handle", "mode", c.mode, "err", err)
		return false
	}
	reply, err := handle.Command(CmdSetParam, setParamPayload(c.Scene, c.mode, rotation, apVolume))
	if err != nil {
		c.logger.Warn("EFFECT_CMD_SET_PARAM failed, skipping handle", "mode", c.mode, "err", err)
		return false
	}

	c.handles = append(c.handles, handleEntry{handle: handle, lib: lib})
	c.latency += uint32(reply)
	return true
}

// SetParam reruns EFFECT_CMD_SET_PARAM for every handle, resetting latency
// to zero before accumulating (spec.md §4.2).
func (c *Chain) SetParam(rotation int32, apVolume int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latency = 0
	for i := range c.handles {
		reply, err := c.handles[i].handle.Command(CmdSetParam, setParamPayload(c.Scene, c.mode, rotation, apVolume))
		if err != nil {
			return fmt.Errorf("effect: SetParam: %w", err)
		}
		c.latency += uint32(reply)
	}
	return nil
}

// ApplyChain is the hot path (spec.md §4.2 "ApplyChain"). Frame length 0
// returns immediately without touching buffers. An empty chain degenerates
// to a memcpy. Otherwise handles ping-pong between inBuf/outBuf; a handle
// whose Process fails is bypassed for that frame only — the chain is never
// aborted. The ping-pong parity is tracked by count of *successful*
// processes, not loop index, so a mid-chain failure can never strand the
// result in the wrong buffer (spec.md §9 design note, §8 boundary case).
func (c *Chain) ApplyChain(inBuf, outBuf []float32, frameLen uint32, info ProcInfo) {
	if frameLen == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	outChannels := c.io.Out.Channels
	if len(c.handles) == 0 {
		n := int(frameLen * outChannels)
		copy(outBuf[:n], inBuf[:n])
		return
	}

	count := 0
	for _, he := range c.handles {
		if info.HeadTrackingEnabled && !info.OffloadEnabled {
			_, _ = he.handle.Command(CmdSetIMU, info.Posture)
		}

		var in, out []float32
		if count&1 == 0 {
			in, out = inBuf, outBuf
		} else {
			in, out = outBuf, inBuf
		}

		inAB := &AudioBuffer{Raw: in, FrameLength: frameLen}
		outAB := &AudioBuffer{Raw: out, FrameLength: frameLen}
		if err := he.handle.Process(inAB, outAB); err != nil {
			c.logger.Warn("effect process failed, bypassing for this frame", "err", err)
			continue
		}
		count++
	}

	if count&1 == 0 {
		n := int(frameLen * outChannels)
		copy(outBuf[:n], inBuf[:n])
	}
}

// UpdateMultichannelIoBufferConfig updates the chain's input channel
// count/layout and broadcasts SET_CONFIG to every handle. A no-op if
// unchanged. Reports the first error but does not roll back — the chain is
// considered degraded until the next SetMode rebuild (spec.md §4.2).
func (c *Chain) UpdateMultichannelIoBufferConfig(channels uint32, layout uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.io.In.Channels == channels && c.io.In.Layout == layout {
		return nil
	}
	c.io.In.Channels = channels
	c.io.In.Layout = layout

	var firstErr error
	for _, he := range c.handles {
		if _, err := he.handle.Command(CmdSetConfig, c.io); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("effect: UpdateMultichannelIoBufferConfig: %w", err)
		}
	}
	return firstErr
}

// HeadTrackingDisabled sends an identity posture to every handle, flushing
// internal rotation state before a future session might re-enable tracking
// (spec.md §4.2).
func (c *Chain) HeadTrackingDisabled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, he := range c.handles {
		if _, err := he.handle.Command(CmdSetIMU, IdentityHeadPosture()); err != nil {
			c.logger.Warn("SetHeadTrackingDisabled failed", "err", err)
		}
	}
}

// Release calls ReleaseEffect on every remaining (handle, library) pair and
// clears both lists. Safe to call multiple times (spec.md §4.2).
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

// Dump logs the chain's live state for operational debugging, mirroring
// AudioEffectChain::Dump in the original source.
func (c *Chain) Dump() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Info("chain dump", "mode", c.mode.String(), "handles", len(c.handles), "latency_us", c.latency,
		"in_channels", c.io.In.Channels, "out_channels", c.io.Out.Channels)
}

// HandleCount reports the number of live handles, for tests and diagnostics.
func (c *Chain) HandleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}
