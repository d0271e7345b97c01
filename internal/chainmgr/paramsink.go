package chainmgr

import (
	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/hdi"
)

// paramSink abstracts "push this parameter to the DSP via HDI" vs "push this
// parameter to every live AP chain", the dual-path pattern spec.md §9
// singles out as duplicated across volume/rotation/spatialization.
// EffectVolumeUpdate and EffectRotationUpdate each check offloadEnabled and
// pick the sink to push through.
type paramSink interface {
	pushVolume(scene catalog.SceneType, vol int32) error
	pushRotation(rot int32) error
}

// dspParamSink pushes parameters to the HDI proxy; used while offload is
// active. vol/rot go straight to the DSP, scene is informational only since
// the DSP side tracks one global volume.
type dspParamSink struct {
	proxy hdi.Proxy
}

func (s dspParamSink) pushVolume(_ catalog.SceneType, vol int32) error {
	_, err := s.proxy.Send(hdi.NewCommand(hdi.TagVolume, byte(vol)))
	return err
}

func (s dspParamSink) pushRotation(rot int32) error {
	_, err := s.proxy.Send(hdi.NewCommand(hdi.TagRotation, byte(rot)))
	return err
}

// apParamSink pushes parameters to the AP-side chain(s) via SetParam; used
// while offload is inactive (or as the HdiError fallback).
type apParamSink struct {
	m *Manager
}

func (s apParamSink) pushVolume(scene catalog.SceneType, vol int32) error {
	key := ChainKey{Scene: scene, Device: s.m.currentDevice}
	c, ok := s.m.chains[key]
	if !ok {
		return nil
	}
	return c.SetParam(s.m.rotation, vol)
}

func (s apParamSink) pushRotation(rot int32) error {
	var firstErr error
	for key, c := range s.m.chains {
		vol := s.m.sceneVolume[key.Scene]
		if err := c.SetParam(rot, vol); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
