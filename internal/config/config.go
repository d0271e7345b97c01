// Package config loads the boot-time effect registry and routing tables
// (libraries, effects, recipes, the scene/mode/device → chain_name map) from
// a YAML file, the same way src/deviceid.go loads tocalls.yaml: read once at
// startup, search a fixed list of candidate locations, unmarshal with
// gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/chainmgr"
	"github.com/ohaudio/audiofx/internal/effect"
)

// SearchLocations is the fixed candidate list Load walks, current directory
// first, following deviceid.go's search_locations convention.
var SearchLocations = []string{
	"audiofx.yaml",
	"data/audiofx.yaml",
	"../data/audiofx.yaml",
	"/etc/audiofx/audiofx.yaml",
	"/usr/local/share/audiofx/audiofx.yaml",
}

// Document is the top-level shape of audiofx.yaml.
type Document struct {
	Libraries []LibraryEntry        `yaml:"libraries"`
	Effects   []EffectEntry         `yaml:"effects"`
	Recipes   []RecipeEntry         `yaml:"recipes"`
	Routing   []RoutingEntry        `yaml:"scene_mode_device_map"`
	Enhance   *EnhanceSectionConfig `yaml:"enhance,omitempty"`
}

type LibraryEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

type EffectEntry struct {
	Name    string `yaml:"name"`
	Library string `yaml:"library"`
}

type RecipeEntry struct {
	Name    string   `yaml:"name"`
	Effects []string `yaml:"effects"`
}

type RoutingEntry struct {
	Scene  string `yaml:"scene"`
	Mode   string `yaml:"mode"`
	Device string `yaml:"device"`
	Chain  string `yaml:"chain"`
}

// EnhanceSectionConfig holds the enhance-path recipes/routing, structurally
// identical to the effect path but keyed on an (up_dev, down_dev) pair
// instead of a single device.
type EnhanceSectionConfig struct {
	Recipes []RecipeEntry        `yaml:"recipes"`
	Routing []EnhanceRoutingEntry `yaml:"scene_mode_device_map"`
}

type EnhanceRoutingEntry struct {
	Scene   string `yaml:"scene"`
	Mode    string `yaml:"mode"`
	UpDev   string `yaml:"up_device"`
	DownDev string `yaml:"down_device"`
	Chain   string `yaml:"chain"`
}

// Load searches SearchLocations in order and parses the first file found.
func Load() (*Document, error) {
	var f *os.File
	var lastErr error
	for _, loc := range SearchLocations {
		var err error
		f, err = os.Open(loc)
		if err == nil {
			defer f.Close()
			break
		}
		lastErr = err
	}
	if f == nil {
		return nil, fmt.Errorf("config: no audiofx.yaml found in any search location: %w", lastErr)
	}
	return Parse(f)
}

// Parse reads and unmarshals a document from r.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &doc, nil
}

var sceneNames = map[string]catalog.SceneType{
	"SCENE_MUSIC":  catalog.SceneMusic,
	"SCENE_GAME":   catalog.SceneGame,
	"SCENE_MOVIE":  catalog.SceneMovie,
	"SCENE_SPEECH": catalog.SceneSpeech,
	"SCENE_RING":   catalog.SceneRing,
	"SCENE_OTHERS": catalog.SceneOthers,
}

var modeNames = map[string]catalog.Mode{
	"EFFECT_DEFAULT": catalog.ModeDefault,
	"EFFECT_NONE":    catalog.ModeNone,
}

var deviceNames = map[string]catalog.DeviceType{
	"DEVICE_NONE":    catalog.DeviceNone,
	"DEVICE_SPEAKER": catalog.DeviceSpeaker,
	"DEVICE_HEADSET": catalog.DeviceHeadset,
	"DEVICE_A2DP":    catalog.DeviceA2DP,
	"DEVICE_USB":     catalog.DeviceUSB,
	"DEVICE_REMOTE":  catalog.DeviceRemote,
}

// ErrUnknownName is returned when a YAML document references a scene, mode
// or device name outside the supported catalog (spec.md §6).
var ErrUnknownName = fmt.Errorf("config: unknown name")

// ToEffectChainInputs converts the parsed document into the inputs
// chainmgr.Manager.Init expects. Entries referencing an unknown scene, mode
// or device are dropped (a ConfigError per spec.md §7), not fatal.
func (d *Document) ToEffectChainInputs() ([]effect.EffectSpec, []chainmgr.RecipeSpec, []chainmgr.SceneModeDeviceEntry) {
	effects := make([]effect.EffectSpec, 0, len(d.Effects))
	for _, e := range d.Effects {
		effects = append(effects, effect.EffectSpec{EffectName: e.Name, LibraryName: e.Library})
	}

	recipes := make([]chainmgr.RecipeSpec, 0, len(d.Recipes))
	for _, r := range d.Recipes {
		recipes = append(recipes, chainmgr.RecipeSpec{ChainName: r.Name, EffectNames: r.Effects})
	}

	var routing []chainmgr.SceneModeDeviceEntry
	for _, r := range d.Routing {
		scene, ok := sceneNames[r.Scene]
		if !ok {
			continue
		}
		mode, ok := modeNames[r.Mode]
		if !ok {
			continue
		}
		device, ok := deviceNames[r.Device]
		if !ok {
			continue
		}
		routing = append(routing, chainmgr.SceneModeDeviceEntry{Scene: scene, Mode: mode, Device: device, ChainName: r.Chain})
	}

	return effects, recipes, routing
}

// ToLibrarySpecs converts the parsed library section.
func (d *Document) ToLibrarySpecs() []effect.LibrarySpec {
	out := make([]effect.LibrarySpec, 0, len(d.Libraries))
	for _, l := range d.Libraries {
		out = append(out, effect.LibrarySpec{Name: l.Name, Path: l.Path})
	}
	return out
}

// ToEnhanceInputs converts the optional enhance section, if present.
func (d *Document) ToEnhanceInputs() ([]chainmgr.EnhanceRecipeSpec, []chainmgr.EnhanceSceneModeDevEntry) {
	if d.Enhance == nil {
		return nil, nil
	}
	recipes := make([]chainmgr.EnhanceRecipeSpec, 0, len(d.Enhance.Recipes))
	for _, r := range d.Enhance.Recipes {
		recipes = append(recipes, chainmgr.EnhanceRecipeSpec{ChainName: r.Name, EffectNames: r.Effects})
	}
	var routing []chainmgr.EnhanceSceneModeDevEntry
	for _, r := range d.Enhance.Routing {
		scene, ok := sceneNames[r.Scene]
		if !ok {
			continue
		}
		mode, ok := modeNames[r.Mode]
		if !ok {
			continue
		}
		up, ok := deviceNames[r.UpDev]
		if !ok {
			continue
		}
		down, ok := deviceNames[r.DownDev]
		if !ok {
			continue
		}
		routing = append(routing, chainmgr.EnhanceSceneModeDevEntry{Scene: scene, Mode: mode, UpDev: up, DownDev: down, ChainName: r.Chain})
	}
	return recipes, routing
}
