package chainmgr

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/effect"
	"github.com/ohaudio/audiofx/internal/enhance"
	"github.com/ohaudio/audiofx/internal/ratelog"
)

// EnhanceKey identifies one microphone-capture enhance chain: scene, mode,
// and the (uplink, downlink) device pair the capture path routes between
// (spec.md §6 "EnhanceChainManagerCreateCb(scene, mode, up_dev, down_dev)").
type EnhanceKey struct {
	Scene   catalog.SceneType
	Mode    catalog.Mode
	UpDev   catalog.DeviceType
	DownDev catalog.DeviceType
}

// EnhanceRecipeSpec names an ordered list of effect names for one enhance
// chain, mirroring chainmgr.RecipeSpec.
type EnhanceRecipeSpec struct {
	ChainName   string
	EffectNames []string
}

type enhanceSceneModeDevKey struct {
	Scene   catalog.SceneType
	Mode    catalog.Mode
	UpDev   catalog.DeviceType
	DownDev catalog.DeviceType
}

// EnhanceChainManager is the enhance-path counterpart of Manager (spec.md
// §4.3, §6). It has no offload/backup-refcount concept — enhance chains
// are always AP-side.
type EnhanceChainManager struct {
	mu sync.Mutex

	registry *effect.Registry
	logger   *ratelog.Logger

	chainRecipes map[string]recipe
	sceneModeDev map[enhanceSceneModeDevKey]string

	chains   map[EnhanceKey]*enhance.Chain
	refcount map[EnhanceKey]int

	defaultDesc enhance.DataDescription
}

// NewEnhanceChainManager constructs an empty manager. desc supplies the
// numeric capture parameters (frame length, sample rate, mic/ref counts)
// every constructed chain is parameterized with.
func NewEnhanceChainManager(registry *effect.Registry, desc enhance.DataDescription, logger *log.Logger) *EnhanceChainManager {
	return &EnhanceChainManager{
		registry:     registry,
		logger:       ratelog.New(logger),
		chainRecipes: make(map[string]recipe),
		sceneModeDev: make(map[enhanceSceneModeDevKey]string),
		chains:       make(map[EnhanceKey]*enhance.Chain),
		refcount:     make(map[EnhanceKey]int),
		defaultDesc:  desc,
	}
}

// EnhanceSceneModeDevEntry is one (scene, mode, up_dev, down_dev) -> chain
// name mapping entry.
type EnhanceSceneModeDevEntry struct {
	Scene     catalog.SceneType
	Mode      catalog.Mode
	UpDev     catalog.DeviceType
	DownDev   catalog.DeviceType
	ChainName string
}

// Init loads recipes and the scene/mode/device routing table.
func (m *EnhanceChainManager) Init(recipes []EnhanceRecipeSpec, routing []EnhanceSceneModeDevEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chainRecipes := make(map[string]recipe, len(recipes))
	for _, r := range recipes {
		chainRecipes[r.ChainName] = recipe{name: r.ChainName, effects: r.EffectNames}
	}
	sceneModeDev := make(map[enhanceSceneModeDevKey]string, len(routing))
	for _, e := range routing {
		sceneModeDev[enhanceSceneModeDevKey{e.Scene, e.Mode, e.UpDev, e.DownDev}] = e.ChainName
	}
	m.chainRecipes = chainRecipes
	m.sceneModeDev = sceneModeDev
}

// CreateChain implements EnhanceChainManagerCreateCb (spec.md §6):
// refcounted construction keyed by (scene, mode, up_dev, down_dev).
func (m *EnhanceChainManager) CreateChain(scene catalog.SceneType, mode catalog.Mode, upDev, downDev catalog.DeviceType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := EnhanceKey{Scene: scene, Mode: mode, UpDev: upDev, DownDev: downDev}
	if _, ok := m.chains[key]; ok {
		m.refcount[key]++
		return
	}

	c := enhance.New(m.defaultDesc, nil)
	chainName := m.sceneModeDev[enhanceSceneModeDevKey(key)]
	if rec, ok := m.chainRecipes[chainName]; ok {
		for _, effectName := range rec.effects {
			handle, lib, err := m.registry.CreateEffect(effectName)
			if err != nil {
				m.logger.Warn(chainName, "CreationError", "enhance create_effect failed, skipping", "effect", effectName, "err", err)
				continue
			}
			if !c.AddHandle(handle, lib) && lib != nil && lib.ReleaseEffect != nil {
				_ = lib.ReleaseEffect(handle)
			}
		}
	}

	m.chains[key] = c
	m.refcount[key] = 1
}

// ReleaseChain implements EnhanceChainManagerReleaseCb (spec.md §6).
func (m *EnhanceChainManager) ReleaseChain(scene catalog.SceneType, mode catalog.Mode, upDev, downDev catalog.DeviceType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := EnhanceKey{Scene: scene, Mode: mode, UpDev: upDev, DownDev: downDev}
	m.refcount[key]--
	if m.refcount[key] <= 0 {
		if c, ok := m.chains[key]; ok {
			c.Release()
		}
		delete(m.chains, key)
		delete(m.refcount, key)
	}
}

// Process implements EnhanceChainManagerProcess (spec.md §6): runs one
// capture frame through the chain at the given key, passing raw through
// unchanged if no chain exists for it.
func (m *EnhanceChainManager) Process(scene catalog.SceneType, mode catalog.Mode, upDev, downDev catalog.DeviceType, raw []int16, hasRef bool) []int16 {
	m.mu.Lock()
	key := EnhanceKey{Scene: scene, Mode: mode, UpDev: upDev, DownDev: downDev}
	c, ok := m.chains[key]
	m.mu.Unlock()

	if !ok {
		return raw
	}
	return c.Process(raw, hasRef)
}

// HandleCount reports the number of handles in the chain at key, for tests.
func (m *EnhanceChainManager) HandleCount(key EnhanceKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.chains[key]; ok {
		return c.HandleCount()
	}
	return 0
}
