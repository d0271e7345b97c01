package effect

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// LibrarySpec is one (library_name, library_path) entry from boot
// configuration (spec.md §4.1). In this Go rewrite "path" names a factory
// registered in the process's effect-library registry rather than a path to
// a shared object on disk.
type LibrarySpec struct {
	Name string
	Path string
}

// EffectSpec is one (effect_name, library_name) entry.
type EffectSpec struct {
	EffectName  string
	LibraryName string
}

// RecipeSpec is one (chain_name -> [effect_name]) entry.
type RecipeSpec struct {
	ChainName   string
	EffectNames []string
}

// Factory builds a Library given its configured path. Production code
// registers one Factory per compiled-in effect library; tests register
// fakes. This is the seam that replaces dlopen/dlsym from the teacher's
// cgo audio.go.
type Factory func(path string) (*Library, error)

// Registry owns every loaded effect library and resolves (library, effect)
// pairs (C1). It never unloads a library while the process runs (spec.md
// §4.1).
type Registry struct {
	mu         sync.RWMutex
	logger     *log.Logger
	factories  map[string]Factory
	libraries  map[string]*Library // by library name, survivors only
	byEffect   map[string]*Library // effect name -> owning library
	descriptor map[string]Descriptor
}

// NewRegistry constructs an empty registry. Call RegisterFactory for every
// effect library kind the process knows how to build before calling Load.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		logger:     logger,
		factories:  make(map[string]Factory),
		libraries:  make(map[string]*Library),
		byEffect:   make(map[string]*Library),
		descriptor: make(map[string]Descriptor),
	}
}

// RegisterFactory associates a library name with the constructor used to
// build it. Must be called before Load for any library that name appears in.
func (r *Registry) RegisterFactory(libraryName string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[libraryName] = f
}

// Load loads every distinct library referenced by effects, verifies each
// exposes CreateEffect/ReleaseEffect, and returns the subset of effects that
// survived. Libraries missing mandatory symbols (here: a nil factory result,
// or a Library missing either func) are dropped along with every effect
// depending on them (spec.md §4.1).
func (r *Registry) Load(libs []LibrarySpec, effects []EffectSpec, recipes []RecipeSpec) []EffectSpec {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.libraries = make(map[string]*Library)
	r.byEffect = make(map[string]*Library)
	r.descriptor = make(map[string]Descriptor)

	pathByName := make(map[string]string, len(libs))
	for _, l := range libs {
		pathByName[l.Name] = l.Path
	}

	referenced := make(map[string]bool)
	for _, e := range effects {
		referenced[e.LibraryName] = true
	}

	for libName := range referenced {
		path, ok := pathByName[libName]
		if !ok {
			r.logger.Warn("effect library has no path entry, dropping", "library", libName)
			continue
		}
		factory, ok := r.factories[libName]
		if !ok {
			r.logger.Warn("no factory registered for effect library, dropping", "library", libName)
			continue
		}
		lib, err := factory(path)
		if err != nil || lib == nil {
			r.logger.Warn("effect library failed to load, dropping", "library", libName, "err", err)
			continue
		}
		if lib.CreateEffect == nil || lib.ReleaseEffect == nil {
			r.logger.Warn("effect library missing create_effect/release_effect, dropping", "library", libName)
			continue
		}
		r.libraries[libName] = lib
	}

	var survivors []EffectSpec
	for _, e := range effects {
		lib, ok := r.libraries[e.LibraryName]
		if !ok {
			continue
		}
		r.byEffect[e.EffectName] = lib
		for _, d := range lib.Descriptors {
			if d.EffectName == e.EffectName {
				r.descriptor[e.EffectName] = d
				break
			}
		}
		survivors = append(survivors, e)
	}

	_ = recipes // recipes are validated by the chain manager against survivors
	return survivors
}

// CreateEffect resolves effect_name to its owning library and invokes the
// library's create_effect. Callers must treat a non-nil error as "skip this
// effect in the chain", not as fatal (spec.md §4.1).
func (r *Registry) CreateEffect(effectName string) (Handle, *Library, error) {
	r.mu.RLock()
	lib, ok := r.byEffect[effectName]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("effect: unknown effect %q: %w", effectName, ErrCreateFailed)
	}
	h, err := lib.CreateEffect(effectName)
	if err != nil {
		return nil, nil, fmt.Errorf("effect: create %q: %w: %w", effectName, ErrCreateFailed, err)
	}
	return h, lib, nil
}

// Descriptor returns the immutable descriptor for a loaded effect, if any.
func (r *Registry) Descriptor(effectName string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptor[effectName]
	return d, ok
}

// Libraries returns the set of library names that survived Load, for
// diagnostics and tests.
func (r *Registry) Libraries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.libraries))
	for name := range r.libraries {
		names = append(names, name)
	}
	return names
}
