// Package service wires every component of the audio-effect subsystem
// together into one runnable unit with no package-level globals, the way
// src/audio.c's top-level init functions are themselves called from one
// place (main) rather than reaching for module-global state. Service owns
// the chain managers, the HAL adapter registry, the sinks, the debug
// console and the DNS-SD announcer, and knows how to start and stop all of
// them in the right order.
package service

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/chainmgr"
	"github.com/ohaudio/audiofx/internal/config"
	"github.com/ohaudio/audiofx/internal/console"
	"github.com/ohaudio/audiofx/internal/discovery"
	"github.com/ohaudio/audiofx/internal/effect"
	"github.com/ohaudio/audiofx/internal/enhance"
	"github.com/ohaudio/audiofx/internal/hal"
	"github.com/ohaudio/audiofx/internal/hdi"
	"github.com/ohaudio/audiofx/internal/ipc"
	"github.com/ohaudio/audiofx/internal/mixer"
	"github.com/ohaudio/audiofx/internal/ratelog"
	"github.com/ohaudio/audiofx/internal/sink"
)

// Options configures Service construction. Any field left unset falls back
// to a default: the real portaudio primary adapter, stub adapters for every
// other HAL kind, no enhance path, no posture sensor, no discovery
// announcement.
type Options struct {
	// SampleRate/FrameLen size the primary branch's fixed-period tick.
	SampleRate uint32
	FrameLen   uint32

	// PrimaryDeviceName is passed to hal.NewPrimaryAdapter. Empty selects
	// the system default output device.
	PrimaryDeviceName string

	// PrimaryAdapterFactory overrides how the primary branch's adapter is
	// constructed. Nil selects hal.NewPrimaryAdapter (real portaudio
	// output); tests substitute a stub here the same way hal's own paOpener
	// seam lets hal_test.go avoid a real sound device.
	PrimaryAdapterFactory hal.Factory

	// EnableMultichannel/EnableOffload/EnableEnhance turn on the optional
	// sink branches and the microphone-capture chain.
	EnableMultichannel bool
	EnableOffload      bool
	EnableEnhance      bool

	// EnableConsole/EnableDiscovery turn on the debug pseudo-terminal and
	// its DNS-SD announcement.
	EnableConsole      bool
	EnableDiscovery    bool
	DiscoveryName      string
	DiscoveryPort      int

	HdiProxy hdi.Proxy
	Sensor   chainmgr.Sensor
	Logger   *log.Logger

	// TraceTimestampFormat, if non-empty, is a strftime pattern prefixed to
	// the primary/offload timers' per-tick trace lines, the same optional
	// timestamp src/kissutil.go's -T flag adds ahead of received frames.
	TraceTimestampFormat string
}

// Service is the fully wired audio-effect subsystem: two chain managers, a
// HAL adapter registry, one physical sink, the IPC command surface, and
// the optional debug console and DNS-SD announcer.
type Service struct {
	opts Options

	registry *effect.Registry
	chains   *chainmgr.Manager
	enhance  *chainmgr.EnhanceChainManager
	halReg   *hal.Registry

	sink    *sink.Sink
	server  *ipc.Server
	console *console.Console
	announcer *discovery.Announcer
}

// New constructs a Service from a parsed configuration document and
// options, building the effect registry, both chain managers, the HAL
// adapter registry and one physical sink. It does not start any goroutine;
// call Start for that.
func New(doc *config.Document, opts Options) (*Service, error) {
	if opts.SampleRate == 0 {
		opts.SampleRate = 48000
	}
	if opts.FrameLen == 0 {
		opts.FrameLen = 480
	}

	effects, recipes, routing := doc.ToEffectChainInputs()

	registry := effect.NewRegistry(opts.Logger)
	registry.Load(doc.ToLibrarySpecs(), effects, toEffectRecipeSpecs(recipes))

	chains := chainmgr.New(registry, opts.HdiProxy, opts.Sensor, opts.Logger)
	chains.Init(effects, recipes, routing)
	chains.SetFrameLen(opts.FrameLen)

	var enhanceMgr *chainmgr.EnhanceChainManager
	if opts.EnableEnhance {
		enhanceMgr = chainmgr.NewEnhanceChainManager(registry, enhance.DataDescription{
			FrameLengthMs:  20,
			SampleRate:     opts.SampleRate,
			DataFormatBits: 16,
			MicCount:       1,
			RefCount:       1,
			OutChannels:    1,
		}, opts.Logger)
		enhanceRecipes, enhanceRouting := doc.ToEnhanceInputs()
		enhanceMgr.Init(enhanceRecipes, enhanceRouting)
	}

	primaryFactory := opts.PrimaryAdapterFactory
	if primaryFactory == nil {
		primaryFactory = func(name string) (hal.Adapter, error) { return hal.NewPrimaryAdapter(name) }
	}

	halReg := hal.NewRegistry()
	halReg.Register(hal.KindPrimary, primaryFactory)
	halReg.Register(hal.KindOffload, hal.NewStubFactory(hal.KindOffload))
	halReg.Register(hal.KindA2DP, hal.NewStubFactory(hal.KindA2DP))
	halReg.Register(hal.KindUSB, hal.NewStubFactory(hal.KindUSB))
	halReg.Register(hal.KindRemote, hal.NewStubFactory(hal.KindRemote))
	halReg.Register(hal.KindMultichannel, hal.NewStubFactory(hal.KindMultichannel))

	bufferMs := opts.FrameLen * 1000 / opts.SampleRate

	primaryAdapter, err := halReg.New(hal.KindPrimary, opts.PrimaryDeviceName)
	if err != nil {
		return nil, fmt.Errorf("service: create primary adapter: %w", err)
	}
	if err := primaryAdapter.Init(hal.Attr{SampleRate: opts.SampleRate, Channels: 2, Layout: catalog.LayoutStereo, BufferMs: bufferMs}); err != nil {
		return nil, fmt.Errorf("service: init primary adapter: %w", err)
	}

	sinkLogger := ratelog.New(opts.Logger)
	sinkLogger.SetTraceTimestampFormat(opts.TraceTimestampFormat)

	sinkCfg := sink.Config{
		PrimaryAdapter: primaryAdapter,
		PrimaryMixer:   mixer.New(chains, nil, 2, catalog.LayoutStereo),
		PrimaryInputs:  func() []mixer.SinkInput { return nil },
		SampleRate:     opts.SampleRate,
		FrameLen:       opts.FrameLen,
		Logger:         sinkLogger,
	}

	if opts.EnableMultichannel {
		mcAdapter, mcErr := halReg.New(hal.KindMultichannel, "multichannel")
		if mcErr != nil {
			return nil, fmt.Errorf("service: create multichannel adapter: %w", mcErr)
		}
		if initErr := mcAdapter.Init(hal.Attr{SampleRate: opts.SampleRate, Channels: 6, Layout: catalog.LayoutMultichannelDefault, BufferMs: bufferMs}); initErr != nil {
			return nil, fmt.Errorf("service: init multichannel adapter: %w", initErr)
		}
		sinkCfg.MultichannelAdapter = mcAdapter
		sinkCfg.MultichannelMixer = mixer.NewMultichannelBranch(chains, nil)
		sinkCfg.MultichannelInputs = func() []mixer.SinkInput { return nil }
	}

	if opts.EnableOffload {
		offloadAdapter, offErr := halReg.New(hal.KindOffload, "offload")
		if offErr != nil {
			return nil, fmt.Errorf("service: create offload adapter: %w", offErr)
		}
		if initErr := offloadAdapter.Init(hal.Attr{SampleRate: opts.SampleRate, Channels: 2, Layout: catalog.LayoutStereo, BufferMs: bufferMs}); initErr != nil {
			return nil, fmt.Errorf("service: init offload adapter: %w", initErr)
		}
		sinkCfg.OffloadAdapter = offloadAdapter
		sinkCfg.OffloadResampler = silentResampler{}
		sinkCfg.OffloadChannels = 2
	}

	server := ipc.New(chains, enhanceMgr)

	svc := &Service{
		opts:     opts,
		registry: registry,
		chains:   chains,
		enhance:  enhanceMgr,
		halReg:   halReg,
		sink:     sink.New(sinkCfg),
		server:   server,
	}

	if opts.EnableConsole {
		svc.console = console.New(server, opts.Logger)
	}
	if opts.EnableDiscovery {
		svc.announcer = discovery.NewAnnouncer(opts.Logger)
	}

	return svc, nil
}

// Server returns the wired IPC command surface, for a transport (e.g. a
// native-module bridge, or tests) to dispatch onto.
func (s *Service) Server() *ipc.Server { return s.server }

// InnerCaptureHandle identifies one RegisterInnerCapture subscription
// spanning both the primary and (if enabled) multichannel branches, to be
// passed back to UnregisterInnerCapture.
type InnerCaptureHandle struct {
	primary         mixer.InnerCaptureToken
	multichannel    mixer.InnerCaptureToken
	hasMultichannel bool
}

// RegisterInnerCapture subscribes sink to the pre-effect mixed PCM of every
// active sink branch (spec.md §4.5 step 5 / SPEC_FULL's "inner-capture /
// loopback" supplemented feature), e.g. for a loopback recorder or a
// screen-recording audio tap. Call UnregisterInnerCapture with the
// returned handle to stop.
func (s *Service) RegisterInnerCapture(capture mixer.CaptureSink) InnerCaptureHandle {
	h := InnerCaptureHandle{primary: s.sink.PrimaryMixer().RegisterInnerCapture(capture)}
	if mc := s.sink.MultichannelMixer(); mc != nil {
		h.multichannel = mc.RegisterInnerCapture(capture)
		h.hasMultichannel = true
	}
	return h
}

// UnregisterInnerCapture removes a subscription previously returned by
// RegisterInnerCapture.
func (s *Service) UnregisterInnerCapture(h InnerCaptureHandle) {
	s.sink.PrimaryMixer().UnregisterInnerCapture(h.primary)
	if h.hasMultichannel {
		if mc := s.sink.MultichannelMixer(); mc != nil {
			mc.UnregisterInnerCapture(h.multichannel)
		}
	}
}

// Start launches the sink's goroutines and, if enabled, the debug console
// and DNS-SD announcer.
func (s *Service) Start() error {
	s.sink.Start()

	if s.console != nil {
		if err := s.console.Open(); err != nil {
			return fmt.Errorf("service: start console: %w", err)
		}
		go s.console.Run()
	}

	if s.announcer != nil {
		if err := s.announcer.Announce(s.opts.DiscoveryName, s.opts.DiscoveryPort); err != nil {
			return fmt.Errorf("service: start discovery: %w", err)
		}
	}

	return nil
}

// Stop tears every component down in reverse order: discovery, console,
// then the sink (which itself drains every queue before releasing its HAL
// adapters).
func (s *Service) Stop() {
	if s.announcer != nil {
		s.announcer.Stop()
	}
	if s.console != nil {
		s.console.Close()
	}
	s.sink.Stop()
}

// toEffectRecipeSpecs adapts chainmgr's RecipeSpec shape to effect's
// identically-shaped one, needed because Registry.Load and Manager.Init
// each define their own copy to avoid a cross-package type dependency.
func toEffectRecipeSpecs(recipes []chainmgr.RecipeSpec) []effect.RecipeSpec {
	out := make([]effect.RecipeSpec, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, effect.RecipeSpec{ChainName: r.ChainName, EffectNames: r.EffectNames})
	}
	return out
}

// silentResampler is the offload branch's default feed source: silence
// until a real session-mix resampler bridge is wired in.
type silentResampler struct{}

func (silentResampler) Feed(maxSamples int) []float32 { return make([]float32, maxSamples) }
