// Command audiofxd is the audio-effect subsystem daemon: it loads the
// routing configuration, wires every chain manager, sink branch and HAL
// adapter together through internal/service, then blocks until signaled.
// Flag parsing follows src/kissutil.go's pflag.StringP/BoolP/Usage shape.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/ohaudio/audiofx/internal/config"
	"github.com/ohaudio/audiofx/internal/service"
)

func main() {
	var (
		sampleRate      = pflag.UintP("sample-rate", "r", 48000, "Primary branch sample rate, Hz.")
		frameLen        = pflag.UintP("frame-len", "f", 480, "Primary branch frame length, samples.")
		primaryDevice   = pflag.StringP("device", "d", "", "Primary output device name. Empty selects the system default.")
		multichannel    = pflag.Bool("multichannel", false, "Enable the multichannel sink branch.")
		offload         = pflag.Bool("offload", false, "Enable the offload sink branch.")
		enhance         = pflag.Bool("enhance", false, "Enable the microphone-capture enhance chain.")
		console         = pflag.Bool("console", true, "Expose a debug console on a pseudo-terminal.")
		discoveryName   = pflag.String("discovery-name", "", "DNS-SD instance name. Empty derives one from the hostname.")
		discoveryPort   = pflag.IntP("discovery-port", "P", 0, "Port to announce over DNS-SD. 0 disables discovery.")
		timestampFormat = pflag.StringP("timestamp-format", "T", "", "Precede render-tick trace lines with an 'strftime' format time stamp.")
		help            = pflag.Bool("help", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - audio-effect chain manager daemon.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <config.yaml>\n\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := log.Default()

	var doc *config.Document
	var err error
	if pflag.NArg() == 1 {
		f, openErr := os.Open(pflag.Arg(0))
		if openErr != nil {
			logger.Fatal("cannot open config file", "path", pflag.Arg(0), "err", openErr)
		}
		defer f.Close()
		doc, err = config.Parse(f)
	} else {
		doc, err = config.Load()
	}
	if err != nil {
		logger.Fatal("cannot load config", "err", err)
	}

	opts := service.Options{
		SampleRate:           uint32(*sampleRate),
		FrameLen:             uint32(*frameLen),
		PrimaryDeviceName:    *primaryDevice,
		EnableMultichannel:   *multichannel,
		EnableOffload:        *offload,
		EnableEnhance:        *enhance,
		EnableConsole:        *console,
		EnableDiscovery:      *discoveryPort != 0,
		DiscoveryName:        *discoveryName,
		DiscoveryPort:        *discoveryPort,
		Logger:               logger,
		TraceTimestampFormat: *timestampFormat,
	}

	svc, err := service.New(doc, opts)
	if err != nil {
		logger.Fatal("cannot wire service", "err", err)
	}

	if err := svc.Start(); err != nil {
		logger.Fatal("cannot start service", "err", err)
	}
	logger.Info("audiofxd started")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logger.Info("audiofxd shutting down")
	svc.Stop()
}
