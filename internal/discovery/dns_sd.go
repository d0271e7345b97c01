// Package discovery announces the debug console endpoint over mDNS/DNS-SD
// so client tooling can find a running instance without a hardcoded
// address, grounded on src/dns_sd.go's use of the pure-Go
// github.com/brutella/dnssd package for announcing the KISS-over-TCP
// service without any system daemon or cgo dependency.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// ServiceType is the DNS-SD service type this package announces, named the
// way src/dns_sd.go names DNS_SD_SERVICE for its own TCP service.
const ServiceType = "_audiofxctl._tcp"

// Announcer owns one mDNS responder and the single service instance it
// advertises. Announce starts it; Stop tears it down.
type Announcer struct {
	logger   *log.Logger
	responder dnssd.Responder
	cancel    context.CancelFunc
}

// NewAnnouncer returns an Announcer logging through logger, or the
// package-default logger if nil.
func NewAnnouncer(logger *log.Logger) *Announcer {
	if logger == nil {
		logger = log.Default()
	}
	return &Announcer{logger: logger}
}

// Announce advertises name on port over ServiceType and starts responding
// to mDNS queries in the background, mirroring dns_sd_announce's
// Config/NewService/NewResponder/Add/Respond sequence.
func (a *Announcer) Announce(name string, port int) error {
	if name == "" {
		name = "audiofxd"
	}

	cfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
	}

	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("discovery: create service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("discovery: create responder: %w", err)
	}

	if _, err := rp.Add(sv); err != nil {
		return fmt.Errorf("discovery: add service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.responder = rp
	a.cancel = cancel

	a.logger.Info("dns-sd: announcing debug console", "port", port, "name", name)

	go func() {
		if respondErr := rp.Respond(ctx); respondErr != nil && ctx.Err() == nil {
			a.logger.Error("dns-sd: responder error", "err", respondErr)
		}
	}()

	return nil
}

// Stop cancels the responder goroutine started by Announce. Safe to call
// even if Announce was never called or failed.
func (a *Announcer) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}
