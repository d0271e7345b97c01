package hdi

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// outputLine is the minimal surface of a gpiocdev output line this package
// needs. Tests substitute a fake so they never touch /dev/gpiochipN, the
// same shape src/ptt_test.go uses for its gpiod mock.
type outputLine interface {
	SetValue(v int) error
	Close() error
}

// GPIORouteProxy drives a single GPIO output line high/low in lock-step
// with HDI_BYPASS and HDI_INIT/HDI_DESTROY commands, standing in for a
// physical relay that switches a bypass path or lights a DSP-active
// indicator LED. Every other tag is acknowledged without touching hardware.
// This finishes the PTT_METHOD_GPIOD wiring samoyed's src/ptt.go left as a
// "currently disabled due to mid-stage porting complexity" stub.
type GPIORouteProxy struct {
	line    outputLine
	invert  bool
	dspLive bool
}

// NewGPIORouteProxy opens chip/line as an output defaulting low.
func NewGPIORouteProxy(chip string, line int, invert bool) (*GPIORouteProxy, error) {
	l, err := gpiocdev.RequestLine(chip, line, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("hdi: gpiocdev.RequestLine(%s, %d): %w", chip, line, err)
	}
	return newGPIORouteProxy(l, invert), nil
}

func newGPIORouteProxy(l outputLine, invert bool) *GPIORouteProxy {
	return &GPIORouteProxy{line: l, invert: invert}
}

// Close releases the underlying GPIO line.
func (p *GPIORouteProxy) Close() error {
	return p.line.Close()
}

func (p *GPIORouteProxy) set(active bool) error {
	v := 0
	if active != p.invert {
		v = 1
	}
	return p.line.SetValue(v)
}

// Send implements Proxy. HDI_INIT/HDI_DESTROY drive the DSP-active
// indicator; HDI_BYPASS drives the bypass relay. Every other tag is
// acknowledged as a no-op success so volume/rotation/room-mode commands
// never fail purely because no hardware is attached for them.
func (p *GPIORouteProxy) Send(cmd Command) (Reply, error) {
	tag := Tag(cmd[0])
	switch tag {
	case TagInit:
		if err := p.set(true); err != nil {
			return Reply{StatusError}, fmt.Errorf("hdi: gpio set for %s: %w: %w", tag, ErrHdiCommand, err)
		}
		p.dspLive = true
	case TagDestroy:
		if err := p.set(false); err != nil {
			return Reply{StatusError}, fmt.Errorf("hdi: gpio clear for %s: %w: %w", tag, ErrHdiCommand, err)
		}
		p.dspLive = false
	case TagBypass:
		bypassed := cmd[1] != 0
		if err := p.set(!bypassed); err != nil {
			return Reply{StatusError}, fmt.Errorf("hdi: gpio bypass for %s: %w: %w", tag, ErrHdiCommand, err)
		}
	}
	return Reply{StatusOK}, nil
}
