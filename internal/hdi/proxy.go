// Package hdi implements the fixed-length HDI parameter protocol (spec.md
// §6 "HDI parameter protocol"): a 20-byte command array in, a 10-byte reply
// array out, tag-dispatched. It also provides a GPIO-backed Proxy
// implementation that drives a physical route-indicator line, finishing the
// PTT_METHOD_GPIOD wiring the teacher left stubbed in src/ptt.go.
package hdi

import (
	"fmt"
)

// Tag identifies the command carried in byte[0] of the 20-byte parameter
// array (spec.md §6).
type Tag byte

const (
	TagInit Tag = iota
	TagDestroy
	TagBypass
	TagRoomMode
	TagVolume
	TagRotation
	TagHeadMode
	TagBluetoothMode
)

func (t Tag) String() string {
	switch t {
	case TagInit:
		return "HDI_INIT"
	case TagDestroy:
		return "HDI_DESTROY"
	case TagBypass:
		return "HDI_BYPASS"
	case TagRoomMode:
		return "HDI_ROOM_MODE"
	case TagVolume:
		return "HDI_VOLUME"
	case TagRotation:
		return "HDI_ROTATION"
	case TagHeadMode:
		return "HDI_HEAD_MODE"
	case TagBluetoothMode:
		return "HDI_BLUETOOTH_MODE"
	default:
		return "HDI_UNKNOWN"
	}
}

// Command is the 20-byte request array: byte[0] is the tag, the rest are
// tag-specific parameters.
type Command [20]byte

// Reply is the 10-byte response array; interpretation is tag-specific, most
// tags return a single status byte in Reply[0].
type Reply [10]byte

// StatusOK / StatusError are the conventional single-status-byte replies
// most tags use.
const (
	StatusOK    byte = 0
	StatusError byte = 1
)

func (r Reply) OK() bool { return r[0] == StatusOK }

// NewCommand builds a Command with the given tag and trailing parameter
// bytes (truncated/zero-padded to fit).
func NewCommand(tag Tag, params ...byte) Command {
	var c Command
	c[0] = byte(tag)
	n := copy(c[1:], params)
	_ = n
	return c
}

// Proxy is the HDI parameter channel the chain manager pushes
// offload-derived volume/rotation/spatialization commands through (C7's
// param-protocol half, spec.md §6). Implementations may be a real hardware
// link or, for AP-only builds, report every command as failed so callers
// fall back to the AP path (spec.md §7 HdiError).
type Proxy interface {
	Send(cmd Command) (Reply, error)
}

// ErrHdiCommand wraps every HDI send failure so callers can match it with
// errors.Is without caring which concrete Proxy failed.
var ErrHdiCommand = fmt.Errorf("hdi: command failed")

// NullProxy always fails every command, pushing every caller onto the AP
// fallback path. Useful for AP-only deployments and as a test double.
type NullProxy struct{}

func (NullProxy) Send(Command) (Reply, error) {
	return Reply{StatusError}, fmt.Errorf("hdi: no proxy configured: %w", ErrHdiCommand)
}
