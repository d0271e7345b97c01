// Package console exposes a line-oriented debug shell over a
// pseudo-terminal, mirroring the virtual KISS TNC the source app exposes
// for diagnostic client tools (src/kiss.go's kisspt_init/kisspt_open_pt:
// pty.Open, a stable /tmp symlink since the pty name changes every run, and
// a dedicated read-loop goroutine so the rest of the service never blocks
// on a console client attaching). The framing differs — kisspt speaks
// length-prefixed KISS frames, this speaks newline-terminated text commands
// — but the pty lifecycle is the same shape.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"github.com/pkg/term"
	"golang.org/x/sys/unix"

	"github.com/ohaudio/audiofx/internal/catalog"
	"github.com/ohaudio/audiofx/internal/ipc"
)

// DefaultSymlink is where the console's slave side is linked so client
// tooling configuration does not change across runs, mirroring kisspt's
// /tmp/kisstnc symlink.
const DefaultSymlink = "/tmp/audiofxctl"

// transport is the line the console reads commands from and writes replies
// to: either a pty master or a real serial port, whichever Open/OpenSerial
// set up.
type transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Console serves a debug command shell over a pseudo-terminal or a serial
// port, dispatching onto an ipc.Server.
type Console struct {
	server  *ipc.Server
	logger  *log.Logger
	symlink string

	conn  transport
	slave *os.File // only set for the pty transport; nil for serial
}

// New returns a Console dispatching commands onto server. logger may be
// nil, in which case the package-default charmbracelet logger is used.
func New(server *ipc.Server, logger *log.Logger) *Console {
	if logger == nil {
		logger = log.Default()
	}
	return &Console{server: server, logger: logger, symlink: DefaultSymlink}
}

// Open creates the pseudo-terminal and symlinks its slave side at
// DefaultSymlink. Call Run afterward, in its own goroutine.
func (c *Console) Open() error {
	master, slave, err := pty.Open()
	if err != nil {
		return fmt.Errorf("console: open pty: %w", err)
	}
	c.conn = master
	c.slave = slave

	if rawErr := setRawMode(slave); rawErr != nil {
		c.logger.Warn("debug console raw-mode setup failed", "err", rawErr)
	}

	os.Remove(c.symlink)
	if symErr := os.Symlink(slave.Name(), c.symlink); symErr != nil {
		c.logger.Warn("debug console symlink failed", "symlink", c.symlink, "err", symErr)
	} else {
		c.logger.Info("debug console available", "pty", slave.Name(), "symlink", c.symlink)
	}
	return nil
}

// OpenSerial attaches the console to a real serial port instead of a
// pseudo-terminal, for an embedded deployment with a physical debug UART
// rather than a development machine. Grounded on src/serial_port.go's
// serial_port_open: term.Open in raw mode, then SetSpeed for one of the
// fixed bps choices that function supports (0 leaves the port's current
// speed alone).
func (c *Console) OpenSerial(device string, baud int) error {
	t, err := term.Open(device, term.RawMode)
	if err != nil {
		return fmt.Errorf("console: open serial port %s: %w", device, err)
	}

	switch baud {
	case 0:
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		if speedErr := t.SetSpeed(baud); speedErr != nil {
			t.Close()
			return fmt.Errorf("console: set serial speed: %w", speedErr)
		}
	default:
		return fmt.Errorf("console: unsupported serial speed %d", baud)
	}

	c.conn = t
	c.logger.Info("debug console available", "serial", device, "baud", baud)
	return nil
}

// Run reads newline-terminated commands from the master side until the pty
// is closed, writing one reply line per command. Call it in its own
// goroutine after Open.
func (c *Console) Run() {
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := c.dispatch(line)
		io.WriteString(c.conn, reply+"\r\n")
	}
}

// Close releases the underlying transport and, for the pty case, removes
// the symlink.
func (c *Console) Close() error {
	if c.slave != nil {
		os.Remove(c.symlink)
		c.slave.Close()
		c.slave = nil
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// dispatch is unexported and takes the raw line rather than os.File I/O so
// it can be exercised directly by tests without a real pty.
func (c *Console) dispatch(line string) string {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		return "commands: create <scene> | release <scene> | set <scene> <mode> | exist <scene> <mode> <spatial> | device <device> <sink> | devicename [<device>] | volume <session> <vol> | rotation <deg> | hdiparam <scene> <mode> <on|off>"

	case "create":
		scene, err := requireScene(args, 0)
		if err != nil {
			return errLine(err)
		}
		if err := c.server.CreateEffectChain(scene); err != nil {
			return errLine(err)
		}
		return "OK"

	case "release":
		scene, err := requireScene(args, 0)
		if err != nil {
			return errLine(err)
		}
		c.server.ReleaseEffectChain(scene)
		return "OK"

	case "set":
		scene, mode, err := requireSceneMode(args)
		if err != nil {
			return errLine(err)
		}
		c.server.SetEffectChain(scene, mode)
		return "OK"

	case "exist":
		if len(args) < 3 {
			return "ERR exist requires <scene> <mode> <spatial>"
		}
		scene, mode, err := requireSceneMode(args)
		if err != nil {
			return errLine(err)
		}
		spatial, err := strconv.ParseBool(args[2])
		if err != nil {
			return "ERR bad spatial flag: " + args[2]
		}
		return fmt.Sprintf("%v", c.server.ExistEffectChain(scene, mode, spatial))

	case "device":
		if len(args) < 2 {
			return "ERR device requires <device> <sink>"
		}
		device, ok := parseDevice(args[0])
		if !ok {
			return "ERR unknown device: " + args[0]
		}
		c.server.SetOutputDeviceSink(device, args[1])
		return "OK"

	case "devicename":
		if len(args) == 0 {
			return c.server.DeviceSinkName()
		}
		device, ok := parseDevice(args[0])
		if !ok {
			return "ERR unknown device: " + args[0]
		}
		return c.server.DeviceTypeName(device)

	case "volume":
		if len(args) < 2 {
			return "ERR volume requires <session> <vol>"
		}
		vol, err := strconv.Atoi(args[1])
		if err != nil {
			return "ERR bad volume: " + args[1]
		}
		c.server.EffectVolumeUpdate(args[0], int32(vol))
		return "OK"

	case "rotation":
		if len(args) < 1 {
			return "ERR rotation requires <deg>"
		}
		deg, err := strconv.Atoi(args[0])
		if err != nil {
			return "ERR bad rotation: " + args[0]
		}
		c.server.EffectRotationUpdate(int32(deg))
		return "OK"

	case "hdiparam":
		if len(args) < 3 {
			return "ERR hdiparam requires <scene> <mode> <on|off>"
		}
		scene, mode, err := requireSceneMode(args)
		if err != nil {
			return errLine(err)
		}
		var enabled bool
		switch strings.ToLower(args[2]) {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			enabled, err = strconv.ParseBool(args[2])
			if err != nil {
				return "ERR bad flag: " + args[2]
			}
		}
		if err := c.server.SetHdiParam(scene, mode, enabled); err != nil {
			return errLine(err)
		}
		return "OK"

	default:
		return "ERR unknown command: " + cmd
	}
}

func errLine(err error) string {
	return "ERR " + err.Error()
}

func requireScene(args []string, idx int) (catalog.SceneType, error) {
	if len(args) <= idx {
		return 0, fmt.Errorf("missing scene argument")
	}
	scene, ok := parseScene(args[idx])
	if !ok {
		return 0, fmt.Errorf("unknown scene: %s", args[idx])
	}
	return scene, nil
}

func requireSceneMode(args []string) (catalog.SceneType, catalog.Mode, error) {
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("missing scene/mode arguments")
	}
	scene, ok := parseScene(args[0])
	if !ok {
		return 0, 0, fmt.Errorf("unknown scene: %s", args[0])
	}
	mode, ok := parseMode(args[1])
	if !ok {
		return 0, 0, fmt.Errorf("unknown mode: %s", args[1])
	}
	return scene, mode, nil
}

func parseScene(s string) (catalog.SceneType, bool) {
	switch strings.ToLower(s) {
	case "music":
		return catalog.SceneMusic, true
	case "game":
		return catalog.SceneGame, true
	case "movie":
		return catalog.SceneMovie, true
	case "speech":
		return catalog.SceneSpeech, true
	case "ring":
		return catalog.SceneRing, true
	case "others":
		return catalog.SceneOthers, true
	default:
		return 0, false
	}
}

func parseMode(s string) (catalog.Mode, bool) {
	switch strings.ToLower(s) {
	case "default":
		return catalog.ModeDefault, true
	case "none":
		return catalog.ModeNone, true
	default:
		return 0, false
	}
}

func parseDevice(s string) (catalog.DeviceType, bool) {
	switch strings.ToLower(s) {
	case "none":
		return catalog.DeviceNone, true
	case "speaker":
		return catalog.DeviceSpeaker, true
	case "headset":
		return catalog.DeviceHeadset, true
	case "a2dp":
		return catalog.DeviceA2DP, true
	case "usb":
		return catalog.DeviceUSB, true
	case "remote":
		return catalog.DeviceRemote, true
	default:
		return 0, false
	}
}

// setRawMode puts f's terminal line discipline into raw mode: no echo, no
// line buffering, no signal-generating characters. This finishes the
// "cfmakeraw?" / "tcsetattr TCSANOW?" TODOs src/kiss.go's kisspt_open_pt
// left unresolved when it opened the KISS pseudo-terminal.
func setRawMode(f *os.File) error {
	fd := int(f.Fd())
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("ioctl get termios: %w", err)
	}

	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("ioctl set termios: %w", err)
	}
	return nil
}
