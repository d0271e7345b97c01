// Command effectchainctl is a thin client for internal/console's debug
// shell: it opens the pseudo-terminal symlink a running audiofxd publishes,
// sends one command line, and prints the single reply line. Grounded on
// src/kissutil.go's attach-send-print shape, simplified from that tool's
// TCP/serial dual-mode client down to one local pty path since the console
// has no network transport.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ohaudio/audiofx/internal/console"
)

func main() {
	var (
		path = pflag.StringP("console", "c", console.DefaultSymlink, "Path to the running daemon's debug console symlink.")
		help = pflag.Bool("help", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - send one debug command to a running audiofxd.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args...]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help || pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(0)
	}

	command := strings.Join(pflag.Args(), " ")

	f, err := os.OpenFile(*path, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open console %s: %v\n", *path, err)
		os.Exit(1)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, command); err != nil {
		fmt.Fprintf(os.Stderr, "cannot send command: %v\n", err)
		os.Exit(1)
	}

	reply, err := bufio.NewReader(f).ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot read reply: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.TrimRight(reply, "\r\n"))
}
