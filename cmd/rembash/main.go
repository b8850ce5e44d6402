// Command rembash is the rembash client: it connects to a rembash server,
// completes the handshake, and wires the local terminal to the remote
// shell until the session ends.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"

	"github.com/pelikenesis/rembash/internal/client"
)

// rembashPort is the default server port, per spec.md §6.
const rembashPort = "4070"

func main() {
	// Log to a file rather than the terminal: once the session is in raw
	// mode, anything written to stdout/stderr corrupts the display, the
	// same reasoning behind the teacher's GREENLIGHT_LOG redirection in
	// its own main.go.
	logPath := filepath.Join(os.TempDir(), fmt.Sprintf("rembash-%d.log", os.Getpid()))
	if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		log.SetOutput(f)
		defer f.Close()
	}

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s SERVER_IP_ADDRESS\n", filepath.Base(os.Args[0]))
		os.Exit(1)
	}

	ip := os.Args[1]
	if net.ParseIP(ip) == nil || net.ParseIP(ip).To4() == nil {
		fmt.Fprintf(os.Stderr, "rembash: %q is not a dotted-quad IPv4 address\n", ip)
		os.Exit(1)
	}

	if err := client.Run(net.JoinHostPort(ip, rembashPort)); err != nil {
		fmt.Fprintf(os.Stderr, "rembash: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
}
