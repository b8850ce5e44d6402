// Command rembashd is the rembash server: it accepts TCP connections,
// completes the rembash handshake, and relays bytes between each client
// and a bash shell running in its own pseudo-terminal.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/pelikenesis/rembash/internal/observe"
	"github.com/pelikenesis/rembash/internal/server"
)

func main() {
	addr := flag.String("addr", ":4070", "listen address")
	maxSessions := flag.Int("max-sessions", 1000, "maximum concurrent sessions")
	shell := flag.String("shell", "bash", "shell executable to run for each session")
	observeAddr := flag.String("observe", "", "address for the optional HTTP/WS observability sidecar (off by default)")
	verbose := flag.Bool("v", false, "debug-level logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	cfg := server.Config{
		Addr:        *addr,
		MaxSessions: *maxSessions,
		ShellPath:   *shell,
	}

	var sidecar *observe.Sidecar
	if *observeAddr != "" {
		sidecar = observe.New(os.Getpid(), nil)
		cfg.Hooks = sidecar.Hooks()
	}

	srv, acc, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sidecar != nil {
		go func() {
			if err := sidecar.Serve(ctx, *observeAddr, log); err != nil {
				log.Error("observability sidecar stopped", "err", err)
			}
		}()
	}

	log.Info("rembashd starting", "addr", *addr, "max_sessions", *maxSessions, "shell", *shell)
	if err := srv.Run(ctx, acc); err != nil {
		log.Error("server terminated", "err", err)
		os.Exit(1)
	}
}
