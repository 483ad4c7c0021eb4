// Command oplog is a workbench for the replicated log: append entries to a
// persistent store, inspect a stored log, or run a two-replica convergence
// demo.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Mindburn-Labs/oplog/pkg/config"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands. Split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	logger := newLogger(stderr, cfg.LogLevel)

	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "demo":
		return runDemo(args[2:], stdout, stderr, logger)
	case "append":
		return runAppend(args[2:], cfg, stdout, stderr, logger)
	case "show":
		return runShow(args[2:], cfg, stdout, stderr, logger)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: oplog <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  demo               two replicas append concurrently and converge")
	fmt.Fprintln(w, "  append             append payloads to a log in a sqlite store")
	fmt.Fprintln(w, "  show               print a stored log from its manifest hash")
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
