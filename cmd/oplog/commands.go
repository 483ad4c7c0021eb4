package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/config"
	"github.com/Mindburn-Labs/oplog/pkg/entry"
	"github.com/Mindburn-Labs/oplog/pkg/identity"
	"github.com/Mindburn-Labs/oplog/pkg/log"
	"github.com/Mindburn-Labs/oplog/pkg/logio"
)

// runDemo builds two replicas of one log, appends to both concurrently with
// distinct identities, joins them both ways and prints the converged view.
func runDemo(args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	store := blockio.NewMemoryStore()
	provider := identity.NewEd25519Provider()

	identA, err := provider.CreateIdentity("userA")
	if err != nil {
		logger.Error("create identity", "err", err)
		return 1
	}
	identB, err := provider.CreateIdentity("userB")
	if err != nil {
		logger.Error("create identity", "err", err)
		return 1
	}

	logA, err := log.New(store, identA, &log.Options{ID: "demo"})
	if err != nil {
		logger.Error("create log", "err", err)
		return 1
	}
	logB, err := log.New(store, identB, &log.Options{ID: "demo"})
	if err != nil {
		logger.Error("create log", "err", err)
		return 1
	}

	for _, payload := range []string{"one", "two", "three"} {
		if _, err := logA.Append(ctx, []byte(payload), nil); err != nil {
			logger.Error("append", "replica", "A", "err", err)
			return 1
		}
	}
	for _, payload := range []string{"hello", "world"} {
		if _, err := logB.Append(ctx, []byte(payload), nil); err != nil {
			logger.Error("append", "replica", "B", "err", err)
			return 1
		}
	}

	if _, err := logA.Join(ctx, logB); err != nil {
		logger.Error("join A<-B", "err", err)
		return 1
	}
	if _, err := logB.Join(ctx, logA); err != nil {
		logger.Error("join B<-A", "err", err)
		return 1
	}

	rendered, err := logA.ToString(nil)
	if err != nil {
		logger.Error("render", "err", err)
		return 1
	}
	fmt.Fprintln(stdout, rendered)

	valuesA, err := logA.Values()
	if err != nil {
		logger.Error("values", "err", err)
		return 1
	}
	valuesB, err := logB.Values()
	if err != nil {
		logger.Error("values", "err", err)
		return 1
	}
	converged := len(valuesA) == len(valuesB)
	if converged {
		for i := range valuesA {
			if !entry.IsEqual(valuesA[i], valuesB[i]) {
				converged = false
				break
			}
		}
	}
	fmt.Fprintf(stdout, "replicas converged: %v (%d entries)\n", converged, len(valuesA))
	return 0
}

// runAppend appends each argument as a payload to a log backed by a sqlite
// store and prints the resulting manifest hash.
func runAppend(args []string, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("append", flag.ContinueOnError)
	fs.SetOutput(stderr)
	storePath := fs.String("store", cfg.StorePath, "path to the sqlite block store")
	logID := fs.String("log", "default", "log identifier")
	author := fs.String("as", "local", "author identity id")
	manifest := fs.String("from", "", "manifest hash to extend (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *storePath == "" {
		fmt.Fprintln(stderr, "append: -store is required (or set OPLOG_STORE_PATH)")
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "append: at least one payload argument is required")
		return 2
	}

	ctx := context.Background()
	store, err := blockio.NewSQLiteStore(*storePath)
	if err != nil {
		logger.Error("open store", "err", err)
		return 1
	}
	defer store.Close()

	ident, err := identity.NewEd25519Provider().CreateIdentity(*author)
	if err != nil {
		logger.Error("create identity", "err", err)
		return 1
	}

	var target *log.Log
	opts := &log.Options{ID: *logID, JoinConcurrency: cfg.JoinConcurrency}
	if *manifest != "" {
		hash, err := blockio.ParseCID(*manifest)
		if err != nil {
			logger.Error("parse manifest hash", "err", err)
			return 1
		}
		target, err = log.NewFromMultihash(ctx, store, ident, hash, opts, &logio.FetchOptions{
			Concurrency: cfg.FetchConcurrency,
			Timeout:     cfg.FetchTimeout,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("hydrate log", "err", err)
			return 1
		}
	} else {
		target, err = log.New(store, ident, opts)
		if err != nil {
			logger.Error("create log", "err", err)
			return 1
		}
	}

	for _, payload := range fs.Args() {
		e, err := target.Append(ctx, []byte(payload), &log.AppendOptions{Pin: true})
		if err != nil {
			logger.Error("append", "err", err)
			return 1
		}
		logger.Debug("appended", "hash", e.HashString(), "time", e.Clock.Time)
	}

	hash, err := target.ToMultihash(ctx)
	if err != nil {
		logger.Error("write manifest", "err", err)
		return 1
	}
	fmt.Fprintln(stdout, blockio.CIDString(hash))
	return 0
}

// runShow hydrates a log from a manifest hash and renders it.
func runShow(args []string, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	storePath := fs.String("store", cfg.StorePath, "path to the sqlite block store")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *storePath == "" || fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: oplog show -store <path> <manifest-hash>")
		return 2
	}

	ctx := context.Background()
	store, err := blockio.NewSQLiteStore(*storePath)
	if err != nil {
		logger.Error("open store", "err", err)
		return 1
	}
	defer store.Close()

	hash, err := blockio.ParseCID(fs.Arg(0))
	if err != nil {
		logger.Error("parse manifest hash", "err", err)
		return 1
	}

	ident, err := identity.NewEd25519Provider().CreateIdentity("reader")
	if err != nil {
		logger.Error("create identity", "err", err)
		return 1
	}

	target, err := log.NewFromMultihash(ctx, store, ident, hash, nil, &logio.FetchOptions{
		Concurrency: cfg.FetchConcurrency,
		Timeout:     cfg.FetchTimeout,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("hydrate log", "err", err)
		return 1
	}

	rendered, err := target.ToString(nil)
	if err != nil {
		logger.Error("render", "err", err)
		return 1
	}
	fmt.Fprintln(stdout, rendered)
	return 0
}
