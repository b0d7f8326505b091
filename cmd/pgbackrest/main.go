// Command pgbackrest backs up, archives, and restores PostgreSQL
// clusters against a POSIX, S3, Azure, or SSH-remote repository. See
// internal/command for the workflow implementations this binary wires
// onto cobra.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/qiuwenhuifx/pgbackrest/internal/command"
	"github.com/qiuwenhuifx/pgbackrest/internal/metrics"
)

func main() {
	if isWorker(os.Args) {
		if err := runWorker(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	root := command.NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// isWorker reports whether this invocation is a spawned worker
// (--process-role=local/remote/async, always argv[1] per
// internal/protocol.SpawnLocal) rather than a normal CLI command. A
// worker never goes through cobra's command tree — it just serves the
// wire protocol over stdin/stdout until the master disconnects. Which
// of the three roles it was spawned as only changes how the master
// addresses it; every role serves the same handler set.
func isWorker(args []string) bool {
	return len(args) >= 2 && strings.HasPrefix(args[1], "--process-role=")
}

// runWorker resolves the worker's own Options from its parent's
// original arguments, assembles an App from them, and serves the
// protocol until the connection closes.
func runWorker(args []string) error {
	opts, err := command.ParseWorkerOptions(args)
	if err != nil {
		return err
	}
	// A worker never spawns its own sub-pool: process-max only governs
	// how many workers the top-level master command forks.
	opts.SetFlag("process-max", "1")

	m, err := metrics.New()
	if err != nil {
		return err
	}

	app, err := command.NewApp(context.Background(), opts, m)
	if err != nil {
		return err
	}

	return command.RunWorker(app)
}
