package command

import (
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/spf13/cobra"

	"github.com/qiuwenhuifx/pgbackrest/internal/config"
	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/logging"
	"github.com/qiuwenhuifx/pgbackrest/internal/metrics"
)

// optionDefaults is the lowest-precedence tier config.New resolves
// every command's Options against, spec.md §6's default step.
var optionDefaults = map[string]string{
	"repo1-type":            "posix",
	"repo1-fsync":           "true",
	"process-max":           "1",
	"archive-timeout":       "60000",
	"archive-get-queue-max": "8",
	"log-level-console":     "info",
	"lock-path":             "/tmp/pgbackrest",
}

// runWith wraps a subcommand's business logic (an App plus its
// positional args, returning an optional completion stat string) into
// the cobra RunE shape: it resolves this command's own Options,
// assembles an App, and brackets the call with
// internal/logging.CommandStart/CommandEnd, exiting with the exact
// process code spec.md §7 assigns the resulting error.
func runWith(name string, fn func(*App, []string) (string, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		stanza, _ := cmd.Flags().GetString("stanza")

		opts, err := config.New(configPath, stanza, name, optionDefaults)
		if err != nil {
			return errors.Trace(err)
		}
		opts.BindFlags(cmd)

		level := consoleLevel(opts)
		cmdLogger := loggo.GetLogger("pgbackrest." + name)
		start := logging.CommandStart(cmdLogger, name)

		m, err := metrics.New()
		if err != nil {
			code := logging.CommandEnd(cmdLogger, level, name, start, err)
			os.Exit(code)
		}

		app, err := NewApp(cmd.Context(), opts, m)
		if err != nil {
			code := logging.CommandEnd(cmdLogger, level, name, start, err)
			os.Exit(code)
		}

		stat, err := fn(app, args)

		// A missing-optional result (spec's "WAL not found by
		// archive-get") is a command-defined non-fatal outcome, not a
		// failure: it completes normally but still exits 1, so it gets
		// the success log line rather than CommandEnd's error path.
		if errs.IsMissingOptional(err) {
			cmdLogger.Infof("%s command end: completed successfully (%dms)", name, time.Since(start).Milliseconds())
			os.Exit(1)
		}

		var stats []string
		if stat != "" {
			stats = []string{stat}
		}
		code := logging.CommandEnd(cmdLogger, level, name, start, err, stats...)
		if code != 0 {
			os.Exit(code)
		}
		return nil
	}
}

func consoleLevel(opts *config.Options) logging.Level {
	v, ok := opts.String("log-level-console")
	if !ok {
		return logging.LevelInfo
	}
	lvl, err := logging.ParseLevel(v)
	if err != nil {
		return logging.LevelInfo
	}
	return lvl
}

// currentDbIdentity loads archive.info and reports the stanza's
// current PostgreSQL version and db-id, the identity the archive-push
// and archive-get async daemons need to compute a WAL segment's
// repository directory (internal/archive.SegmentDir).
func currentDbIdentity(app *App) (string, int, error) {
	doc, err := info.Load(app.Repo, info.ArchiveInfoPath(app.Stanza))
	if err != nil {
		return "", 0, errors.Annotate(err, "load archive.info")
	}
	ai, err := info.ArchiveInfoFromDocument(doc)
	if err != nil {
		return "", 0, errors.Trace(err)
	}
	return ai.Version, ai.DbID, nil
}
