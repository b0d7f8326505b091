// Package command wires the layer-5 user-visible workflows —
// archive-push/get, backup, restore, expire, info, verify, check,
// stanza-create/upgrade/delete, and the repo-ls/get/put/rm debugging
// aids — onto github.com/spf13/cobra, the same CLI framework
// internal/config.Options.BindFlags already expects. Every subcommand
// builds an *App from the resolved internal/config.Options, runs the
// operation, and reports through internal/logging's CommandStart/End
// pair the way spec.md §7's exit-code contract requires.
//
// This package also assembles the protocol.Server instances that back
// a spawned --process-role=local/remote/async worker, registering the
// storage_* handlers internal/storage/remote already exports plus the
// backup_file/restore_file/archive_push_file/archive_get_file handlers
// that internal/backup and internal/archive were built expecting but
// deliberately left unregistered.
package command

import (
	"github.com/juju/loggo/v2"

	"github.com/qiuwenhuifx/pgbackrest/internal/config"
	"github.com/qiuwenhuifx/pgbackrest/internal/metrics"
	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

var logger = loggo.GetLogger("pgbackrest.command")

// App bundles the dependencies every subcommand needs, resolved once
// by the root command's PersistentPreRunE and threaded down explicitly
// rather than read from package globals.
type App struct {
	Options *config.Options
	Metrics *metrics.Collector

	Stanza   string
	LockPath string

	// Repo is the configured repository driver (repo1-type: posix,
	// s3, azure, or remote). PgData is always a local posix driver
	// rooted at pg1-path — the source cluster data directory only
	// ever lives on the machine running the primary command. Spool is
	// the local posix driver rooted at spool-path, backing
	// internal/archive's queue directories.
	Repo   storage.Driver
	PgData storage.Driver
	Spool  storage.Driver

	// Executor is non-nil when process-max > 1: a pool of worker
	// clients spawned via protocol.SpawnLocal, one per configured
	// process. Nil means backup and restore copy in-process; the archive
	// async daemons then spawn a single worker of their own
	// (executorOrSpawnOne in app.go).
	Executor *protocol.Executor
}

// stringOption resolves a single required string option or reports
// a user-facing error naming it.
func (a *App) stringOption(name string) (string, error) {
	v, ok := a.Options.String(name)
	if !ok || v == "" {
		return "", errNotSet(name)
	}
	return v, nil
}
