package command

import (
	"context"
	"os"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/config"
	"github.com/qiuwenhuifx/pgbackrest/internal/metrics"
	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

// NewApp resolves opts into an App: the repository driver, the local
// pg-data and spool drivers, and (when process-max > 1) a pool of
// spawned worker clients dispatching through the named worker cmd.
func NewApp(ctx context.Context, opts *config.Options, m *metrics.Collector) (*App, error) {
	stanza := opts.Stanza
	if stanza == "" {
		return nil, errNotSet("stanza")
	}
	lockPath, ok := opts.String("lock-path")
	if !ok {
		lockPath = "/tmp/pgbackrest"
	}
	spoolPath, ok := opts.String("spool-path")
	if !ok {
		spoolPath = lockPath
	}

	if err := checkNotStopped(lockPath, stanza); err != nil {
		return nil, errors.Trace(err)
	}

	repo, err := NewRepo(ctx, opts)
	if err != nil {
		return nil, errors.Trace(err)
	}

	pgPath, ok := opts.String("pg1-path")
	if !ok {
		return nil, errNotSet("pg1-path")
	}
	pgData := posix.New(pgPath, true)
	spool := posix.New(spoolPath, false)

	app := &App{
		Options:  opts,
		Metrics:  m,
		Stanza:   stanza,
		LockPath: lockPath,
		Repo:     repo,
		PgData:   pgData,
		Spool:    spool,
	}

	processMax, _, err := opts.Int("process-max")
	if err != nil {
		return nil, errors.Trace(err)
	}
	if processMax > 1 {
		executor, err := spawnWorkerPool(processMax)
		if err != nil {
			return nil, errors.Trace(err)
		}
		app.Executor = executor
	}

	return app, nil
}

// executorOrSpawnOne returns a's own worker pool when process-max > 1
// configured one, or spawns a single ad hoc worker otherwise. The
// archive-push/get async daemons always dispatch file transfers
// through a protocol.Executor, even at the default process-max=1,
// unlike backup/restore's Config which falls back to an in-process
// copy loop when Executor is nil.
func (a *App) executorOrSpawnOne() (*protocol.Executor, error) {
	if a.Executor != nil {
		return a.Executor, nil
	}
	executor, err := spawnWorkerPool(1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return executor, nil
}

// spawnWorkerPool forks processMax copies of this binary under
// --process-role=local, each re-invoked with the parent's own
// command-line arguments (so a worker resolves the same repo1-*/pg1-*
// options via its own internal/config.Options), and pools them behind
// a protocol.Executor. Per internal/protocol/spawn.go's SpawnLocal
// doc comment, this is spec.md §9's explicit spawn_worker API.
func spawnWorkerPool(processMax int) (*protocol.Executor, error) {
	args := os.Args[1:]
	clients := make([]*protocol.Client, 0, processMax)
	for i := 0; i < processMax; i++ {
		stdin, stdout, proc, err := protocol.SpawnLocal(protocol.RoleLocal, args)
		if err != nil {
			return nil, errors.Annotatef(err, "spawn local worker %d/%d", i+1, processMax)
		}
		clients = append(clients, protocol.NewClient(stdout, streamio.NewWriteEndpoint(stdin), proc.Pid))
	}
	return protocol.NewExecutor(clients), nil
}
