package archive

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// SpawnFunc forks the async daemon for stanza, per spec.md §9's
// explicit spawn_worker API. It returns once the child has started,
// not once it has finished; PushSync/GetSync poll for completion
// separately.
type SpawnFunc func(stanza string) error

// PushSyncConfig bundles what the synchronous invocation of
// archive-push needs: spec.md §4.8 step 1.
type PushSyncConfig struct {
	Spool          storage.Driver
	Stanza         string
	ArchiveTimeout time.Duration
	Spawn          SpawnFunc
	Clock          clock.Clock
}

// PushSync implements the synchronous invocation of archive-push:
// check for an existing status, queue the segment and spawn the async
// daemon if absent, then poll for completion up to ArchiveTimeout.
func PushSync(ctx context.Context, cfg PushSyncConfig, segment string, walData []byte) error {
	st, found, err := Read(cfg.Spool, cfg.Stanza, QueueOut, segment)
	if err != nil {
		return errors.Trace(err)
	}
	if found {
		return finishPush(cfg, segment, st)
	}

	if err := Enqueue(cfg.Spool, cfg.Stanza, QueueOut, segment, walData); err != nil {
		return errors.Trace(err)
	}

	if err := cfg.Spawn(cfg.Stanza); err != nil {
		return errors.Annotate(err, "spawn archive-push async daemon")
	}

	st, err = awaitStatus(ctx, cfg.Spool, cfg.Stanza, QueueOut, segment, cfg.ArchiveTimeout, cfg.Clock)
	if err != nil {
		return errors.Trace(err)
	}
	return finishPush(cfg, segment, st)
}

func finishPush(cfg PushSyncConfig, segment string, st Status) error {
	if err := Clear(cfg.Spool, cfg.Stanza, QueueOut, segment, true); err != nil {
		return errors.Trace(err)
	}
	if st.OK {
		return nil
	}
	return errs.NewFatal(errs.Code(st.Code), errors.New(st.Message))
}
