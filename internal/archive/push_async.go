package archive

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/lock"
	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// PushAsyncConfig bundles what the async daemon needs: spec.md §4.8
// step 2. Executor holds one protocol client per configured
// repository worker; Cmd is the command each worker has registered to
// push one segment (internal/command wires the handler side, keeping
// this package free of any single repository backend's specifics).
type PushAsyncConfig struct {
	Spool    storage.Driver
	LockPath string
	Stanza   string
	PgVersion string
	DbID      int
	Executor  *protocol.Executor
	Cmd       string
	Retries   int
	Interval  time.Duration
}

// PushAsync runs one batch of the archive-push async daemon: acquire
// the stanza lock, list the spool, push every queued segment to every
// configured repository via the parallel executor, and record
// ok/error status per segment. Failing to acquire the lock because
// another daemon instance already holds it is not an error — the
// running daemon owns this batch.
func PushAsync(ctx context.Context, cfg PushAsyncConfig) error {
	lk, err := lock.Acquire(cfg.LockPath, cfg.Stanza, lock.KindArchive)
	if err != nil {
		if _, ok := errors.Cause(err).(*lock.HeldError); ok {
			logger.Infof("archive-push async daemon already running for stanza %q", cfg.Stanza)
			return nil
		}
		return errors.Trace(err)
	}
	defer lk.Release()

	segments, err := List(cfg.Spool, cfg.Stanza, QueueOut)
	if err != nil {
		if wErr := WriteGlobalError(cfg.Spool, cfg.Stanza, QueueOut, err); wErr != nil {
			logger.Errorf("record archive-push global failure: %v", wErr)
		}
		return errors.Trace(err)
	}
	if len(segments) == 0 {
		return nil
	}

	jobs := make([]protocol.Job, len(segments))
	for i, segment := range segments {
		jobs[i] = protocol.Job{
			Key:       segment,
			Cmd:       cfg.Cmd,
			Parameter: []interface{}{cfg.Stanza, segment, cfg.PgVersion, cfg.DbID},
			Retries:   cfg.Retries,
			Interval:  cfg.Interval,
		}
	}

	return cfg.Executor.Run(ctx, jobs, func(c protocol.Completion) {
		if c.Err != nil {
			if err := WriteError(cfg.Spool, cfg.Stanza, QueueOut, c.Key, completionCode(c.Err), c.Err.Error()); err != nil {
				logger.Errorf("record archive-push failure for segment %q: %v", c.Key, err)
			}
			return
		}
		if err := WriteOK(cfg.Spool, cfg.Stanza, QueueOut, c.Key); err != nil {
			logger.Errorf("record archive-push success for segment %q: %v", c.Key, err)
		}
	})
}

// completionCode extracts the exit code a job completion's error
// carries: the worker's own code if it crossed the wire as a
// *protocol.RemoteError, or this process's own classification of a
// local error via errs.ExitCode.
func completionCode(err error) int {
	if re, ok := errors.Cause(err).(*protocol.RemoteError); ok {
		return re.Code
	}
	return errs.ExitCode(err)
}
