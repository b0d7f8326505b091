package archive

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/lock"
	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// fetchResult decodes an archive-get worker response: the fetched
// segment's bytes, carried inside the JSON envelope the same way
// internal/storage/remote carries binary payloads across the protocol.
type fetchResult struct {
	Data []byte `json:"data"`
}

// GetAsyncConfig bundles what the archive-get async daemon needs:
// spec.md §4.8 step 3.
type GetAsyncConfig struct {
	Spool          storage.Driver
	LockPath       string
	Stanza         string
	From           string
	QueueDepth     int
	SegmentsPerLog uint32
	PgVersion      string
	DbID           int
	Executor       *protocol.Executor
	Cmd            string
	Retries        int
	Interval       time.Duration
}

// GetAsync runs one batch of the archive-get async daemon: acquire the
// stanza lock, compute the ideal queue starting at From, fetch every
// segment not already queued via the parallel executor, and record
// ok/error status per segment.
func GetAsync(ctx context.Context, cfg GetAsyncConfig) error {
	lk, err := lock.Acquire(cfg.LockPath, cfg.Stanza, lock.KindArchive)
	if err != nil {
		if _, ok := errors.Cause(err).(*lock.HeldError); ok {
			logger.Infof("archive-get async daemon already running for stanza %q", cfg.Stanza)
			return nil
		}
		return errors.Trace(err)
	}
	defer lk.Release()

	ideal, err := IdealQueue(cfg.From, cfg.QueueDepth, cfg.SegmentsPerLog)
	if err != nil {
		if wErr := WriteGlobalError(cfg.Spool, cfg.Stanza, QueueIn, err); wErr != nil {
			logger.Errorf("record archive-get global failure: %v", wErr)
		}
		return errors.Trace(err)
	}

	queued, err := List(cfg.Spool, cfg.Stanza, QueueIn)
	if err != nil {
		return errors.Trace(err)
	}
	already := make(map[string]bool, len(queued))
	for _, s := range queued {
		already[s] = true
	}

	results := map[string]*fetchResult{}
	var jobs []protocol.Job
	for _, segment := range ideal {
		if already[segment] {
			continue
		}
		result := &fetchResult{}
		results[segment] = result
		jobs = append(jobs, protocol.Job{
			Key:       segment,
			Cmd:       cfg.Cmd,
			Parameter: []interface{}{cfg.Stanza, segment, cfg.PgVersion, cfg.DbID},
			Result:    result,
			Retries:   cfg.Retries,
			Interval:  cfg.Interval,
		})
	}
	if len(jobs) == 0 {
		return nil
	}

	return cfg.Executor.Run(ctx, jobs, func(c protocol.Completion) {
		if c.Err != nil {
			if err := WriteError(cfg.Spool, cfg.Stanza, QueueIn, c.Key, completionCode(c.Err), c.Err.Error()); err != nil {
				logger.Errorf("record archive-get failure for segment %q: %v", c.Key, err)
			}
			return
		}
		if err := Enqueue(cfg.Spool, cfg.Stanza, QueueIn, c.Key, results[c.Key].Data); err != nil {
			logger.Errorf("enqueue fetched segment %q: %v", c.Key, err)
			return
		}
		if err := WriteOK(cfg.Spool, cfg.Stanza, QueueIn, c.Key); err != nil {
			logger.Errorf("record archive-get success for segment %q: %v", c.Key, err)
		}
	})
}
