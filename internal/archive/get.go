package archive

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// GetSyncConfig bundles what the synchronous invocation of archive-get
// needs: spec.md §4.8 step 3 mirrors the push side for the fetch
// direction.
type GetSyncConfig struct {
	Spool          storage.Driver
	Stanza         string
	ArchiveTimeout time.Duration
	QueueDepth     int
	SegmentsPerLog uint32
	Spawn          SpawnFunc
	Clock          clock.Clock
}

// GetSync implements the synchronous invocation of archive-get: check
// for an existing status, prune the spool to the ideal queue and spawn
// the async daemon if absent, then poll for completion. It returns the
// fetched WAL bytes, or a *errs.MissingOptional if the repository has
// no such segment (spec.md §7's missing-optional category).
func GetSync(ctx context.Context, cfg GetSyncConfig, segment string) ([]byte, error) {
	st, found, err := Read(cfg.Spool, cfg.Stanza, QueueIn, segment)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if found {
		return finishGet(cfg, segment, st)
	}

	if err := PruneToIdealQueue(cfg.Spool, cfg.Stanza, segment, cfg.QueueDepth, cfg.SegmentsPerLog); err != nil {
		return nil, errors.Trace(err)
	}

	if err := cfg.Spawn(cfg.Stanza); err != nil {
		return nil, errors.Annotate(err, "spawn archive-get async daemon")
	}

	st, err = awaitStatus(ctx, cfg.Spool, cfg.Stanza, QueueIn, segment, cfg.ArchiveTimeout, cfg.Clock)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return finishGet(cfg, segment, st)
}

func finishGet(cfg GetSyncConfig, segment string, st Status) ([]byte, error) {
	defer func() {
		if err := Clear(cfg.Spool, cfg.Stanza, QueueIn, segment, true); err != nil {
			logger.Errorf("clear archive-get status for segment %q: %v", segment, err)
		}
	}()

	if !st.OK {
		// Exit code 1 is spec.md §6's "command-defined non-fatal"
		// range, the code archive-get's worker handler uses for "WAL
		// segment not present in the repository" — a missing-optional
		// outcome, not a command failure. Any other code is a real
		// fetch failure and propagates as fatal.
		if st.Code == 1 {
			return nil, errs.NewMissingOptional(errors.NotFoundf("WAL segment %q", segment))
		}
		return nil, errs.NewFatal(errs.Code(st.Code), errors.New(st.Message))
	}

	data, err := ReadSegment(cfg.Spool, cfg.Stanza, QueueIn, segment)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := RemoveSegment(cfg.Spool, cfg.Stanza, QueueIn, segment); err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// PruneToIdealQueue computes the ideal queue starting at from (depth
// segments in WAL sequence order) and deletes anything in the actual
// spool that isn't in it, per spec.md §4.8 step 3: "so the prefetch
// horizon matches the active recovery range."
func PruneToIdealQueue(spool storage.Driver, stanza, from string, depth int, segmentsPerLog uint32) error {
	ideal, err := IdealQueue(from, depth, segmentsPerLog)
	if err != nil {
		return errors.Trace(err)
	}
	idealSet := make(map[string]bool, len(ideal))
	for _, s := range ideal {
		idealSet[s] = true
	}

	actual, err := List(spool, stanza, QueueIn)
	if err != nil {
		return errors.Trace(err)
	}
	for _, segment := range actual {
		if idealSet[segment] {
			continue
		}
		if err := RemoveSegment(spool, stanza, QueueIn, segment); err != nil {
			return errors.Trace(err)
		}
		if err := Clear(spool, stanza, QueueIn, segment, false); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
