package archive

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

const statusPollInterval = 100 * time.Millisecond

// awaitStatus polls the spool for a status file on segment until one
// appears or timeout elapses, per spec.md §4.8 step 1's "polls for
// status up to archive_timeout".
func awaitStatus(ctx context.Context, spool storage.Driver, stanza string, queue Queue, segment string, timeout time.Duration, clk clock.Clock) (Status, error) {
	if clk == nil {
		clk = clock.WallClock
	}
	deadline := clk.Now().Add(timeout)
	for {
		st, found, err := Read(spool, stanza, queue, segment)
		if err != nil {
			return Status{}, errors.Trace(err)
		}
		if found {
			return st, nil
		}
		if clk.Now().After(deadline) {
			return Status{}, errors.Timeoutf("archive status for segment %q", segment)
		}
		select {
		case <-ctx.Done():
			return Status{}, errors.Trace(ctx.Err())
		case <-clk.After(statusPollInterval):
		}
	}
}
