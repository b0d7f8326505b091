// Package archive implements the archive-push/archive-get async
// spool-and-fork design of spec.md §4.8: a synchronous invocation
// queues work into a local spool directory and spawns a daemon if one
// isn't already running; the daemon drains the spool through the
// parallel executor (internal/protocol) and records ok/error status
// per segment for the synchronous side to observe.
package archive

import (
	"io"
	"path"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

var logger = loggo.GetLogger("pgbackrest.archive")

// Queue names the spool subdirectory under
// --spool-path/archive/<stanza>/<queue>/.
type Queue string

const (
	// QueueOut holds segments archive-push has queued for upload.
	QueueOut Queue = "out"
	// QueueIn holds segments archive-get has fetched for PostgreSQL to consume.
	QueueIn Queue = "in"
)

// Dir returns the spool directory for stanza/queue.
func Dir(stanza string, queue Queue) string {
	return path.Join("archive", stanza, string(queue))
}

const (
	okSuffix    = ".ok"
	errorSuffix = ".error"
)

func isStatusFile(name string) bool {
	return strings.HasSuffix(name, okSuffix) || strings.HasSuffix(name, errorSuffix)
}

// List returns the segment names currently queued under stanza/queue,
// sorted in WAL sequence order (segment names sort lexically in
// sequence order by construction), excluding status sidecar files.
func List(spool storage.Driver, stanza string, queue Queue) ([]string, error) {
	entries, err := spool.List(Dir(stanza, queue), "", storage.InfoLevelExists)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if isStatusFile(e.Name) {
			continue
		}
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out, nil
}

func segmentPath(stanza string, queue Queue, segment string) string {
	return path.Join(Dir(stanza, queue), segment)
}

// Enqueue writes data into the spool for segment.
func Enqueue(spool storage.Driver, stanza string, queue Queue, segment string, data []byte) error {
	return writeBytes(spool, segmentPath(stanza, queue, segment), data)
}

// ReadSegment reads the queued content for segment.
func ReadSegment(spool storage.Driver, stanza string, queue Queue, segment string) ([]byte, error) {
	return readBytes(spool, segmentPath(stanza, queue, segment))
}

// RemoveSegment deletes the queued content for segment; a missing
// segment is not an error, per spec.md §5's "removal races are
// tolerated via error_on_missing=false" for the spool directory.
func RemoveSegment(spool storage.Driver, stanza string, queue Queue, segment string) error {
	return errors.Trace(spool.Remove(segmentPath(stanza, queue, segment), false))
}

func writeBytes(spool storage.Driver, p string, data []byte) error {
	w, err := spool.NewWrite(p, storage.WriteOptions{CreatePath: true})
	if err != nil {
		return errors.Trace(err)
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			w.Close()
			return errors.Trace(err)
		}
	}
	return errors.Trace(w.Close())
}

func readBytes(spool storage.Driver, p string) ([]byte, error) {
	r, err := spool.NewRead(p, storage.ReadOptions{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}
