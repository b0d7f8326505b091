package command

import (
	"io"
	"os"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/archive"
	"github.com/qiuwenhuifx/pgbackrest/internal/backup"
	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/filter"
	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/remote"
	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

// workerCtx is the explicit dependency bag every registered
// protocol.HandlerFunc closes over: the repo/pgData drivers, matching
// internal/protocol's rule that handlers never reach into process-wide
// globals.
type workerCtx struct {
	Repo   storage.Driver
	PgData storage.Driver
	Spool  storage.Driver
}

// RunWorker builds a protocol.Server over stdin/stdout, registers
// every worker-side command this binary knows how to serve, and blocks
// until the master closes the connection. This is what
// --process-role=local/remote/async re-invokes into (see
// internal/protocol/spawn.go's SpawnLocal).
func RunWorker(app *App) error {
	ctx := &workerCtx{Repo: app.Repo, PgData: app.PgData, Spool: app.Spool}
	srv := protocol.NewServer(ctx, os.Stdin, streamio.NewWriteEndpoint(os.Stdout))

	remote.RegisterHandlers(srv, app.Repo)
	registerBackupHandlers(srv)
	registerArchiveHandlers(srv)

	return errors.Trace(srv.Serve())
}

// registerBackupHandlers wires backup_file/restore_file, the
// worker-side counterparts internal/backup.CopyParallel/restoreParallel
// dispatch to, deliberately left unregistered by that package so it
// stays free of any single process-role's transport concerns.
func registerBackupHandlers(srv *protocol.Server) {
	srv.Register("backup_file", func(c interface{}, p []interface{}) (interface{}, error) {
		wc := c.(*workerCtx)
		stanza, label, relPath := p[0].(string), p[1].(string), p[2].(string)

		r, err := wc.PgData.NewRead(relPath, storage.ReadOptions{})
		if err != nil {
			return nil, errors.Annotatef(err, "open %q", relPath)
		}
		defer r.Close()

		w, err := wc.Repo.NewWrite(backup.RepoFilePath(stanza, label, relPath), storage.WriteOptions{Atomic: true, CreatePath: true})
		if err != nil {
			return nil, errors.Annotatef(err, "open repo copy of %q", relPath)
		}
		size := filter.NewSizeFilter()
		if err := copyThrough(r, w, size); err != nil {
			return nil, errors.Trace(err)
		}
		return map[string]interface{}{"repo-size-bytes": size.Result()}, nil
	})

	srv.Register("restore_file", func(c interface{}, p []interface{}) (interface{}, error) {
		wc := c.(*workerCtx)
		stanza, sourceLabel, relPath, checksum := p[0].(string), p[1].(string), p[2].(string), p[3].(string)

		r, err := wc.Repo.NewRead(backup.RepoFilePath(stanza, sourceLabel, relPath), storage.ReadOptions{})
		if err != nil {
			return nil, errors.Annotatef(err, "open repo copy of %q", relPath)
		}
		defer r.Close()

		w, err := wc.PgData.NewWrite(relPath, storage.WriteOptions{Atomic: true, CreatePath: true})
		if err != nil {
			return nil, errors.Annotatef(err, "open destination %q", relPath)
		}
		hash := filter.NewSHA1Filter()
		if err := copyThrough(r, w, hash); err != nil {
			return nil, errors.Trace(err)
		}
		hash.Flush()
		if checksum != "" && hash.Result().(string) != checksum {
			return nil, errs.NewFatal(errs.CodeFormat, errors.Errorf("checksum mismatch restoring %q", relPath))
		}
		return nil, nil
	})
}

// registerArchiveHandlers wires archive_push_file/archive_get_file,
// the counterparts internal/archive.PushAsync/GetAsync's Executor
// dispatches to.
func registerArchiveHandlers(srv *protocol.Server) {
	srv.Register("archive_push_file", func(c interface{}, p []interface{}) (interface{}, error) {
		wc := c.(*workerCtx)
		stanza, segment := p[0].(string), p[1].(string)
		pgVersion, dbID := p[2].(string), int(p[3].(float64))

		data, err := archive.ReadSegment(wc.Spool, stanza, archive.QueueOut, segment)
		if err != nil {
			return nil, errors.Trace(err)
		}
		checksum := archive.ChecksumSegment(data)
		dir := archive.SegmentDir(stanza, pgVersion, dbID, segment)

		present, err := archive.CheckDedup(wc.Repo, dir, segment, checksum)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if present {
			return nil, nil
		}

		w, err := wc.Repo.NewWrite(dir+"/"+archive.SegmentFileName(segment, checksum, ""), storage.WriteOptions{Atomic: true, CreatePath: true})
		if err != nil {
			return nil, errors.Trace(err)
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, errors.Annotatef(err, "write segment %q", segment)
		}
		return nil, w.Close()
	})

	srv.Register("archive_get_file", func(c interface{}, p []interface{}) (interface{}, error) {
		wc := c.(*workerCtx)
		stanza, segment := p[0].(string), p[1].(string)
		pgVersion, dbID := p[2].(string), int(p[3].(float64))

		dir := archive.SegmentDir(stanza, pgVersion, dbID, segment)
		entries, err := wc.Repo.List(dir, segment+"-*", storage.InfoLevelExists)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(entries) == 0 {
			return nil, errors.NotFoundf("WAL segment %q", segment)
		}

		r, err := wc.Repo.NewRead(dir+"/"+entries[0].Name, storage.ReadOptions{})
		if err != nil {
			return nil, errors.Trace(err)
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Annotatef(err, "read segment %q", segment)
		}
		return map[string]interface{}{"data": data}, nil
	})
}

// copyThrough streams r into w through tap, a filter.Filter observing
// each chunk for a size or hash accumulation, matching the read loop
// shape internal/backup's CopyLocal/restoreOneFile already use.
func copyThrough(r streamio.ReadEndpoint, w streamio.WriteEndpoint, tap filter.Filter) error {
	buf := make([]byte, 64*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			tap.Process(buf[:n])
			if _, werr := w.Write(buf[:n]); werr != nil {
				w.Close()
				return errors.Trace(werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			w.Close()
			return errors.Trace(rerr)
		}
	}
	return errors.Trace(w.Close())
}
