package backup

import (
	"context"
	"io"
	"path"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/filter"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// RepoFilePath returns the path a backup file's copy lives under in
// the repository: backup/<stanza>/<label>/<relative path>.
func RepoFilePath(stanza, label, relPath string) string {
	return path.Join("backup", stanza, label, relPath)
}

// FilesToCopy returns the manifest entries that need an actual physical
// copy into the repository: everything without a Reference to an
// ancestor backup's existing copy.
func FilesToCopy(m *info.Manifest) []string {
	var paths []string
	for p, e := range m.Files {
		if e.Reference == "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// copyResult is what CopyLocal and CopyParallel both report per file,
// so Run can fold either path's outcome into the manifest identically.
type copyResult struct {
	Path          string
	RepoSizeBytes int64
	Err           error
}

// CopyLocal copies every path in paths from pgData to the repository
// under backup/<stanza>/<label>/, in the current process: a size filter runs over
// the bytes read, and the repo copy is written atomically. Used when no protocol.Executor is configured (process-max
// 1, or a single-host backup with nothing to fan out to).
func CopyLocal(pgData storage.Driver, repo storage.Driver, stanza, label string, paths []string) map[string]copyResult {
	results := make(map[string]copyResult, len(paths))
	for _, p := range paths {
		size, err := copyOneFile(pgData, repo, stanza, label, p)
		results[p] = copyResult{Path: p, RepoSizeBytes: size, Err: err}
	}
	return results
}

func copyOneFile(pgData storage.Driver, repo storage.Driver, stanza, label, relPath string) (int64, error) {
	r, err := pgData.NewRead(relPath, storage.ReadOptions{})
	if err != nil {
		return 0, errors.Annotatef(err, "open %q", relPath)
	}
	defer r.Close()

	w, err := repo.NewWrite(RepoFilePath(stanza, label, relPath), storage.WriteOptions{Atomic: true, CreatePath: true})
	if err != nil {
		return 0, errors.Annotatef(err, "open repo copy of %q", relPath)
	}

	size := filter.NewSizeFilter()
	buf := make([]byte, 64*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			size.Process(buf[:n])
			if _, werr := w.Write(buf[:n]); werr != nil {
				w.Close()
				return 0, errors.Annotatef(werr, "write repo copy of %q", relPath)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			w.Close()
			return 0, errors.Annotatef(rerr, "read %q", relPath)
		}
	}
	if err := w.Close(); err != nil {
		return 0, errors.Annotatef(err, "close repo copy of %q", relPath)
	}
	return size.Result().(int64), nil
}

// backupFileResult is the shape a "backup_file" worker command's
// response decodes into, mirroring internal/archive's fetchResult
// pattern for parallel work dispatched through internal/protocol.
type backupFileResult struct {
	RepoSizeBytes int64 `json:"repo-size-bytes"`
}

// CopyParallel dispatches one job per path across executor's worker
// pool, each invoking cmd with parameters [stanza, label, path] —
// the worker-side handler (registered by internal/command, symmetric
// with archive's archive_push_file/archive_get_file) performs the
// actual read/filter/write. Blocks until every job completes or ctx is
// cancelled.
func CopyParallel(ctx context.Context, executor *protocol.Executor, cmd, stanza, label string, paths []string) (map[string]copyResult, error) {
	results := make(map[string]copyResult, len(paths))
	targets := make(map[string]*backupFileResult, len(paths))

	jobs := make([]protocol.Job, 0, len(paths))
	for _, p := range paths {
		out := &backupFileResult{}
		targets[p] = out
		jobs = append(jobs, protocol.Job{
			Key:       p,
			Cmd:       cmd,
			Parameter: []interface{}{stanza, label, p},
			Result:    out,
		})
	}

	err := executor.Run(ctx, jobs, func(c protocol.Completion) {
		if c.Err != nil {
			results[c.Key] = copyResult{Path: c.Key, Err: c.Err}
			return
		}
		results[c.Key] = copyResult{Path: c.Key, RepoSizeBytes: targets[c.Key].RepoSizeBytes}
	})
	if err != nil {
		return results, errors.Trace(err)
	}
	return results, nil
}
