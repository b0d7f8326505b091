package backup

import (
	"io"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/filter"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// VerifyResult reports every file whose repository copy no longer
// matches its manifest checksum.
type VerifyResult struct {
	Label       string
	BadFiles    []string
	FilesTested int
}

// Verify recomputes the checksum of every file backup label claims and
// compares it against the manifest, per spec.md §3's manifest checksum
// attribute. It does not require the stanza lock: verify only reads.
func Verify(repo storage.Driver, stanza, label string) (*VerifyResult, error) {
	doc, err := info.Load(repo, info.ManifestPath(stanza, label))
	if err != nil {
		return nil, errs.NewFatal(errs.CodeFileMissing, errors.Annotatef(err, "load manifest %q", label))
	}
	manifest, err := info.ManifestFromDocument(doc)
	if err != nil {
		return nil, errs.NewFatal(errs.CodeFormat, errors.Annotatef(err, "decode manifest %q", label))
	}

	result := &VerifyResult{Label: label}
	for path, entry := range manifest.Files {
		sourceLabel := entry.Reference
		if sourceLabel == "" {
			sourceLabel = label
		}
		sum, err := hashRepoFile(repo, RepoFilePath(stanza, sourceLabel, path))
		if err != nil {
			return nil, errs.NewFatal(errs.CodeFileMissing, errors.Annotatef(err, "verify %q", path))
		}
		result.FilesTested++
		if sum != entry.Checksum {
			result.BadFiles = append(result.BadFiles, path)
			logger.Warningf("stanza %q: backup %q: %q checksum mismatch (manifest %s, repository %s)", stanza, label, path, entry.Checksum, sum)
		}
	}
	return result, nil
}

func hashRepoFile(repo storage.Driver, path string) (string, error) {
	r, err := repo.NewRead(path, storage.ReadOptions{})
	if err != nil {
		return "", errors.Trace(err)
	}
	defer r.Close()

	h := filter.NewSHA1Filter()
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Process(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Trace(err)
		}
	}
	h.Flush()
	return h.Result().(string), nil
}
