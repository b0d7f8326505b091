package archive

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// SegmentDir returns the repository directory a WAL segment's archived
// copy lives under: spec.md's "Archive segment" paragraph —
// archive/<stanza>/<pg-version>-<dbId>/<first 16 hex of segment>/.
func SegmentDir(stanza, pgVersion string, dbID int, segment string) string {
	return path.Join("archive", stanza, fmt.Sprintf("%s-%d", pgVersion, dbID), segment[:16])
}

// SegmentFileName builds the archived filename spec.md names:
// <segment>-<hex sha1>[.ext] (ext empty for uncompressed, unencrypted
// WAL; "gz"/"lz4" otherwise).
func SegmentFileName(segment, checksum, ext string) string {
	name := segment + "-" + checksum
	if ext != "" {
		name += "." + ext
	}
	return name
}

// ChecksumSegment computes the hex SHA-1 the archived filename embeds.
func ChecksumSegment(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ErrSegmentExists is CheckDedup's cause when segment is archived
// already with content that doesn't match checksum.
var ErrSegmentExists = errors.New("WAL segment already exists")

// CheckDedup implements spec.md §8's archive-dedup property: if
// segment is already archived under dir with the same checksum, the
// caller's push is a no-op (alreadyPresent=true, err=nil); if archived
// with a different checksum, err wraps ErrSegmentExists.
func CheckDedup(repo storage.Driver, dir, segment, checksum string) (alreadyPresent bool, err error) {
	entries, err := repo.List(dir, segment+"-*", storage.InfoLevelExists)
	if errors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Trace(err)
	}
	prefix := segment + "-"
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		existing := strings.TrimPrefix(e.Name, prefix)
		existing = strings.SplitN(existing, ".", 2)[0]
		if existing == checksum {
			return true, nil
		}
		return false, errors.Trace(ErrSegmentExists)
	}
	return false, nil
}
