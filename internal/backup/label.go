// Package backup implements the backup/restore/expire/verify/check and
// stanza-create/upgrade/delete command workflows: the layer-5
// orchestration spec.md §3's "Backup set" and "Lifecycles" describe,
// built from internal/info's registries, internal/storage's driver
// facade, internal/lock's per-stanza mutex, and internal/protocol's
// parallel executor for the file-copy fan-out.
package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/qiuwenhuifx/pgbackrest/internal/info"
)

var logger = loggo.GetLogger("pgbackrest.backup")

const labelTimeFormat = "20060102-150405"

// NewLabel formats a backup label per spec.md §3: "YYYYMMDD-HHMMSSF" for
// a full backup, or "YYYYMMDD-HHMMSSF_YYYYMMDD-HHMMSS{D|I}" for a
// differential or incremental backup, where the first timestamp is the
// full ancestor's own label prefix and the second is this backup's own
// start time.
func NewLabel(typ info.BackupType, start time.Time, fullLabel string) (string, error) {
	suffix := typeSuffix(typ)
	if suffix == 0 {
		return "", errors.Errorf("unknown backup type %q", typ)
	}
	own := start.UTC().Format(labelTimeFormat)
	if typ == info.BackupFull {
		return own + string(suffix), nil
	}
	if fullLabel == "" {
		return "", errors.Errorf("%s backup requires its full ancestor's label", typ)
	}
	prefix, _, ok := strings.Cut(fullLabel, "_")
	if !ok {
		prefix = fullLabel
	}
	prefix = strings.TrimSuffix(prefix, "F")
	return fmt.Sprintf("%sF_%s%c", prefix, own, suffix), nil
}

func typeSuffix(typ info.BackupType) byte {
	switch typ {
	case info.BackupFull:
		return 'F'
	case info.BackupDifferential:
		return 'D'
	case info.BackupIncremental:
		return 'I'
	}
	return 0
}

// ParseLabelType recovers a label's BackupType from its trailing
// type-code character.
func ParseLabelType(label string) (info.BackupType, error) {
	if label == "" {
		return "", errors.Errorf("empty backup label")
	}
	switch label[len(label)-1] {
	case 'F':
		return info.BackupFull, nil
	case 'D':
		return info.BackupDifferential, nil
	case 'I':
		return info.BackupIncremental, nil
	}
	return "", errors.Errorf("backup label %q has no recognized type suffix", label)
}

// FullAncestor returns the full backup label a differential or
// incremental label's prefix names, or label itself if it already
// names a full backup.
func FullAncestor(label string) string {
	prefix, _, ok := strings.Cut(label, "_")
	if !ok {
		return label
	}
	return prefix
}
