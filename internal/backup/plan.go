package backup

import (
	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/info"
)

// Plan is the resolved type/ancestry for a new backup, computed from
// the requested type and the stanza's current backup.info registry.
type Plan struct {
	Type       info.BackupType
	Prior      string   // immediate predecessor label, empty for full
	FullLabel  string   // the full ancestor whose timestamp seeds the new label
	References []string // transitive ancestor chain, oldest first
}

// Resolve computes a Plan for a backup of the requested type against
// current's existing backups, per spec.md §3's backup-set invariants:
// a differential always chains to the latest full, an incremental
// chains to the latest backup of any type (whose own chain terminates
// at a full), and the reference list is exactly the transitive
// ancestor chain.
func Resolve(requested info.BackupType, current map[string]info.BackupRecord) (*Plan, error) {
	if requested == info.BackupFull || len(current) == 0 {
		return &Plan{Type: info.BackupFull}, nil
	}

	latestFull := latestOfType(current, info.BackupFull)
	if latestFull == "" {
		logger.Infof("no full backup exists yet, upgrading requested %s backup to full", requested)
		return &Plan{Type: info.BackupFull}, nil
	}

	switch requested {
	case info.BackupDifferential:
		refs, err := ancestorChain(current, latestFull)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &Plan{Type: info.BackupDifferential, Prior: latestFull, FullLabel: latestFull, References: refs}, nil
	case info.BackupIncremental:
		prior := latestLabelOverall(current)
		refs, err := ancestorChain(current, prior)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &Plan{Type: info.BackupIncremental, Prior: prior, FullLabel: FullAncestor(prior), References: refs}, nil
	}
	return nil, errors.Errorf("unknown backup type %q", requested)
}

func latestOfType(current map[string]info.BackupRecord, typ info.BackupType) string {
	var best string
	for label, rec := range current {
		if rec.Type != typ {
			continue
		}
		if best == "" || current[label].Timestamp.After(current[best].Timestamp) {
			best = label
		}
	}
	return best
}

func latestLabelOverall(current map[string]info.BackupRecord) string {
	var best string
	for label, rec := range current {
		if best == "" || rec.Timestamp.After(current[best].Timestamp) {
			best = label
		}
	}
	return best
}

// ancestorChain walks Prior links from label back to (and including)
// its full ancestor, oldest first.
func ancestorChain(current map[string]info.BackupRecord, label string) ([]string, error) {
	var chain []string
	seen := map[string]bool{}
	for label != "" {
		if seen[label] {
			return nil, errors.Errorf("cycle detected in backup ancestry at %q", label)
		}
		seen[label] = true
		rec, ok := current[label]
		if !ok {
			return nil, errors.Errorf("ancestor backup %q not present in backup.info", label)
		}
		chain = append(chain, label)
		label = rec.Prior
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
