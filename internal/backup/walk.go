package backup

import (
	"path"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// walkEntry is one file, directory, or symlink found under a walk
// root, with its path relative to that root.
type walkEntry struct {
	Path   string
	Record storage.InfoRecord
}

// walkTree recursively lists every entry under root on driver, since
// storage.Driver.List is deliberately non-recursive (object stores page
// one directory level at a time). Symlinks are reported but not
// descended into.
func walkTree(driver storage.Driver, root string) ([]walkEntry, error) {
	var entries []walkEntry
	var visit func(dir string) error
	visit = func(dir string) error {
		children, err := driver.List(dir, "", storage.InfoLevelDetail)
		if err != nil {
			return errors.Annotatef(err, "list %q", dir)
		}
		for _, c := range children {
			rel := c.Name
			if dir != "" {
				rel = path.Join(dir, c.Name)
			}
			entries = append(entries, walkEntry{Path: rel, Record: c})
			if c.Type == storage.InfoTypeDir {
				if err := visit(rel); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}
	return entries, nil
}
