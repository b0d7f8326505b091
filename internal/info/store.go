package info

import (
	"io"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

var logger = loggo.GetLogger("pgbackrest.info")

// Load reads path from driver, trying path first and path+".copy" if
// the primary is missing, unparseable, or fails its checksum —
// spec.md §4.2's primary+copy load semantics. It aborts with a
// missing-or-corrupt error only if both fail.
func Load(driver storage.Driver, path string) (*Document, error) {
	doc, primaryErr := loadOne(driver, path)
	if primaryErr == nil {
		return doc, nil
	}

	copyPath := path + ".copy"
	doc, copyErr := loadOne(driver, copyPath)
	if copyErr == nil {
		logger.Warningf("%s: primary copy invalid (%v), loaded from %s", path, primaryErr, copyPath)
		return doc, nil
	}
	return nil, errors.Errorf("both %s (%v) and %s (%v) are missing or corrupt", path, primaryErr, copyPath, copyErr)
}

func loadOne(driver storage.Driver, path string) (*Document, error) {
	r, err := driver.NewRead(path, storage.ReadOptions{IgnoreMissing: true})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if r == nil {
		return nil, errors.NotFoundf("%q", path)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Annotatef(err, "read %q", path)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, errors.Annotatef(err, "decode %q", path)
	}
	return doc, nil
}

// Save atomically writes doc to both path and path+".copy", per
// spec.md §4.2. Both writes happen even if one fails, so a save that
// only manages to update one copy still leaves a usable pair after a
// retry; both errors are returned together if both writes fail.
func Save(driver storage.Driver, path string, doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return errors.Annotate(err, "encode document")
	}

	primaryErr := writeAtomic(driver, path, data)
	copyErr := writeAtomic(driver, path+".copy", data)
	if primaryErr != nil && copyErr != nil {
		return errors.Errorf("failed to save both %s (%v) and %s.copy (%v)", path, primaryErr, path, copyErr)
	}
	if primaryErr != nil {
		return errors.Annotatef(primaryErr, "save %q", path)
	}
	if copyErr != nil {
		return errors.Annotatef(copyErr, "save %q", path+".copy")
	}
	return nil
}

func writeAtomic(driver storage.Driver, path string, data []byte) error {
	w, err := driver.NewWrite(path, storage.WriteOptions{Atomic: true, CreatePath: true})
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Trace(err)
	}
	return w.Close()
}
