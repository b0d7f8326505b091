package archive

import (
	"encoding/json"
	"path"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// Status is the outcome recorded for one segment: spec.md §4.8's
// "<segment>.ok" / "<segment>.error" (with code and message) status
// files.
type Status struct {
	OK      bool
	Code    int
	Message string
}

func statusPath(stanza string, queue Queue, segment string, ok bool) string {
	suffix := errorSuffix
	if ok {
		suffix = okSuffix
	}
	return path.Join(Dir(stanza, queue), segment+suffix)
}

// WriteOK records a successful outcome for segment.
func WriteOK(spool storage.Driver, stanza string, queue Queue, segment string) error {
	return writeBytes(spool, statusPath(stanza, queue, segment, true), nil)
}

// WriteError records a failed outcome for segment, carrying the exit
// code and message a subsequent synchronous invocation should
// propagate.
func WriteError(spool storage.Driver, stanza string, queue Queue, segment string, code int, message string) error {
	data, err := json.Marshal(Status{Code: code, Message: message})
	if err != nil {
		return errors.Trace(err)
	}
	return writeBytes(spool, statusPath(stanza, queue, segment, false), data)
}

// WriteGlobalError records a daemon-wide failure that happened before
// any per-segment dispatch, per spec.md §4.8 step 2's "a global error
// file is written if the whole daemon aborts before per-segment
// dispatch".
func WriteGlobalError(spool storage.Driver, stanza string, queue Queue, cause error) error {
	return writeBytes(spool, path.Join(Dir(stanza, queue), "error"), []byte(cause.Error()))
}

// Read looks for either status file for segment. found is false if
// neither exists.
func Read(spool storage.Driver, stanza string, queue Queue, segment string) (st Status, found bool, err error) {
	okPath := statusPath(stanza, queue, segment, true)
	info, err := spool.Info(okPath, storage.InfoLevelExists)
	if err != nil {
		return Status{}, false, errors.Trace(err)
	}
	if info != nil {
		return Status{OK: true}, true, nil
	}

	errPath := statusPath(stanza, queue, segment, false)
	info, err = spool.Info(errPath, storage.InfoLevelExists)
	if err != nil {
		return Status{}, false, errors.Trace(err)
	}
	if info == nil {
		return Status{}, false, nil
	}

	data, err := readBytes(spool, errPath)
	if err != nil {
		return Status{}, false, errors.Trace(err)
	}
	var out Status
	if err := json.Unmarshal(data, &out); err != nil {
		return Status{}, false, errors.Trace(err)
	}
	return out, true, nil
}

// Clear removes whichever status file exists for segment.
// errorOnMissing controls whether it's an error for neither to exist,
// matching spec.md scenario 6: a synchronous archive-push observing an
// existing X.ok removes it with errorOnMissing=true.
func Clear(spool storage.Driver, stanza string, queue Queue, segment string, errorOnMissing bool) error {
	okPath := statusPath(stanza, queue, segment, true)
	errPath := statusPath(stanza, queue, segment, false)

	okInfo, err := spool.Info(okPath, storage.InfoLevelExists)
	if err != nil {
		return errors.Trace(err)
	}
	errInfo, err := spool.Info(errPath, storage.InfoLevelExists)
	if err != nil {
		return errors.Trace(err)
	}

	if okInfo == nil && errInfo == nil {
		if errorOnMissing {
			return errors.NotFoundf("status for segment %q", segment)
		}
		return nil
	}
	if okInfo != nil {
		if err := spool.Remove(okPath, true); err != nil {
			return errors.Trace(err)
		}
	}
	if errInfo != nil {
		if err := spool.Remove(errPath, true); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
