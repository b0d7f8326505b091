package errs

import (
	"testing"

	"github.com/juju/errors"
)

func TestExitCodeFromCodedError(t *testing.T) {
	err := NewFatal(CodeCrypto, errors.New("bad key"))
	if got := ExitCode(err); got != int(CodeCrypto) {
		t.Fatalf("got %d, want %d", got, CodeCrypto)
	}
}

func TestExitCodeThroughAnnotation(t *testing.T) {
	base := NewUserReported(CodeLockAcquire, errors.New("held by pid 123"))
	wrapped := errors.Annotate(base, "acquire backup lock")
	if got := ExitCode(wrapped); got != int(CodeLockAcquire) {
		t.Fatalf("got %d, want %d", got, CodeLockAcquire)
	}
}

func TestExitCodeDefaultsToAssertion(t *testing.T) {
	if got := ExitCode(errors.New("something unclassified")); got != int(CodeAssertion) {
		t.Fatalf("got %d, want %d", got, CodeAssertion)
	}
}

func TestRetriableEscalatesToFatal(t *testing.T) {
	r := NewRetriable(errors.New("connection reset"))
	fatal := r.Escalate(CodeFileMissing)
	if fatal.Code() != int(CodeFileMissing) {
		t.Fatalf("got %d, want %d", fatal.Code(), CodeFileMissing)
	}
}

func TestIsMissingOptional(t *testing.T) {
	err := NewMissingOptional(errors.NotFoundf("wal segment"))
	if !IsMissingOptional(err) {
		t.Fatal("expected IsMissingOptional to report true")
	}
	if IsMissingOptional(errors.New("plain error")) {
		t.Fatal("expected IsMissingOptional to report false for a plain error")
	}
}
