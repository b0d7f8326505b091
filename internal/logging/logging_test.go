package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
)

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected an error for an unknown level name")
	}
}

func TestSetupSkipsOffWriters(t *testing.T) {
	var file bytes.Buffer
	ctx, err := Setup(LevelOff, LevelOff, &file)
	if err != nil {
		t.Fatal(err)
	}
	logger := ctx.GetLogger("pgbackrest.test")
	logger.Criticalf("should not appear anywhere")
	if file.Len() != 0 {
		t.Fatalf("expected no file output, got %q", file.String())
	}
}

func TestCommandEndSuccessLine(t *testing.T) {
	var file bytes.Buffer
	ctx, err := Setup(LevelOff, LevelInfo, &file)
	if err != nil {
		t.Fatal(err)
	}
	logger := ctx.GetLogger("pgbackrest.test")

	start := CommandStart(logger, "backup")
	code := CommandEnd(logger, LevelInfo, "backup", start, nil)
	if code != 0 {
		t.Fatalf("got exit code %d, want 0", code)
	}
	if !strings.Contains(file.String(), "backup command end: completed successfully (") {
		t.Fatalf("missing success line, got %q", file.String())
	}
}

func TestCommandEndFailureLineCarriesExitCode(t *testing.T) {
	var file bytes.Buffer
	ctx, err := Setup(LevelOff, LevelInfo, &file)
	if err != nil {
		t.Fatal(err)
	}
	logger := ctx.GetLogger("pgbackrest.test")

	failure := errs.NewFatal(errs.CodeFormat, errors.New("checksum mismatch"))
	code := CommandEnd(logger, LevelInfo, "check", CommandStart(logger, "check"), failure)
	if code != int(errs.CodeFormat) {
		t.Fatalf("got exit code %d, want %d", code, errs.CodeFormat)
	}
	if !strings.Contains(file.String(), "check command end: aborted with exception [55]") {
		t.Fatalf("missing failure line, got %q", file.String())
	}
}

func TestCommandEndOnlyShowsStackAtDetailOrAbove(t *testing.T) {
	var file bytes.Buffer
	ctx, err := Setup(LevelOff, LevelInfo, &file)
	if err != nil {
		t.Fatal(err)
	}
	logger := ctx.GetLogger("pgbackrest.test")

	failure := errs.NewFatal(errs.CodeAssertion, errors.New("boom"))
	CommandEnd(logger, LevelInfo, "verify", CommandStart(logger, "verify"), failure)
	if strings.Contains(file.String(), "boom\ngithub.com") {
		t.Fatal("did not expect a stack trace at info level")
	}
}

func TestCommandEndHidesStackForUserReportedUnlessDebug(t *testing.T) {
	var detailBuf, debugBuf bytes.Buffer
	detailCtx, err := Setup(LevelOff, LevelInfo, &detailBuf)
	if err != nil {
		t.Fatal(err)
	}
	debugCtx, err := Setup(LevelOff, LevelInfo, &debugBuf)
	if err != nil {
		t.Fatal(err)
	}

	failure := errs.NewUserReported(errs.CodeLockAcquire, errors.New("lock already held"))

	detailLogger := detailCtx.GetLogger("pgbackrest.test")
	CommandEnd(detailLogger, LevelDetail, "backup", CommandStart(detailLogger, "backup"), failure)

	debugLogger := debugCtx.GetLogger("pgbackrest.test")
	CommandEnd(debugLogger, LevelDebug, "backup", CommandStart(debugLogger, "backup"), failure)

	// ErrorStack of this error is its message, which the error line
	// always logs once; a stack trace would log it a second time.
	if strings.Count(detailBuf.String(), errors.ErrorStack(failure)) > 1 {
		t.Fatal("did not expect a stack trace for a user-reported error at detail level")
	}
	if !strings.Contains(debugBuf.String(), "lock already held") {
		t.Fatalf("expected debug level output to include the error, got %q", debugBuf.String())
	}
}
