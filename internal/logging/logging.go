// Package logging wires pgbackrest's command-line log-level options onto
// github.com/juju/loggo/v2, the way the teacher configures a
// loggo.Context per agent and adds named writers to it (see
// worker/deployer/unit_agent.go's initLogging in the example pack).
//
// pgbackrest exposes two independent verbosity knobs, console and file,
// each on its own seven-step scale (off, error, warn, info, detail,
// debug, trace). loggo's own Level enum has no "off" step and no
// "detail" step between info and debug, so this package keeps its own
// Level type and maps it onto loggo.Level per writer, filtering "off"
// by omitting the writer entirely rather than by level comparison.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
)

// Level is pgbackrest's own log verbosity scale, ordered least to most
// verbose.
type Level int

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDetail
	LevelDebug
	LevelTrace
)

// ParseLevel parses one of pgbackrest's --log-level-console/file values.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "off":
		return LevelOff, nil
	case "error":
		return LevelError, nil
	case "warn":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "detail":
		return LevelDetail, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	}
	return 0, errors.NotValidf("log level %q", name)
}

// loggoLevel maps a Level onto the nearest loggo.Level for use as a
// writer's minimum level. detail has no loggo equivalent finer than
// info, so it maps to info; CommandEnd gates its extra detail-level
// output on Level directly rather than relying on loggo to do it.
func (l Level) loggoLevel() loggo.Level {
	switch l {
	case LevelError:
		return loggo.ERROR
	case LevelWarn:
		return loggo.WARNING
	case LevelInfo, LevelDetail:
		return loggo.INFO
	case LevelDebug:
		return loggo.DEBUG
	case LevelTrace:
		return loggo.TRACE
	default:
		return loggo.CRITICAL
	}
}

// levelFilterWriter drops entries below level before handing them to
// next. loggo's own writers filter per-logger, not per-writer, so
// giving console and file independent verbosities needs this rather
// than a single ctx.ConfigureLoggers call.
type levelFilterWriter struct {
	level loggo.Level
	next  loggo.Writer
}

func (w levelFilterWriter) Write(entry loggo.Entry) {
	if entry.Level < w.level {
		return
	}
	w.next.Write(entry)
}

// Setup builds a loggo.Context with a console writer and, when
// fileWriter is non-nil, a file writer, each filtered to its own
// level. The root logger is left at loggo.TRACE so every entry reaches
// the writers; the writers do the actual filtering.
func Setup(consoleLevel, fileLevel Level, fileWriter io.Writer) (*loggo.Context, error) {
	ctx := loggo.NewContext(loggo.TRACE)

	if consoleLevel != LevelOff {
		w := levelFilterWriter{
			level: consoleLevel.loggoLevel(),
			next:  loggo.NewSimpleWriter(os.Stderr, loggo.DefaultFormatter),
		}
		if err := ctx.AddWriter("console", w); err != nil {
			return nil, errors.Annotate(err, "configure console logging")
		}
	}

	if fileLevel != LevelOff && fileWriter != nil {
		w := levelFilterWriter{
			level: fileLevel.loggoLevel(),
			next:  loggo.NewSimpleWriter(fileWriter, loggo.DefaultFormatter),
		}
		if err := ctx.AddWriter("file", w); err != nil {
			return nil, errors.Annotate(err, "configure file logging")
		}
	}

	return ctx, nil
}

// CommandStart logs the command's begin line and returns the time to
// pass to CommandEnd for elapsed-time reporting.
func CommandStart(logger loggo.Logger, command string) time.Time {
	logger.Infof("%s command begin", command)
	return time.Now()
}

// CommandEnd logs the command's terminal line in the exact form
// spec.md §7 requires, plus, at the right verbosity, a stack trace and
// any caller-supplied stats. It returns the process exit code for err
// (0 on success).
func CommandEnd(logger loggo.Logger, level Level, command string, start time.Time, err error, stats ...string) int {
	elapsed := time.Since(start).Milliseconds()

	if err == nil {
		if level >= LevelDetail {
			for _, s := range stats {
				logger.Infof("%s", s)
			}
		}
		logger.Infof("%s command end: completed successfully (%dms)", command, elapsed)
		return 0
	}

	logger.Errorf("%s", err.Error())

	_, userReported := errors.Cause(err).(*errs.UserReported)
	showStack := level >= LevelDebug || (!userReported && level >= LevelDetail)
	if showStack {
		for _, s := range stats {
			logger.Infof("%s", s)
		}
		logger.Infof("%s", errors.ErrorStack(err))
	}

	code := errs.ExitCode(err)
	logger.Errorf("%s command end: aborted with exception [%d]", command, code)
	return code
}
