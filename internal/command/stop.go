package command

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
)

// stopFilePath names the stop-file for stanza under lockPath: a
// per-stanza file when stanza is set, otherwise the lock directory's
// global stop file. Real pgBackRest uses the same toggle-file design
// to let an operator pause processing without touching cron/systemd.
func stopFilePath(lockPath, stanza string) string {
	name := "all.stop"
	if stanza != "" {
		name = stanza + ".stop"
	}
	return filepath.Join(lockPath, name)
}

// checkNotStopped refuses to proceed if either the stanza-specific or
// the global stop file exists.
func checkNotStopped(lockPath, stanza string) error {
	for _, path := range []string{stopFilePath(lockPath, ""), stopFilePath(lockPath, stanza)} {
		if _, err := os.Stat(path); err == nil {
			return errs.NewUserReported(errs.CodeUserReported, errors.Errorf("stop file %q exists, refusing to run", path))
		}
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "remove the stop file, allowing commands to run again",
		RunE: func(cmd *cobra.Command, args []string) error {
			lockPath, _ := cmd.Flags().GetString("lock-path")
			if lockPath == "" {
				lockPath = "/tmp/pgbackrest"
			}
			stanza, _ := cmd.Flags().GetString("stanza")
			path := stopFilePath(lockPath, stanza)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return errors.Annotatef(err, "remove stop file %q", path)
			}
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "write a stop file, refusing further commands until start",
		RunE: func(cmd *cobra.Command, args []string) error {
			lockPath, _ := cmd.Flags().GetString("lock-path")
			if lockPath == "" {
				lockPath = "/tmp/pgbackrest"
			}
			stanza, _ := cmd.Flags().GetString("stanza")
			if err := os.MkdirAll(lockPath, 0750); err != nil {
				return errors.Annotatef(err, "create lock path %q", lockPath)
			}
			path := stopFilePath(lockPath, stanza)
			f, err := os.Create(path)
			if err != nil {
				return errors.Annotatef(err, "create stop file %q", path)
			}
			return errors.Trace(f.Close())
		},
	}
}
