package command

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// newRepoLsCmd, newRepoGetCmd, newRepoPutCmd, and newRepoRmCmd are thin
// wrappers over storage.Driver, the debugging aids spec.md §4.10 names
// alongside the main workflow commands.
func newRepoLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repo-ls [path]",
		Short: "list a repository path",
		Args:  cobra.MaximumNArgs(1),
		RunE: runWith("repo-ls", func(app *App, args []string) (string, error) {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			entries, err := app.Repo.List(path, "", storage.InfoLevelBasic)
			if err != nil {
				return "", errors.Trace(err)
			}
			var b strings.Builder
			for _, e := range entries {
				fmt.Fprintf(&b, "%s\n", e.Name)
			}
			fmt.Print(b.String())
			return fmt.Sprintf("%d entries", len(entries)), nil
		}),
	}
}

func newRepoGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repo-get [path]",
		Short: "print a repository file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: runWith("repo-get", func(app *App, args []string) (string, error) {
			r, err := app.Repo.NewRead(args[0], storage.ReadOptions{})
			if err != nil {
				return "", errors.Trace(err)
			}
			defer r.Close()
			n, err := io.Copy(os.Stdout, r)
			if err != nil {
				return "", errors.Trace(err)
			}
			return fmt.Sprintf("%d bytes", n), nil
		}),
	}
}

func newRepoPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repo-put [path]",
		Short: "write stdin to a repository file",
		Args:  cobra.ExactArgs(1),
		RunE: runWith("repo-put", func(app *App, args []string) (string, error) {
			w, err := app.Repo.NewWrite(args[0], storage.WriteOptions{Atomic: true, CreatePath: true})
			if err != nil {
				return "", errors.Trace(err)
			}
			n, err := io.Copy(w, os.Stdin)
			if err != nil {
				w.Close()
				return "", errors.Trace(err)
			}
			if err := w.Close(); err != nil {
				return "", errors.Trace(err)
			}
			return fmt.Sprintf("%d bytes", n), nil
		}),
	}
}

func newRepoRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repo-rm [path]",
		Short: "remove a repository file",
		Args:  cobra.ExactArgs(1),
		RunE: runWith("repo-rm", func(app *App, args []string) (string, error) {
			if err := app.Repo.Remove(args[0], true); err != nil {
				return "", errors.Trace(err)
			}
			return "", nil
		}),
	}
}
