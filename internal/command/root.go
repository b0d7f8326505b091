package command

import (
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/qiuwenhuifx/pgbackrest/internal/config"
)

// registerOptionFlags declares every named pgbackrest option this
// binary accepts as a command-line flag, shared between the root
// cobra.Command's persistent flags (the normal CLI path) and
// ParseWorkerOptions (a spawned --process-role worker, which never
// goes through cobra's own parser).
func registerOptionFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to the pgbackrest configuration file")
	fs.String("stanza", "", "stanza name")
	fs.String("lock-path", "", "directory holding advisory locks and stop files")
	fs.String("spool-path", "", "directory holding the archive-push/get spool queues")
	fs.String("log-level-console", "", "console log verbosity: off, error, warn, info, detail, debug, trace")
	fs.Int("process-max", 0, "number of worker processes to spawn for parallel file copy")

	fs.String("pg1-path", "", "PostgreSQL data directory")

	fs.String("repo1-type", "", "repository backend: posix, cifs, s3, azure, or remote")
	fs.String("repo1-path", "", "repository root path (posix/cifs)")
	fs.Bool("repo1-fsync", true, "fsync repository writes (posix/cifs)")
	fs.String("repo1-s3-bucket", "", "S3 bucket name")
	fs.String("repo1-s3-region", "", "S3 region")
	fs.String("repo1-s3-endpoint", "", "S3-compatible endpoint override")
	fs.String("repo1-s3-key", "", "S3 access key")
	fs.String("repo1-s3-key-secret", "", "S3 secret key")
	fs.String("repo1-s3-uri-style", "", "S3 URI style: host or path")
	fs.String("repo1-azure-account", "", "Azure storage account URL (https://<account>.blob.core.windows.net)")
	fs.String("repo1-azure-container", "", "Azure container name")
	fs.String("repo1-azure-key", "", "Azure storage key")
	fs.String("repo1-host", "", "remote repository SSH host")
	fs.String("repo1-host-user", "", "remote repository SSH user")
	fs.String("repo1-host-cmd", "", "remote repository pgbackrest command path")
	fs.String("repo1-host-key-file", "", "remote repository SSH private key file")
	fs.Duration("repo1-host-connect-timeout", 0, "remote repository SSH connect timeout")
}

// NewRootCmd assembles the full pgbackrest command tree: the primary
// workflow commands, the archive-push/get pair and their hidden async
// daemons, the repo-ls/get/put/rm debugging aids, and the
// start/stop/server process-control commands. cmd/pgbackrest/main.go
// calls this directly; every leaf's RunE is wrapped by runWith, which
// resolves that command's own internal/config.Options from these
// persistent flags plus the config file and environment.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pgbackrest",
		Short:         "reliable backup and restore for PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	registerOptionFlags(root.PersistentFlags())

	root.AddCommand(
		newArchivePushCmd(),
		newArchiveGetCmd(),
		newArchivePushAsyncCmd(),
		newArchiveGetAsyncCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newExpireCmd(),
		newVerifyCmd(),
		newCheckCmd(),
		newInfoCmd(),
		newStanzaCreateCmd(),
		newStanzaUpgradeCmd(),
		newStanzaDeleteCmd(),
		newRepoLsCmd(),
		newRepoGetCmd(),
		newRepoPutCmd(),
		newRepoRmCmd(),
		newStartCmd(),
		newStopCmd(),
		newServerCmd(),
	)

	return root
}

// ParseWorkerOptions resolves a spawned worker's own Options from its
// argv (the parent's original command-line arguments, per
// internal/protocol.SpawnLocal's doc comment). A worker never goes
// through cobra's command dispatch — it just needs the same repo1-*/
// pg1-*/stanza values its parent resolved — so this parses the same
// flag set directly with unknown flags and positional args (the
// subcommand name itself) ignored.
func ParseWorkerOptions(args []string) (*config.Options, error) {
	fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist = pflag.ParseErrorsWhitelist{UnknownFlags: true}
	registerOptionFlags(fs)

	if err := fs.Parse(args); err != nil {
		return nil, errors.Trace(err)
	}

	configPath, _ := fs.GetString("config")
	stanza, _ := fs.GetString("stanza")

	opts, err := config.New(configPath, stanza, "", optionDefaults)
	if err != nil {
		return nil, errors.Trace(err)
	}
	fs.Visit(func(f *pflag.Flag) {
		opts.SetFlag(f.Name, f.Value.String())
	})
	return opts, nil
}
