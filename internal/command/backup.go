package command

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/qiuwenhuifx/pgbackrest/internal/backup"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "run a full, differential, or incremental backup",
		RunE: runWith("backup", func(app *App, args []string) (string, error) {
			cfg, err := app.backupConfig()
			if err != nil {
				return "", errors.Trace(err)
			}
			typeName, _ := app.Options.String("type")
			requested, err := parseBackupType(typeName)
			if err != nil {
				return "", errors.Trace(err)
			}
			cfg.ArchiveStart, _ = app.Options.String("archive-start")
			cfg.ArchiveStop, _ = app.Options.String("archive-stop")
			cfg.Cmd = "backup_file"

			result, err := backup.Run(context.Background(), cfg, requested)
			if err != nil {
				return "", errors.Trace(err)
			}
			return fmt.Sprintf("new backup label = %s, size = %d, repo size = %d", result.Label, result.SizeBytes, result.RepoSizeBytes), nil
		}),
	}
	cmd.Flags().String("type", "incr", "backup type: full, diff, or incr")
	cmd.Flags().String("archive-start", "", "WAL segment at which the consistency range starts")
	cmd.Flags().String("archive-stop", "", "WAL segment at which the consistency range stops")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "restore a backup into pg1-path",
		RunE: runWith("restore", func(app *App, args []string) (string, error) {
			cfg, err := app.backupConfig()
			if err != nil {
				return "", errors.Trace(err)
			}
			cfg.Cmd = "restore_file"
			label, _ := app.Options.String("set")

			result, err := backup.Restore(context.Background(), cfg, label)
			if err != nil {
				return "", errors.Trace(err)
			}
			return fmt.Sprintf("restore of backup %s complete, %d files", result.Label, result.Files), nil
		}),
	}
	cmd.Flags().String("set", "", "backup label to restore (default: latest)")
	return cmd
}

func newExpireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "remove backups and WAL segments outside the retention policy",
		RunE: runWith("expire", func(app *App, args []string) (string, error) {
			cfg, err := app.backupConfig()
			if err != nil {
				return "", errors.Trace(err)
			}
			retentionFull, _, err := app.Options.Int("repo1-retention-full")
			if err != nil {
				return "", errors.Trace(err)
			}

			result, err := backup.Expire(cfg, retentionFull)
			if err != nil {
				return "", errors.Trace(err)
			}
			return fmt.Sprintf("expired %d backups, %d WAL bucket directories", len(result.ExpiredBackups), len(result.ExpiredSegments)), nil
		}),
	}
	cmd.Flags().Int("repo1-retention-full", 0, "number of full backups to retain (0 keeps all)")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [label]",
		Short: "recompute checksums for every file a backup claims",
		Args:  cobra.ExactArgs(1),
		RunE: runWith("verify", func(app *App, args []string) (string, error) {
			result, err := backup.Verify(app.Repo, app.Stanza, args[0])
			if err != nil {
				return "", errors.Trace(err)
			}
			return fmt.Sprintf("verified %d files, %d mismatched", result.FilesTested, len(result.BadFiles)), nil
		}),
	}
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "validate that archive.info and backup.info agree on cluster identity",
		RunE: runWith("check", func(app *App, args []string) (string, error) {
			result, err := backup.Check(app.Repo, app.Stanza)
			if err != nil {
				return "", errors.Trace(err)
			}
			return fmt.Sprintf("archive db-id = %d, backup db-id = %d, %d backups", result.ArchiveDbID, result.BackupDbID, result.BackupCount), nil
		}),
	}
}

func newStanzaCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stanza-create",
		Short: "create a stanza's archive.info and backup.info",
		RunE: runWith("stanza-create", func(app *App, args []string) (string, error) {
			identity, err := app.clusterIdentity()
			if err != nil {
				return "", errors.Trace(err)
			}
			if err := backup.StanzaCreate(app.Repo, app.Stanza, identity); err != nil {
				return "", errors.Trace(err)
			}
			return "", nil
		}),
	}
	cmd.Flags().String("pg1-version", "", "PostgreSQL version reported by the control file")
	cmd.Flags().Int64("pg1-system-id", 0, "PostgreSQL system identifier reported by the control file")
	return cmd
}

func newStanzaUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stanza-upgrade",
		Short: "record a new PostgreSQL incarnation for a stanza",
		RunE: runWith("stanza-upgrade", func(app *App, args []string) (string, error) {
			identity, err := app.clusterIdentity()
			if err != nil {
				return "", errors.Trace(err)
			}
			if err := backup.StanzaUpgrade(app.Repo, app.Stanza, identity); err != nil {
				return "", errors.Trace(err)
			}
			return "", nil
		}),
	}
	cmd.Flags().String("pg1-version", "", "PostgreSQL version reported by the control file")
	cmd.Flags().Int64("pg1-system-id", 0, "PostgreSQL system identifier reported by the control file")
	return cmd
}

func newStanzaDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stanza-delete",
		Short: "destroy a stanza's archive and backup trees",
		RunE: runWith("stanza-delete", func(app *App, args []string) (string, error) {
			if err := backup.StanzaDelete(app.Repo, app.LockPath, app.Stanza); err != nil {
				return "", errors.Trace(err)
			}
			return "", nil
		}),
	}
}

// backupConfig assembles a backup.Config shared by the backup, restore,
// and expire commands, resolving the current cluster db-id from
// archive.info the same way the archive-push/get async daemons do.
func (a *App) backupConfig() (backup.Config, error) {
	_, dbID, err := currentDbIdentity(a)
	if err != nil {
		return backup.Config{}, errors.Trace(err)
	}
	return backup.Config{
		Stanza:   a.Stanza,
		LockPath: a.LockPath,
		Repo:     a.Repo,
		PgData:   a.PgData,
		DbID:     dbID,
		Executor: a.Executor,
		Metrics:  a.Metrics,
	}, nil
}

func (a *App) clusterIdentity() (backup.ClusterIdentity, error) {
	version, err := a.stringOption("pg1-version")
	if err != nil {
		return backup.ClusterIdentity{}, errors.Trace(err)
	}
	systemID, _, err := a.Options.Int("pg1-system-id")
	if err != nil {
		return backup.ClusterIdentity{}, errors.Trace(err)
	}
	return backup.ClusterIdentity{Version: version, SystemID: uint64(systemID)}, nil
}

func parseBackupType(name string) (info.BackupType, error) {
	switch name {
	case "", "incr":
		return info.BackupIncremental, nil
	case "diff":
		return info.BackupDifferential, nil
	case "full":
		return info.BackupFull, nil
	}
	return "", errors.NotValidf("backup type %q", name)
}
