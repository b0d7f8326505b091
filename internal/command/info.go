package command

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/qiuwenhuifx/pgbackrest/internal/info"
)

// stanzaReport is the info command's output shape, sufficient for both
// its text and JSON renderings.
type stanzaReport struct {
	Name     string         `json:"name"`
	DbID     int            `json:"db-id"`
	Version  string         `json:"version"`
	SystemID uint64         `json:"system-id"`
	Backups  []backupReport `json:"backup"`
}

type backupReport struct {
	Label         string `json:"label"`
	Type          string `json:"type"`
	Prior         string `json:"prior,omitempty"`
	SizeBytes     int64  `json:"size-bytes"`
	RepoSizeBytes int64  `json:"repo-size-bytes"`
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "print stanza status and backup/archive registries",
		RunE: runWith("info", func(app *App, args []string) (string, error) {
			report, err := buildStanzaReport(app)
			if err != nil {
				return "", errors.Trace(err)
			}

			output, _ := app.Options.String("output")
			switch output {
			case "json":
				data, err := json.MarshalIndent([]stanzaReport{*report}, "", "  ")
				if err != nil {
					return "", errors.Trace(err)
				}
				fmt.Println(string(data))
			default:
				fmt.Print(renderStanzaReportText(report))
			}
			return "", nil
		}),
	}
	cmd.Flags().String("output", "text", "output format: text or json")
	return cmd
}

func buildStanzaReport(app *App) (*stanzaReport, error) {
	archiveDoc, err := info.Load(app.Repo, info.ArchiveInfoPath(app.Stanza))
	if err != nil {
		return nil, errors.Annotate(err, "load archive.info")
	}
	archiveInfo, err := info.ArchiveInfoFromDocument(archiveDoc)
	if err != nil {
		return nil, errors.Trace(err)
	}

	backupDoc, err := info.Load(app.Repo, info.BackupInfoPath(app.Stanza))
	if err != nil {
		return nil, errors.Annotate(err, "load backup.info")
	}
	backupInfo, err := info.BackupInfoFromDocument(backupDoc)
	if err != nil {
		return nil, errors.Trace(err)
	}

	report := &stanzaReport{
		Name:     app.Stanza,
		DbID:     archiveInfo.DbID,
		Version:  archiveInfo.Version,
		SystemID: archiveInfo.SystemID,
	}
	labels := make([]string, 0, len(backupInfo.Current))
	for label := range backupInfo.Current {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		rec := backupInfo.Current[label]
		report.Backups = append(report.Backups, backupReport{
			Label:         rec.Label,
			Type:          string(rec.Type),
			Prior:         rec.Prior,
			SizeBytes:     rec.SizeBytes,
			RepoSizeBytes: rec.RepoSizeBytes,
		})
	}
	return report, nil
}

func renderStanzaReportText(r *stanzaReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "stanza: %s\n", r.Name)
	fmt.Fprintf(&b, "    db-id: %d, version: %s, system-id: %d\n", r.DbID, r.Version, r.SystemID)
	if len(r.Backups) == 0 {
		fmt.Fprintf(&b, "    no backups\n")
		return b.String()
	}
	for _, bk := range r.Backups {
		fmt.Fprintf(&b, "    %s backup: %s, size %d, repo size %d\n", bk.Type, bk.Label, bk.SizeBytes, bk.RepoSizeBytes)
	}
	return b.String()
}
