package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/tuisplit/internal/backup"
	"github.com/verte-zerg/tuisplit/internal/model"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export, import, and sync the run database",
	}

	exportCmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write every group and run to a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupExportCmd,
	}
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the database with a backup file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupImportCmd,
	}
	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "Upload the database to the configured S3 bucket",
		Args:  cobra.NoArgs,
		RunE:  runBackupPushCmd,
	}
	pullCmd := &cobra.Command{
		Use:   "pull",
		Short: "Replace the database with the latest S3 backup",
		Args:  cobra.NoArgs,
		RunE:  runBackupPullCmd,
	}

	cmd.AddCommand(exportCmd, importCmd, pushCmd, pullCmd)
	return cmd
}

func runBackupExportCmd(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ds, err := backup.ExportFile(cmd.Context(), st, args[0])
	if err != nil {
		return err
	}
	return writeOut(cmd.OutOrStdout(), "Exported %s to %s\n", datasetSummary(ds), args[0])
}

func runBackupImportCmd(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ds, err := backup.ImportFile(cmd.Context(), st, args[0])
	if err != nil {
		return err
	}
	return writeOut(cmd.OutOrStdout(), "Imported %s from %s\n", datasetSummary(ds), args[0])
}

func runBackupPushCmd(cmd *cobra.Command, _ []string) error {
	remote, err := newRemote()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	ds, err := st.ExportDataset(ctx)
	if err != nil {
		return fmt.Errorf("failed to export dataset: %w", err)
	}
	if err := remote.Push(ctx, ds); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}
	return writeOut(cmd.OutOrStdout(), "Uploaded %s\n", datasetSummary(ds))
}

func runBackupPullCmd(cmd *cobra.Command, _ []string) error {
	remote, err := newRemote()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	ds, err := remote.Pull(ctx)
	if err != nil {
		if errors.Is(err, backup.ErrNoBackup) {
			return fmt.Errorf("bucket %q has no backup yet", fileCfg.Backup.Bucket)
		}
		return fmt.Errorf("failed to download backup: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := st.ReplaceDataset(ctx, ds); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	return writeOut(cmd.OutOrStdout(), "Restored %s\n", datasetSummary(ds))
}

func newRemote() (*backup.Remote, error) {
	b := fileCfg.Backup
	remote, err := backup.NewRemote(log, backup.RemoteConfig{
		Bucket:          b.Bucket,
		Region:          b.Region,
		Endpoint:        b.Endpoint,
		Prefix:          b.Prefix,
		AccessKeyID:     b.AccessKeyID,
		SecretAccessKey: b.SecretAccessKey,
		PathStyle:       b.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set [backup] bucket in: tuisplit config)", err)
	}
	return remote, nil
}

func datasetSummary(ds model.Dataset) string {
	return fmt.Sprintf("%d groups, %d runs, %s recorded",
		len(ds.Groups), len(ds.Runs), units.HumanDuration(recordedSpan(ds)))
}

// recordedSpan sums the final recorded time of every run.
func recordedSpan(ds model.Dataset) time.Duration {
	totals := make(map[int64]int64, len(ds.Runs))
	for _, rt := range ds.RunTimes {
		if rt.Time > totals[rt.RunID] {
			totals[rt.RunID] = rt.Time
		}
	}
	var sum int64
	for _, ms := range totals {
		sum += ms
	}
	return time.Duration(sum) * time.Millisecond
}
