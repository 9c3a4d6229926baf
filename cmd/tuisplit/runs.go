package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/runsui"
	"github.com/verte-zerg/tuisplit/internal/stats"
	"github.com/verte-zerg/tuisplit/internal/store"
)

const (
	defaultCurveWindow = 5
	plainPlotHeight    = 10
	plainDefaultWidth  = 100
)

var (
	runsGroup       int64
	runsPlain       bool
	runsCurveWindow int

	shareGroup int64
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse run history",
		Args:  cobra.NoArgs,
		RunE:  runRunsCmd,
	}
	cmd.Flags().Int64Var(&runsGroup, "group", 0, "group id (default: configured or first group)")
	cmd.Flags().BoolVar(&runsPlain, "plain", false, "print a text report instead of the TUI")
	cmd.Flags().IntVar(&runsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsDeleteCmd,
	}
	cmd.AddCommand(deleteCmd)
	return cmd
}

func runRunsCmd(cmd *cobra.Command, _ []string) error {
	if runsCurveWindow < 1 {
		return fmt.Errorf("--curve-window must be >= 1")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	groupID, err := resolveGroup(ctx, st, runsGroup)
	if err != nil {
		return err
	}

	if runsPlain {
		report, err := stats.BuildReport(ctx, st, groupID)
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}
		return renderPlainReport(cmd.OutOrStdout(), report, runsCurveWindow, plainWidth())
	}

	ui := runsui.NewModel(st, model.RunsConfig{GroupID: groupID, CurveWindow: runsCurveWindow})
	program := tea.NewProgram(ui, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run runs TUI: %w", err)
	}
	return nil
}

func renderPlainReport(w io.Writer, report stats.Report, window, width int) error {
	if err := stats.RenderSummary(w, report); err != nil {
		return err
	}
	if err := writeOut(w, "\n"); err != nil {
		return err
	}
	if err := stats.RenderRunsTable(w, report, time.Now()); err != nil {
		return err
	}
	if len(report.Runs) == 0 {
		return nil
	}
	if err := writeOut(w, "\n"); err != nil {
		return err
	}
	return stats.RenderCurvesWithSize(w, report, window, width, plainPlotHeight, false)
}

func plainWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return plainDefaultWidth
	}
	return width
}

func runRunsDeleteCmd(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := st.DeleteRun(cmd.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("run %d not found", id)
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return writeOut(cmd.OutOrStdout(), "Deleted run %d\n", id)
}

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Print shareable split times",
	}
	cmd.PersistentFlags().Int64Var(&shareGroup, "group", 0, "group id (default: configured or first group)")

	pbCmd := &cobra.Command{
		Use:   "pb",
		Short: "Personal best splits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShare(cmd, func(r stats.Report) (string, error) {
				if !r.HasAnyCompleteRun {
					return "", fmt.Errorf("no complete runs yet")
				}
				return stats.PBMessage(r), nil
			})
		},
	}
	bestCmd := &cobra.Command{
		Use:   "best",
		Short: "Best possible time from best segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShare(cmd, func(r stats.Report) (string, error) {
				return stats.BestPossibleMessage(r), nil
			})
		},
	}
	runCmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Splits of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runShare(cmd, func(r stats.Report) (string, error) {
				row, ok := r.FindRun(id)
				if !ok {
					return "", fmt.Errorf("run %d not found in group %d", id, r.Group.ID)
				}
				return stats.RunMessage(r, row), nil
			})
		},
	}
	cmd.AddCommand(pbCmd, bestCmd, runCmd)
	return cmd
}

func runShare(cmd *cobra.Command, message func(stats.Report) (string, error)) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	groupID, err := resolveGroup(ctx, st, shareGroup)
	if err != nil {
		return err
	}
	report, err := stats.BuildReport(ctx, st, groupID)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	text, err := message(report)
	if err != nil {
		return err
	}
	return writeOut(cmd.OutOrStdout(), "%s\n", text)
}
