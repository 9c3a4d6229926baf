// Package main provides the CLI entrypoint for tuisplit.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/tuisplit/internal/config"
	"github.com/verte-zerg/tuisplit/internal/engine"
	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/server"
	"github.com/verte-zerg/tuisplit/internal/store"
	"github.com/verte-zerg/tuisplit/internal/tui"
)

const (
	defaultTickMs      = 50
	defaultDebounceMs  = 100
	defaultSaveRetries = 2
	defaultListen      = "127.0.0.1:7345"
	defaultLogLevel    = "info"
)

var (
	timerGroup       int64
	timerTickMs      int
	timerDebounceMs  int
	timerSaveRetries int
	timerListen      string
	timerServe       bool

	logLevel string
	log      *logrus.Logger
	fileCfg  config.FileConfig
)

func main() {
	log = logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "tuisplit",
		Short:             "TUI speedrun split timer",
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: setupCmd,
		RunE:              runTimerCmd,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel,
		"log level ("+strings.Join(logLevels(), ", ")+")")

	rootCmd.Flags().Int64Var(&timerGroup, "group", 0, "group id to time (default: first group)")
	rootCmd.Flags().IntVar(&timerTickMs, "tick-ms", defaultTickMs, "display refresh interval in milliseconds")
	rootCmd.Flags().IntVar(&timerDebounceMs, "debounce-ms", defaultDebounceMs, "ignore split presses closer than this")
	rootCmd.Flags().IntVar(&timerSaveRetries, "save-retries", defaultSaveRetries, "extra attempts when saving a run fails")
	rootCmd.Flags().StringVar(&timerListen, "listen", defaultListen, "control API listen address")
	rootCmd.Flags().BoolVar(&timerServe, "serve", false, "serve the control API while the timer runs")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newGroupsCmd())
	rootCmd.AddCommand(newGroupCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newShareCmd())
	rootCmd.AddCommand(newBackupCmd())

	return rootCmd
}

// setupCmd loads the config file and applies the log level for every command.
func setupCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fileCfg = cfg

	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	log.SetLevel(level)
	return nil
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}
	return levels
}

func runTimerCmd(cmd *cobra.Command, _ []string) error {
	applyInt64Config(cmd, "group", &timerGroup, fileCfg.Timer.Group)
	applyIntConfig(cmd, "tick-ms", &timerTickMs, fileCfg.Timer.TickMs)
	applyIntConfig(cmd, "debounce-ms", &timerDebounceMs, fileCfg.Timer.DebounceMs)
	applyIntConfig(cmd, "save-retries", &timerSaveRetries, fileCfg.Timer.SaveRetries)
	applyStringConfig(cmd, "listen", &timerListen, fileCfg.Server.Listen)
	applyBoolConfig(cmd, "serve", &timerServe, fileCfg.Server.Enabled)

	if err := validateTimerFlags(); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	groups, err := st.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}
	if len(groups) == 0 {
		logErrln("No groups yet. Create one with: tuisplit group create --name <name> --splits a,b,c")
	}
	groupID := timerGroup
	if groupID == 0 && len(groups) > 0 {
		groupID = groups[0].ID
	}

	// The TUI owns the terminal, so logs go to a file until it exits.
	logFile, err := openLogFile()
	if err != nil {
		return err
	}
	defer func() {
		log.SetOutput(os.Stderr)
		_ = logFile.Close()
	}()
	log.SetOutput(logFile)

	eng := engine.New(log, st, model.TimerConfig{
		GroupID:     groupID,
		Tick:        time.Duration(timerTickMs) * time.Millisecond,
		Debounce:    time.Duration(timerDebounceMs) * time.Millisecond,
		SaveRetries: timerSaveRetries,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})

	if timerServe {
		srv := server.New(log, server.Config{
			Listen:      timerListen,
			CORSOrigins: fileCfg.Server.CORSOrigins,
		}, eng)
		if err := srv.Start(gctx); err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("failed to start control API: %w", err)
		}
		defer func() {
			if err := srv.Stop(); err != nil {
				logErrf("failed to stop control API: %v\n", err)
			}
		}()
	}

	ui := tui.NewModel(eng, tui.NewKeyMap(keyBindings(fileCfg.Keys)), groups)
	program := tea.NewProgram(ui, tea.WithAltScreen(), tea.WithContext(gctx))
	g.Go(func() error {
		defer cancel()
		defer ui.Close()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if snap := eng.Snapshot(); snap.SaveFailures > 0 {
		logErrf("%d run(s) could not be saved; see %s\n", snap.SaveFailures, logFile.Name())
	}
	return nil
}

func validateTimerFlags() error {
	if timerGroup < 0 {
		return fmt.Errorf("--group must be >= 0")
	}
	if timerTickMs < 1 || timerTickMs > 1000 {
		return fmt.Errorf("--tick-ms must be between 1 and 1000")
	}
	if timerDebounceMs < 0 {
		return fmt.Errorf("--debounce-ms must be >= 0")
	}
	if timerSaveRetries < 0 {
		return fmt.Errorf("--save-retries must be >= 0")
	}
	if timerServe && strings.TrimSpace(timerListen) == "" {
		return fmt.Errorf("--listen must not be empty")
	}
	return nil
}

func keyBindings(cfg config.KeysConfig) model.KeyBindings {
	return model.KeyBindings{
		Split:     cfg.Split,
		Pause:     cfg.Pause,
		Reset:     cfg.Reset,
		NextGroup: cfg.NextGroup,
		Quit:      cfg.Quit,
	}
}

func openStore() (*store.Store, error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

func openLogFile() (*os.File, error) {
	path := config.DefaultLogPath()
	if fileCfg.Log.File != nil && strings.TrimSpace(*fileCfg.Log.File) != "" {
		path = *fileCfg.Log.File
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# tuisplit configuration
# Uncomment a value to enable it. CLI flags override config values.

[timer]
# group = 1                # Group id to time (default: first group)
# tick-ms = %d             # Display refresh interval in milliseconds (1-1000)
# debounce-ms = %d        # Ignore split presses closer than this
# save-retries = %d         # Extra attempts when saving a run fails

[keys]
# Key names as reported by the terminal, e.g. "space", "enter", "ctrl+s".
# split = ["space", "enter"]
# pause = ["p"]
# reset = ["r", "backspace"]
# next-group = ["tab", "g"]
# quit = ["q", "ctrl+c"]

[server]
# enabled = false          # Serve the control API while the timer runs
# listen = %q
# cors-origins = ["*"]

[backup]
# bucket = ""
# region = "us-east-1"
# endpoint = ""            # S3-compatible endpoint URL
# prefix = "tuisplit"
# access-key-id = ""
# secret-access-key = ""
# path-style = false

[log]
# level = %q
# file = ""                # Default: $XDG_DATA_HOME/tuisplit/tuisplit.log
`,
		defaultTickMs,
		defaultDebounceMs,
		defaultSaveRetries,
		defaultListen,
		defaultLogLevel,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func writeOut(w io.Writer, format string, args ...any) error {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
