package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nichiki/claude-orchestrator/internal/config"
	"github.com/nichiki/claude-orchestrator/internal/logging"
	"github.com/nichiki/claude-orchestrator/internal/orchestrator"
	"github.com/nichiki/claude-orchestrator/internal/workspace"
)

var (
	runWorkspace     string
	runStateFile     string
	runMaxConcurrent int
	runDryRun        bool
	runVerbose       bool
	runFailFast      bool
	runAgentPath     string
	runHistoryDB     string
)

var runCmd = &cobra.Command{
	Use:   "run <wbs-file>",
	Short: "Execute a work breakdown structure",
	Long: `Run loads a work breakdown structure, then drives tasks to completion in
dependency order: for each runnable task it spawns an isolated sandbox,
invokes the configured agent, and integrates the result into the shared
workspace.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "workspace root directory")
	runCmd.Flags().StringVar(&runStateFile, "state-file", "", "path to persist/resume execution state")
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 0, "maximum concurrent tasks")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "simulate execution without invoking the agent")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "stream progress events to stderr")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "stop at the first task failure")
	runCmd.Flags().StringVar(&runAgentPath, "agent", "", "path to the agent binary")
	runCmd.Flags().StringVar(&runHistoryDB, "history-db", "", "path to the SQLite execution-history index (disabled if unset)")

	_ = viper.BindPFlag("workspace.root", runCmd.Flags().Lookup("workspace"))
	_ = viper.BindPFlag("workspace.state_file", runCmd.Flags().Lookup("state-file"))
	_ = viper.BindPFlag("workspace.history_db", runCmd.Flags().Lookup("history-db"))
	_ = viper.BindPFlag("run.max_concurrent", runCmd.Flags().Lookup("max-concurrent"))
	_ = viper.BindPFlag("run.dry_run", runCmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("run.fail_fast", runCmd.Flags().Lookup("fail-fast"))
	_ = viper.BindPFlag("agent.path", runCmd.Flags().Lookup("agent"))
}

func runRun(_ *cobra.Command, args []string) error {
	wbsPath := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "received interrupt, stopping after the current batch...")
		cancel()
	}()

	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})

	var history *workspace.History
	if cfg.Workspace.HistoryDB != "" {
		history, err = workspace.OpenHistory(cfg.Workspace.HistoryDB)
		if err != nil {
			return fmt.Errorf("opening execution history index: %w", err)
		}
		defer func() {
			if closeErr := history.Close(); closeErr != nil {
				logger.Warn("closing execution history index", "error", closeErr)
			}
		}()
	}

	o, err := orchestrator.New(wbsPath, orchestrator.Options{
		WorkspaceRoot: cfg.Workspace.Root,
		StateFile:     cfg.Workspace.StateFile,
		AgentPath:     cfg.Agent.Path,
		AgentTimeout:  cfg.Agent.Timeout,
		MaxConcurrent: cfg.Run.MaxConcurrent,
		DryRun:        cfg.Run.DryRun,
		FailFast:      cfg.Run.FailFast,
		History:       history,
	}, logger)
	if err != nil {
		return fmt.Errorf("loading work breakdown structure: %w", err)
	}

	if runVerbose {
		events := o.Subscribe()
		go func() {
			for e := range events {
				fmt.Fprintf(os.Stderr, "[%s] %s", e.Timestamp.Format("15:04:05"), e.Type)
				if e.TaskID != "" {
					fmt.Fprintf(os.Stderr, " task=%s", e.TaskID)
				}
				if e.Error != "" {
					fmt.Fprintf(os.Stderr, " error=%q", e.Error)
				}
				if e.Summary != nil {
					fmt.Fprintf(os.Stderr, " completed=%d/%d failed=%d",
						e.Summary.Completed, e.Summary.Total, e.Summary.Failed)
				}
				fmt.Fprintln(os.Stderr)
			}
		}()
	}

	summary, err := o.Run(ctx)
	if err != nil {
		return fmt.Errorf("running orchestrator: %w", err)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d task(s) failed", summary.Failed)
	}
	fmt.Fprintf(os.Stdout, "completed %d/%d tasks\n", summary.Completed, summary.Total)
	return nil
}
