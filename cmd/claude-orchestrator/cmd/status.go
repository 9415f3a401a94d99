package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nichiki/claude-orchestrator/internal/config"
	"github.com/nichiki/claude-orchestrator/internal/wbs"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <wbs-file>",
	Short: "Show task status for a work breakdown structure",
	Long:  "Loads a work breakdown structure and, if a state file exists, overlays the last persisted lifecycle state for each task, printing a summary table.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&runStateFile, "state-file", "", "path to the persisted execution state")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

// persistedState mirrors the JSON shape orchestrator.ExecutionState writes —
// duplicated here, not imported, since the CLI only ever reads this file.
type persistedState struct {
	Timestamp  string                   `json:"timestamp"`
	TaskStatus map[string]wbs.TaskState `json:"task_status"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	wbsPath := args[0]

	graph, err := wbs.Load(wbsPath)
	if err != nil {
		return fmt.Errorf("loading work breakdown structure: %w", err)
	}

	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	statePath := runStateFile
	if statePath == "" {
		statePath = cfg.Workspace.StateFile
	}

	if statePath != "" {
		if data, err := os.ReadFile(statePath); err == nil {
			var st persistedState
			if err := json.Unmarshal(data, &st); err != nil {
				return fmt.Errorf("parsing state file: %w", err)
			}
			for id, state := range st.TaskStatus {
				if _, ok := graph.Task(id); ok {
					_ = graph.Update(id, state)
				}
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("reading state file: %w", err)
		}
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(graph.Tasks()); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tPHASE\tSTATUS\tDEPENDENCIES")
		fmt.Fprintln(w, "----\t-----\t------\t------------")
		for _, t := range graph.Tasks() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Phase, t.State, joinOrDash(t.Dependencies))
		}
		w.Flush()

		s := graph.Summary()
		fmt.Printf("\n%d total, %d completed, %d failed, %d in progress, %d pending\n",
			s.Total, s.Completed, s.Failed, s.InProgress, s.Pending)
	}

	if s := graph.Summary(); s.Failed > 0 {
		return fmt.Errorf("%d task(s) failed", s.Failed)
	}
	return nil
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += "," + s
	}
	return out
}
