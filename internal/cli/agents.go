package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List available agent types",
	RunE:  runAgents,
}

var agentsRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded agent runs",
	RunE:  runAgentRuns,
}

func init() {
	agentsCmd.AddCommand(agentsRunsCmd)
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	app, err := buildApp(false)
	if err != nil {
		return err
	}
	defer app.Close()

	for _, name := range app.AgentDefs.Names() {
		spec, ok := app.AgentDefs.Lookup(name)
		if !ok {
			continue
		}
		fmt.Printf("%-12s %s\n", name, spec.Description)
	}
	return nil
}

func runAgentRuns(cmd *cobra.Command, args []string) error {
	app, err := buildApp(false)
	if err != nil {
		return err
	}
	defer app.Close()

	runs := app.AgentRuns.List()
	if len(runs) == 0 {
		fmt.Println("No agent runs recorded.")
		return nil
	}

	for _, h := range runs {
		started := time.UnixMilli(h.StartedAt).Format(time.RFC3339)
		fmt.Printf("%-22s %-10s %-10s depth=%d  %s\n", h.ID, h.AgentType, h.Status, h.Depth, started)
		if h.Error != "" {
			fmt.Printf("    error: %s\n", h.Error)
		}
	}

	stats := app.AgentRuns.GetStats()
	fmt.Printf("\n%d total, %d active, %d completed, %d failed\n",
		stats.TotalRuns, stats.ActiveRuns, stats.CompletedRuns, stats.FailedRuns)
	return nil
}
