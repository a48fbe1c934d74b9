package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks on the shared board",
	RunE:  runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	app, err := buildApp(false)
	if err != nil {
		return err
	}
	defer app.Close()

	tasks := app.Board.List()
	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}

	for _, task := range tasks {
		fmt.Printf("#%-4d %-12s %s\n", task.ID, task.Status, task.Title)
		if task.Notes != "" {
			fmt.Printf("      %s\n", task.Notes)
		}
	}
	return nil
}
