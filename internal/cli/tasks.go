package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adematti/desipipe"
)

var tasksState string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks in the queue given by -q, optionally filtered by --state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if queueName == "" {
			return fmt.Errorf("desipipe: tasks requires -q/--queue")
		}
		q, err := desipipe.OpenQueue(cfg.BaseDir, queueName)
		if err != nil {
			return err
		}
		defer q.Close()

		filter := desipipe.ListFilter{State: desipipe.TaskState(tasksState)}
		records, err := q.ListTasks(context.Background(), filter)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%-6s %-10s %-16s state=%-9s errno=%-3d jobid=%s\n",
				r.ID, string(r.Kind), r.AppName, r.State, r.Errno, r.JobID)
		}
		return nil
	},
}

func init() {
	tasksCmd.Flags().StringVar(&tasksState, "state", "", "filter by state (defaults to all)")
	rootCmd.AddCommand(tasksCmd)
}
