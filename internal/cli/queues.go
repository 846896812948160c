package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adematti/desipipe"
)

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "List queues matching -q and their task counts by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		glob := queueName
		names, err := desipipe.ListQueues(cfg.BaseDir, glob)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("no queues found")
			return nil
		}
		ctx := context.Background()
		for _, name := range names {
			q, err := desipipe.OpenQueue(cfg.BaseDir, name)
			if err != nil {
				return err
			}
			state, err := q.State(ctx)
			if err != nil {
				_ = q.Close()
				return err
			}
			summary, err := q.Summary(ctx)
			if err != nil {
				_ = q.Close()
				return err
			}
			_ = q.Close()
			fmt.Printf("%-20s %-8s", name, state)
			for _, st := range desipipe.AllTaskStates {
				fmt.Printf(" %s=%d", st, summary[st])
			}
			fmt.Println()
		}
		return nil
	},
}

func init() { rootCmd.AddCommand(queuesCmd) }
