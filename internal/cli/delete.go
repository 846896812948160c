package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adematti/desipipe"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Preview (without --force) or delete queues matching -q",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := desipipe.ListQueues(cfg.BaseDir, queueName)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("no queues matched")
			return nil
		}
		if !deleteForce {
			fmt.Println("would delete:")
			for _, n := range names {
				fmt.Println(" ", n)
			}
			fmt.Println("(re-run with --force to delete)")
			return nil
		}
		ctx := context.Background()
		for _, n := range names {
			q, err := desipipe.OpenQueue(cfg.BaseDir, n)
			if err != nil {
				return err
			}
			if err := q.Delete(ctx); err != nil {
				return err
			}
			fmt.Println("deleted", n)
		}
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "actually delete instead of previewing")
	rootCmd.AddCommand(deleteCmd)
}
