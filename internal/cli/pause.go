package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adematti/desipipe"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Set the queue given by -q to PAUSED",
	RunE: func(cmd *cobra.Command, args []string) error {
		if queueName == "" {
			return fmt.Errorf("desipipe: pause requires -q/--queue")
		}
		q, err := desipipe.OpenQueue(cfg.BaseDir, queueName)
		if err != nil {
			return err
		}
		defer q.Close()
		return q.Pause(context.Background())
	},
}

func init() { rootCmd.AddCommand(pauseCmd) }
