package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adematti/desipipe"
)

var resumeSpawn bool

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Set the queue given by -q to ACTIVE",
	RunE: func(cmd *cobra.Command, args []string) error {
		if queueName == "" {
			return fmt.Errorf("desipipe: resume requires -q/--queue")
		}
		q, err := desipipe.OpenQueue(cfg.BaseDir, queueName)
		if err != nil {
			return err
		}
		defer q.Close()
		if err := q.Resume(context.Background()); err != nil {
			return err
		}
		if resumeSpawn {
			return desipipe.SpawnDetached(cfg.BaseDir, queueName)
		}
		return nil
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeSpawn, "spawn", false, "also launch a manager loop in the background")
	rootCmd.AddCommand(resumeCmd)
}
