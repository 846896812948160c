package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adematti/desipipe"
)

var configCmd = &cobra.Command{Use: "config", Short: "Get or set per-queue configuration"}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print every config key for the queue given by -q",
	RunE: func(cmd *cobra.Command, args []string) error {
		if queueName == "" {
			return fmt.Errorf("desipipe: config get requires -q/--queue")
		}
		q, err := desipipe.OpenQueue(cfg.BaseDir, queueName)
		if err != nil {
			return err
		}
		defer q.Close()
		all, err := q.AllConfig(context.Background())
		if err != nil {
			return err
		}
		for k, v := range all {
			fmt.Printf("%s=%s\n", k, v)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config key for the queue given by -q",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if queueName == "" {
			return fmt.Errorf("desipipe: config set requires -q/--queue")
		}
		q, err := desipipe.OpenQueue(cfg.BaseDir, queueName)
		if err != nil {
			return err
		}
		defer q.Close()
		return q.SetConfig(context.Background(), args[0], args[1])
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
