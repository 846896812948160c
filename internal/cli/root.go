// Package cli implements the desipipe command-line surface of
// spec.md section 6: queues, tasks, pause, resume, retry, spawn,
// delete, config, and the hidden work entry point, wired through a
// single cobra root command in the teacher's style.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adematti/desipipe/internal/config"
)

var (
	queueName string
	baseDir   string
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "desipipe",
	Short: "A distributed task pipeline for scientific data processing.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if baseDir != "" {
			cfg.BaseDir = baseDir
		}
		return nil
	},
}

// Execute runs the root command; it is desipipe's process entry point.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&queueName, "queue", "q", "", "queue name (or glob, for queues/delete)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "queue storage directory (default $HOME/.desipipe)")
}
