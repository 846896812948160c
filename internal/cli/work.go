package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adematti/desipipe"
)

var workSpecPath string

// workCmd is the hidden entry point a Provider re-execs the binary
// with: one task spec in, one result file out. It is never meant to
// be invoked directly by a user, per spec.md section 4.7.
var workCmd = &cobra.Command{
	Use:    "work",
	Short:  "Run one task from a worker-spec file (internal)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if workSpecPath == "" {
			return fmt.Errorf("desipipe: work requires --spec")
		}
		return desipipe.RunWork(workSpecPath)
	},
}

func init() {
	workCmd.Flags().StringVar(&workSpecPath, "spec", "", "path to the worker-spec JSON file")
	rootCmd.AddCommand(workCmd)
}
