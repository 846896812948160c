package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adematti/desipipe"
	"github.com/adematti/desipipe/internal/cache"
	"github.com/adematti/desipipe/internal/manager"
	"github.com/adematti/desipipe/internal/provider"
	"github.com/adematti/desipipe/internal/scheduler"
	"github.com/adematti/desipipe/internal/store"
)

var (
	spawnMaxWorkers int
	spawnDetached   bool
)

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Run a manager loop for the queue given by -q",
	RunE: func(cmd *cobra.Command, args []string) error {
		if queueName == "" {
			return fmt.Errorf("desipipe: spawn requires -q/--queue")
		}
		if spawnDetached {
			return desipipe.SpawnDetached(cfg.BaseDir, queueName)
		}

		st, err := store.Open(cfg.BaseDir, queueName)
		if err != nil {
			return err
		}
		defer st.Close()
		c, err := cache.Open(cfg.BaseDir)
		if err != nil {
			return err
		}

		specDir := filepath.Join(cfg.BaseDir, ".desipipe", "work", queueName)
		local, err := provider.NewLocal(specDir)
		if err != nil {
			return err
		}

		if !cmd.Flags().Changed("max-workers") {
			spawnMaxWorkers = cfg.MaxWorkers
		}
		sched := scheduler.New(st, c, local, scheduler.Config{MaxWorkers: spawnMaxWorkers})
		owner := fmt.Sprintf("pid-%d", os.Getpid())
		mgr := manager.New(st, sched, owner, manager.Config{})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		fmt.Printf("manager for queue %q started, ctrl+C to stop\n", queueName)
		return mgr.Run(ctx)
	},
}

func init() {
	spawnCmd.Flags().IntVar(&spawnMaxWorkers, "max-workers", 1, "maximum concurrent local workers")
	spawnCmd.Flags().BoolVar(&spawnDetached, "spawn", false, "launch the manager loop in the background instead of running it here")
	rootCmd.AddCommand(spawnCmd)
}
