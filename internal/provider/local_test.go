package provider

import (
	"context"
	"testing"
	"time"

	"github.com/adematti/desipipe/internal/workerspec"
)

func TestLocalKillReportsKilledStatus(t *testing.T) {
	p, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	// Stand in for the hidden "work" subcommand with a process that
	// just sleeps, so Kill has something to terminate before it would
	// exit (and write a result file) on its own.
	p.ExecPath = "bash"
	p.WorkArgs = []string{"-c", "sleep 5"}

	h, err := p.Spawn(context.Background(), workerspec.Spec{TaskID: "1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Kill(context.Background(), h); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var status Status
	for time.Now().Before(deadline) {
		status, err = p.Poll(context.Background(), h)
		if err != nil {
			t.Fatal(err)
		}
		if status != Running {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status != Killed {
		t.Fatalf("expected Poll to report Killed after Kill, got %v", status)
	}
}
