package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/adematti/desipipe/internal/workerspec"
)

// Local forks a worker process per task -- the same executable that is
// running the manager, re-invoked with the hidden "work" subcommand,
// per spec.md section 4.7's "Local process provider: fork-exec a
// worker binary with env and a task-spec file; track by PID."
type Local struct {
	// ExecPath is the worker binary to exec. Defaults to the current
	// executable (os.Executable()) so a manager re-execs itself.
	ExecPath string
	// WorkArgs is prefixed before "--spec <path>", e.g. ["work"] to
	// select the hidden CLI subcommand.
	WorkArgs []string
	// SpecDir holds per-task spec/result files.
	SpecDir string
}

func NewLocal(specDir string) (*Local, error) {
	if err := os.MkdirAll(specDir, 0o700); err != nil {
		return nil, err
	}
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return &Local{ExecPath: exe, WorkArgs: []string{"work"}, SpecDir: specDir}, nil
}

type localHandle struct {
	jobID      string
	cmd        *exec.Cmd
	resultPath string

	mu     sync.Mutex
	done   bool
	err    error
	killed bool
}

func (h *localHandle) JobID() string      { return h.jobID }
func (h *localHandle) ResultPath() string { return h.resultPath }

func (p *Local) Spawn(ctx context.Context, spec workerspec.Spec) (Handle, error) {
	jobID := uuid.NewString()
	specPath := filepath.Join(p.SpecDir, "spec-"+jobID+".json")
	if spec.ResultPath == "" {
		spec.ResultPath = filepath.Join(p.SpecDir, "result-"+jobID+".json")
	}
	b, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("provider/local: marshal spec: %w", err)
	}
	if err := os.WriteFile(specPath, b, 0o600); err != nil {
		return nil, fmt.Errorf("provider/local: write spec: %w", err)
	}

	args := append(append([]string{}, p.WorkArgs...), "--spec", specPath)
	cmd := exec.Command(p.ExecPath, args...)
	cmd.Env = append(os.Environ(), envPairs(spec.Environ)...)
	cmd.Stdout, cmd.Stderr = nil, nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("provider/local: start: %w", err)
	}

	h := &localHandle{jobID: jobID, cmd: cmd, resultPath: spec.ResultPath}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.done, h.err = true, err
		h.mu.Unlock()
	}()
	return h, nil
}

func (p *Local) Poll(ctx context.Context, handle Handle) (Status, error) {
	h, ok := handle.(*localHandle)
	if !ok {
		return Failed, fmt.Errorf("provider/local: wrong handle type")
	}
	h.mu.Lock()
	done, waitErr, killed := h.done, h.err, h.killed
	h.mu.Unlock()
	if !done {
		return Running, nil
	}
	if killed {
		// A SIGTERM'd worker exits before it gets a chance to write its
		// result file, so this must be checked before the result-file
		// probe below, which would otherwise misreport it as Failed.
		return Killed, nil
	}
	if waitErr != nil {
		return Failed, nil
	}
	if _, err := os.Stat(h.resultPath); err != nil {
		return Failed, nil
	}
	return Succeeded, nil
}

func (p *Local) Kill(ctx context.Context, handle Handle) error {
	h, ok := handle.(*localHandle)
	if !ok {
		return fmt.Errorf("provider/local: wrong handle type")
	}
	if h.cmd.Process == nil {
		return nil
	}
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func envPairs(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
