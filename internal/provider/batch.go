package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/adematti/desipipe/internal/workerspec"
)

// BatchConfig configures submission to an external workload manager,
// per spec.md section 4.7: "adapt worker count via max_workers, nodes,
// mpiprocs_per_worker, mpithreads_per_worker, walltime." The actual
// submit/poll/cancel commands are templates so this one Provider
// covers Slurm, PBS, or any other shared-filesystem batch system
// without the scheduler needing to know which.
type BatchConfig struct {
	Nodes                 int
	MPIProcsPerWorker     int
	MPIThreadsPerWorker   int
	Walltime              string // e.g. "04:00:00"
	// SubmitTemplate renders a job script; {{.ExecPath}} {{.SpecPath}}
	// {{.Nodes}} etc. are available.
	SubmitTemplate string
	// SubmitCmd is the command run against the rendered script, whose
	// stdout is expected to contain the batch-issued job id (the whole
	// trimmed stdout is used verbatim).
	SubmitCmd []string
	// PollCmd, given the job id as its final argument, must exit 0 and
	// print the job state on its first stdout line: "RUNNING" or
	// "PENDING" (Running), "SUCCEEDED" (Succeeded), or "CANCELLED" or
	// "KILLED" (Killed). Any other line, or a non-zero exit, is Failed.
	PollCmd []string
	// CancelCmd, given the job id as its final argument, terminates the job.
	CancelCmd []string

	ExecPath string
	WorkArgs []string
	SpecDir  string
}

type Batch struct {
	cfg BatchConfig
}

func NewBatch(cfg BatchConfig) (*Batch, error) {
	if cfg.ExecPath == "" {
		exe, err := os.Executable()
		if err != nil {
			exe = os.Args[0]
		}
		cfg.ExecPath = exe
	}
	if len(cfg.WorkArgs) == 0 {
		cfg.WorkArgs = []string{"work"}
	}
	if err := os.MkdirAll(cfg.SpecDir, 0o700); err != nil {
		return nil, err
	}
	return &Batch{cfg: cfg}, nil
}

type batchHandle struct {
	jobID      string
	resultPath string
}

func (h *batchHandle) JobID() string      { return h.jobID }
func (h *batchHandle) ResultPath() string { return h.resultPath }

type scriptVars struct {
	ExecPath            string
	SpecPath            string
	Nodes               int
	MPIProcsPerWorker   int
	MPIThreadsPerWorker int
	Walltime            string
}

func (p *Batch) Spawn(ctx context.Context, spec workerspec.Spec) (Handle, error) {
	specPath := filepath.Join(p.cfg.SpecDir, "spec-"+spec.TaskID+".json")
	if spec.ResultPath == "" {
		spec.ResultPath = filepath.Join(p.cfg.SpecDir, "result-"+spec.TaskID+".json")
	}
	if err := writeJSON(specPath, spec); err != nil {
		return nil, err
	}

	vars := scriptVars{
		ExecPath:            p.cfg.ExecPath,
		SpecPath:            specPath,
		Nodes:               p.cfg.Nodes,
		MPIProcsPerWorker:   p.cfg.MPIProcsPerWorker,
		MPIThreadsPerWorker: p.cfg.MPIThreadsPerWorker,
		Walltime:            p.cfg.Walltime,
	}
	scriptPath := filepath.Join(p.cfg.SpecDir, "job-"+spec.TaskID+".sh")
	if p.cfg.SubmitTemplate != "" {
		tmpl, err := template.New("batch-job").Parse(p.cfg.SubmitTemplate)
		if err != nil {
			return nil, fmt.Errorf("provider/batch: parse submit template: %w", err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, vars); err != nil {
			return nil, fmt.Errorf("provider/batch: render submit template: %w", err)
		}
		if err := os.WriteFile(scriptPath, buf.Bytes(), 0o700); err != nil {
			return nil, err
		}
	}

	if len(p.cfg.SubmitCmd) == 0 {
		return nil, fmt.Errorf("provider/batch: SubmitCmd is not configured")
	}
	args := expandArgs(p.cfg.SubmitCmd, scriptPath)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("provider/batch: submit: %w", err)
	}
	jobID := strings.TrimSpace(string(out))
	if jobID == "" {
		return nil, fmt.Errorf("provider/batch: submit command returned no job id")
	}
	return &batchHandle{jobID: jobID, resultPath: spec.ResultPath}, nil
}

func (p *Batch) Poll(ctx context.Context, handle Handle) (Status, error) {
	h, ok := handle.(*batchHandle)
	if !ok {
		return Failed, fmt.Errorf("provider/batch: wrong handle type")
	}
	if len(p.cfg.PollCmd) == 0 {
		return Failed, fmt.Errorf("provider/batch: PollCmd is not configured")
	}
	args := expandArgs(p.cfg.PollCmd, h.jobID)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		return Failed, nil
	}
	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	switch strings.ToUpper(line) {
	case "RUNNING", "PENDING":
		return Running, nil
	case "SUCCEEDED":
		return Succeeded, nil
	case "CANCELLED", "KILLED":
		return Killed, nil
	default:
		return Failed, nil
	}
}

func (p *Batch) Kill(ctx context.Context, handle Handle) error {
	h, ok := handle.(*batchHandle)
	if !ok {
		return fmt.Errorf("provider/batch: wrong handle type")
	}
	if len(p.cfg.CancelCmd) == 0 {
		return nil
	}
	args := expandArgs(p.cfg.CancelCmd, h.jobID)
	return exec.CommandContext(ctx, args[0], args[1:]...).Run()
}

func expandArgs(cmd []string, last string) []string {
	out := make([]string, len(cmd)+1)
	copy(out, cmd)
	out[len(cmd)] = last
	return out
}

func writeJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
