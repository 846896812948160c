package desipipe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/adematti/desipipe/internal/workerspec"
)

func writeSpec(t *testing.T, dir string, spec workerspec.Spec) string {
	t.Helper()
	b, err := json.Marshal(spec)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "spec.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func readResult(t *testing.T, path string) workerspec.Result {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var r workerspec.Result
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRunWorkExecutesRegisteredPythonApp(t *testing.T) {
	tm := newTestTaskManager(t)
	tm.PythonApp("run-work-python", func(args []any, kwargs map[string]any) (any, error) {
		fmt.Println("hello from worker")
		return "value", nil
	})

	dir := t.TempDir()
	resultPath := filepath.Join(dir, "result.json")
	specPath := writeSpec(t, dir, workerspec.Spec{
		TaskID: "1", AppName: "run-work-python", Kind: string(KindPythonApp), ResultPath: resultPath,
	})

	if err := RunWork(specPath); err != nil {
		t.Fatal(err)
	}
	result := readResult(t, resultPath)
	if result.Errno != 0 {
		t.Fatalf("expected errno=0, got %d (err=%s)", result.Errno, result.Err)
	}
	var v string
	if err := json.Unmarshal(result.Payload, &v); err != nil {
		t.Fatal(err)
	}
	if v != "value" {
		t.Fatalf("expected payload \"value\", got %q", v)
	}
	if result.Out != "hello from worker\n" {
		t.Fatalf("expected captured stdout, got %q", result.Out)
	}
}

func TestRunWorkReportsPythonAppError(t *testing.T) {
	tm := newTestTaskManager(t)
	tm.PythonApp("run-work-failing", func(args []any, kwargs map[string]any) (any, error) {
		return nil, fmt.Errorf("boom")
	})

	dir := t.TempDir()
	resultPath := filepath.Join(dir, "result.json")
	specPath := writeSpec(t, dir, workerspec.Spec{
		TaskID: "1", AppName: "run-work-failing", Kind: string(KindPythonApp), ResultPath: resultPath,
	})

	err := RunWork(specPath)
	if err == nil {
		t.Fatal("expected RunWork to report a non-nil error on a failing app")
	}
	result := readResult(t, resultPath)
	if result.Errno == 0 {
		t.Fatal("expected a nonzero errno on a failing app, per the success-iff-zero-exit-and-result-file contract")
	}
}

func TestRunWorkUnknownAppWritesResultAndErrors(t *testing.T) {
	dir := t.TempDir()
	resultPath := filepath.Join(dir, "result.json")
	specPath := writeSpec(t, dir, workerspec.Spec{
		TaskID: "1", AppName: "no-such-app", Kind: string(KindPythonApp), ResultPath: resultPath,
	})

	if err := RunWork(specPath); err == nil {
		t.Fatal("expected an error for an unregistered app name")
	}
	result := readResult(t, resultPath)
	if result.Errno != 127 {
		t.Fatalf("expected errno=127 for an unregistered app, got %d", result.Errno)
	}
}

func TestRunWorkBashAppCapturesStdout(t *testing.T) {
	tm := newTestTaskManager(t)
	tm.BashApp("run-work-bash", func(args []any, kwargs map[string]any) ([]string, error) {
		return []string{"echo", "bash-output"}, nil
	})

	dir := t.TempDir()
	resultPath := filepath.Join(dir, "result.json")
	specPath := writeSpec(t, dir, workerspec.Spec{
		TaskID: "1", AppName: "run-work-bash", Kind: string(KindBashApp), ResultPath: resultPath,
	})

	if err := RunWork(specPath); err != nil {
		t.Fatal(err)
	}
	result := readResult(t, resultPath)
	if result.Errno != 0 {
		t.Fatalf("expected errno=0, got %d (err=%s)", result.Errno, result.Err)
	}
	if result.Out != "bash-output\n" {
		t.Fatalf("expected captured stdout \"bash-output\\n\", got %q", result.Out)
	}
}
