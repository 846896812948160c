package desipipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/adematti/desipipe/internal/workerspec"
)

// RunWork is the hidden "work" subcommand's entry point: it reads a
// worker-spec file written by the scheduler, looks up the named app in
// this process's registry, runs it, and writes a workerspec.Result
// file back. It is re-exec'd by the Local Provider in a fresh process
// per task, per spec.md section 4.7 -- the same binary, the same
// app registrations, just invoked with `work --spec <path>` instead of
// the caller's own command.
func RunWork(specPath string) error {
	b, err := os.ReadFile(specPath)
	if err != nil {
		return fmt.Errorf("desipipe: read spec %s: %w", specPath, err)
	}
	var spec workerspec.Spec
	if err := json.Unmarshal(b, &spec); err != nil {
		return fmt.Errorf("desipipe: decode spec %s: %w", specPath, err)
	}

	app, ok := lookupApp(spec.AppName)
	if !ok {
		return writeResult(spec.ResultPath, workerspec.Result{
			Errno: 127,
			Err:   fmt.Sprintf("desipipe: no app registered under name %q", spec.AppName),
		})
	}

	var result workerspec.Result
	switch Kind(spec.Kind) {
	case KindPythonApp:
		result = runPythonApp(app, spec)
	case KindBashApp:
		result = runBashApp(app, spec)
	default:
		result = workerspec.Result{Errno: 126, Err: fmt.Sprintf("desipipe: unknown app kind %q", spec.Kind)}
	}
	return writeResult(spec.ResultPath, result)
}

// runPythonApp invokes the registered native function, capturing
// stdout/stderr the way the original implementation's PythonApp.run
// redirects sys.stdout/sys.stderr around the call.
func runPythonApp(app *App, spec workerspec.Spec) workerspec.Result {
	if app.pyFn == nil {
		return workerspec.Result{Errno: 126, Err: fmt.Sprintf("desipipe: app %q is not a PYTHON_APP", app.name)}
	}
	out, errOut, value, err := captureStdio(func() (any, error) {
		return app.pyFn(spec.Args, spec.Kwargs)
	})
	if err != nil {
		return workerspec.Result{Errno: 1, Out: out, Err: errOut + err.Error()}
	}
	payload, merr := json.Marshal(value)
	if merr != nil {
		return workerspec.Result{Errno: 1, Out: out, Err: fmt.Sprintf("marshal result: %v", merr)}
	}
	return workerspec.Result{Errno: 0, Payload: payload, Out: out, Err: errOut}
}

// runBashApp builds the argv via the registered BashFunc and runs it
// as a subprocess, capturing stdout/stderr separately -- the result
// value is the captured stdout, not a deserialized payload.
func runBashApp(app *App, spec workerspec.Spec) workerspec.Result {
	if app.bashFn == nil {
		return workerspec.Result{Errno: 126, Err: fmt.Sprintf("desipipe: app %q is not a BASH_APP", app.name)}
	}
	argv, err := app.bashFn(spec.Args, spec.Kwargs)
	if err != nil {
		return workerspec.Result{Errno: 1, Err: fmt.Sprintf("build argv: %v", err)}
	}
	if len(argv) == 0 {
		return workerspec.Result{Errno: 1, Err: "bash app returned an empty argv"}
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	runErr := cmd.Run()
	errno := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			errno = exitErr.ExitCode()
		} else {
			errno = 1
		}
	}
	return workerspec.Result{Errno: errno, Out: stdout.String(), Err: stderr.String()}
}

// captureStdio temporarily redirects the process's stdout/stderr to
// pipes for the duration of fn, mirroring the original's
// contextlib.redirect_stdout/redirect_stderr. Safe here because a
// worker process runs exactly one task before exiting.
func captureStdio(fn func() (any, error)) (out, errOut string, value any, err error) {
	origOut, origErr := os.Stdout, os.Stderr
	outR, outW, perr := os.Pipe()
	if perr != nil {
		value, err = fn()
		return "", "", value, err
	}
	errR, errW, perr := os.Pipe()
	if perr != nil {
		outW.Close()
		outR.Close()
		value, err = fn()
		return "", "", value, err
	}
	os.Stdout, os.Stderr = outW, errW

	outDone := make(chan string, 1)
	errDone := make(chan string, 1)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, outR)
		outDone <- buf.String()
	}()
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, errR)
		errDone <- buf.String()
	}()

	value, err = fn()

	os.Stdout, os.Stderr = origOut, origErr
	outW.Close()
	errW.Close()
	out = <-outDone
	errOut = <-errDone
	outR.Close()
	errR.Close()
	return out, errOut, value, err
}

func writeResult(path string, result workerspec.Result) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return err
	}
	if result.Errno != 0 {
		return fmt.Errorf("desipipe: task failed: %s", result.Err)
	}
	return nil
}
