// Command desipipe is the CLI entry point for the task-execution
// engine: queue inspection, pause/resume/retry/spawn/delete, and the
// hidden worker invocation used internally by the Local Provider.
package main

import "github.com/adematti/desipipe/internal/cli"

func main() {
	cli.Execute()
}
