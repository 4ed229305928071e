package aria2

import (
	"context"
	"io"
	"os"
	"os/exec"
)

// Runner executes the aria2c binary.
type Runner interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args []string) error
	Output(ctx context.Context, name string, args []string) ([]byte, error)
}

// ExecRunner runs commands as child processes, streaming their console
// output.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (e *ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (e *ExecRunner) Run(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	return cmd.Run()
}

func (e *ExecRunner) Output(ctx context.Context, name string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
