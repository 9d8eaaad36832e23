package cmdrunner

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Result captures a finished command invocation. A non-zero exit status is
// not a Go error; callers branch on ExitCode so fallback chains can treat
// tool failures as ordinary outcomes.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Output returns stderr if present, otherwise stdout. External disk tools
// are inconsistent about which stream carries the failure reason.
func (r Result) Output() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner executes an external command. The error return is reserved for
// spawn failures (binary missing, context canceled); an exited process
// always yields a Result.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// LookPather reports whether a binary is resolvable, used for optional
// collaborators such as plutil.
type LookPather interface {
	LookPath(name string) (string, error)
}

type ExecRunner struct{}

func New() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, errors.Wrapf(err, "failed to run %s", name)
	}
	return res, nil
}

func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", name)
	}
	return path, nil
}
