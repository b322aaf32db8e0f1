// Package adapter invokes external collaborators as local shell commands,
// capturing exit code, stdout, stderr and duration. The adapter interprets
// nothing: a nonzero exit is a normal result for the caller to inspect.
package adapter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/util"
)

// Shell runs commands through `sh -c` in a dedicated process group so a
// cancelled run can kill the whole tool subtree.
type Shell struct {
	//BaseDir is the default working directory for commands that declare none.
	BaseDir string
}

// NewShell builds a Shell adapter rooted at baseDir ("" means the process
// working directory).
func NewShell(baseDir string) *Shell {
	return &Shell{BaseDir: baseDir}
}

// Invoke runs one command. The returned error is non-nil only for a launch
// failure or a timeout/cancel; tool failures come back as Result.ExitCode.
func (s *Shell) Invoke(ctx context.Context, command pipeline.Command) (pipeline.Result, error) {
	if command.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	workDir := command.WorkDir
	if workDir == "" {
		workDir = s.BaseDir
	}
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0o777); err != nil {
			return pipeline.Result{}, errors.Wrapf(pipeline.ErrLaunchFailure, "workdir %s: %s", workDir, err)
		}
	}

	cmd := exec.Command("sh", "-c", command.Script)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	for k, v := range command.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	stdout := util.NewBufferWriterSync()
	stderr := util.NewBufferWriterSync()
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return pipeline.Result{}, errors.Wrapf(pipeline.ErrLaunchFailure, "start %q: %s", command.Script, err)
	}

	killed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Process != nil && cmd.Process.Pid > 0 {
				syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case <-killed:
		}
	}()

	waitErr := cmd.Wait()
	close(killed)
	result := pipeline.Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if ctx.Err() != nil {
		return result, errors.Wrapf(pipeline.ErrTimeoutOrCancel, "command %q", command.Script)
	}
	if waitErr != nil {
		if _, ok := waitErr.(*exec.ExitError); !ok {
			return result, errors.Wrapf(pipeline.ErrLaunchFailure, "wait %q: %s", command.Script, waitErr)
		}
	}
	return result, nil
}
