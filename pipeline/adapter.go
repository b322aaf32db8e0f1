package pipeline

import (
	"context"
	"time"
)

// Command is a single external tool invocation. The adapter treats the
// script as opaque: any files or cache directories the tool touches are the
// tool's own business.
type Command struct {
	Script  string
	Env     map[string]string
	WorkDir string
	Timeout time.Duration
}

// Result of one invocation. A nonzero exit code is a normal result the
// caller inspects, never an error.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Adapter invokes an external collaborator. Invoke returns an error only for
// ErrLaunchFailure (the process could not start) or ErrTimeoutOrCancel.
type Adapter interface {
	Invoke(ctx context.Context, cmd Command) (Result, error)
}
