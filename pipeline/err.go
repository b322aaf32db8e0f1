package pipeline

import "github.com/pkg/errors"

var (
	//ErrConfiguration bad or missing parameter, undeclared state key
	ErrConfiguration = errors.New("configuration error")

	//ErrLaunchFailure external tool could not start or timed out
	ErrLaunchFailure = errors.New("launch failure")

	//ErrToolFailure tool ran but returned a nonzero or error payload
	ErrToolFailure = errors.New("tool failure")

	//ErrTransient transient network error, eligible for retry
	ErrTransient = errors.New("transient network error")

	//ErrCleanup cleanup failure, logged and never escalated
	ErrCleanup = errors.New("cleanup error")

	//ErrTimeoutOrCancel run timed out or was cancelled
	ErrTimeoutOrCancel = errors.New("timeout or cancel")

	//ErrOutputNotReady a stage output was read before its producer ran
	ErrOutputNotReady = errors.New("output not produced yet")
)
