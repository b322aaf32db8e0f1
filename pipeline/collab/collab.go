// Package collab defines the contracts for every external collaborator the
// engine invokes (source control, build tool, analyzers, scanners, object
// storage, image registry, container runtime, health check and downstream
// trigger) plus the registry that exposes them as call targets to pipeline
// definitions. The engine never implements what a collaborator does
// internally; it only invokes and interprets results.
package collab

import (
	"context"
)

// SourceControl checks a branch out into a working directory.
type SourceControl interface {
	Checkout(ctx context.Context, branch, credentialsRef string) (workDir string, err error)
}

// BuildTool compiles and packages the project.
type BuildTool interface {
	Build(ctx context.Context, projectPath string, skipTests bool) (artifactPaths []string, err error)
}

// StaticAnalyzer submits binaries for analysis and returns a report ref.
type StaticAnalyzer interface {
	Analyze(ctx context.Context, binariesPath, projectKey, orgKey string) (reportRef string, err error)
}

// ScanResult carries the scanner exit code the publish gate interprets.
type ScanResult struct {
	ExitCode   int
	ReportPath string
}

// VulnScanner scans a container image for vulnerabilities.
type VulnScanner interface {
	ScanImage(ctx context.Context, imageRef, severityFilter, cacheDir string) (ScanResult, error)
}

// ArtifactStore uploads build outputs. Upload returns ("", nil) when the
// local file is absent or zero-length: skipping is not an error.
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, remoteKey string) (remoteURL string, err error)
}

// Registry pushes images. The engine wraps Push in the retry wrapper.
type Registry interface {
	Push(ctx context.Context, imageRef string) error
}

// ContainerRuntime runs smoke-test containers. The stop/remove calls are
// cleanup: best-effort, logged, never fatal.
type ContainerRuntime interface {
	Run(ctx context.Context, imageRef, portMap string) (containerID string, err error)
	Stop(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	RemoveImage(ctx context.Context, imageRef string) error
}

// HealthCheck probes an HTTP endpoint, retrying internally a fixed number
// of times with a fixed sleep.
type HealthCheck interface {
	Get(ctx context.Context, url string) (statusCode int, err error)
}

// Notification sends the final report over a mail-shaped channel.
type Notification interface {
	Send(ctx context.Context, to []string, subject, htmlBody string, attachments []string) error
}

// DownstreamTrigger fires a follow-up job, only ever on overall SUCCESS.
type DownstreamTrigger interface {
	TriggerJob(ctx context.Context, jobName string, params map[string]string) (accepted bool, err error)
}
