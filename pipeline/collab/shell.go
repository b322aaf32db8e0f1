package collab

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/util"
)

// Tool-backed collaborators. Each one shells out through the adapter and
// interprets nothing beyond exit code and stdout; the tools own their files,
// caches and side effects.

// GitSourceControl clones a branch into a per-run working directory.
type GitSourceControl struct {
	Adapter pipeline.Adapter
	RepoURL string
	BaseDir string
}

func (g *GitSourceControl) Checkout(ctx context.Context, branch, credentialsRef string) (string, error) {
	workDir := filepath.Join(g.BaseDir, "src")
	env := map[string]string{}
	if credentialsRef != "" {
		env["GIT_CREDENTIALS_REF"] = credentialsRef
	}
	result, err := g.Adapter.Invoke(ctx, pipeline.Command{
		Script:  fmt.Sprintf("git clone --depth 1 --branch %s %s %s", branch, g.RepoURL, workDir),
		Env:     env,
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", errors.Wrapf(pipeline.ErrToolFailure, "checkout %s: %s", branch, tail(result.Stderr))
	}
	return workDir, nil
}

// MavenBuildTool packages the project with the repository's build tool.
type MavenBuildTool struct {
	Adapter pipeline.Adapter
}

func (m *MavenBuildTool) Build(ctx context.Context, projectPath string, skipTests bool) ([]string, error) {
	script := "mvn -B clean package"
	if skipTests {
		script += " -DskipTests"
	}
	result, err := m.Adapter.Invoke(ctx, pipeline.Command{
		Script:  script,
		WorkDir: projectPath,
		Timeout: 30 * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, errors.Wrapf(pipeline.ErrToolFailure, "build: %s", tail(result.Stdout+result.Stderr))
	}
	return []string{filepath.Join(projectPath, "target")}, nil
}

// SonarAnalyzer submits compiled binaries for static analysis.
type SonarAnalyzer struct {
	Adapter pipeline.Adapter
	HostURL string
}

func (s *SonarAnalyzer) Analyze(ctx context.Context, binariesPath, projectKey, orgKey string) (string, error) {
	result, err := s.Adapter.Invoke(ctx, pipeline.Command{
		Script: fmt.Sprintf(
			"sonar-scanner -Dsonar.host.url=%s -Dsonar.projectKey=%s -Dsonar.organization=%s -Dsonar.java.binaries=%s",
			s.HostURL, projectKey, orgKey, binariesPath,
		),
		Timeout: 15 * time.Minute,
	})
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", errors.Errorf("analysis failed: %s", tail(result.Stdout+result.Stderr))
	}
	return projectKey, nil
}

// TrivyScanner scans an image, reporting only the configured severities.
// The scanner's exit code is the gate input, so it is returned as data, not
// as an error.
type TrivyScanner struct {
	Adapter pipeline.Adapter
}

func (t *TrivyScanner) ScanImage(ctx context.Context, imageRef, severityFilter, cacheDir string) (ScanResult, error) {
	reportPath := filepath.Join(cacheDir, "scan-report.json")
	result, err := t.Adapter.Invoke(ctx, pipeline.Command{
		Script: fmt.Sprintf(
			"trivy image --severity %s --cache-dir %s --format json --output %s --exit-code 1 %s",
			severityFilter, cacheDir, reportPath, imageRef,
		),
		Timeout: 15 * time.Minute,
	})
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{ExitCode: result.ExitCode, ReportPath: reportPath}, nil
}

// DockerRegistry pushes an image ref.
type DockerRegistry struct {
	Adapter pipeline.Adapter
}

func (d *DockerRegistry) Push(ctx context.Context, imageRef string) error {
	result, err := d.Adapter.Invoke(ctx, pipeline.Command{
		Script:  fmt.Sprintf("docker push %s", imageRef),
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		// push failures are usually network blips, let the retry wrapper work
		return errors.Wrapf(pipeline.ErrTransient, "push %s: %s", imageRef, tail(result.Stderr))
	}
	return nil
}

// DockerRuntime runs and tears down smoke-test containers.
type DockerRuntime struct {
	Adapter pipeline.Adapter
}

func (d *DockerRuntime) Run(ctx context.Context, imageRef, portMap string) (string, error) {
	result, err := d.Adapter.Invoke(ctx, pipeline.Command{
		Script:  fmt.Sprintf("docker run -d -p %s %s", portMap, imageRef),
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", errors.Wrapf(pipeline.ErrToolFailure, "run %s: %s", imageRef, tail(result.Stderr))
	}
	return strings.TrimSpace(result.Stdout), nil
}

func (d *DockerRuntime) Stop(ctx context.Context, containerID string) error {
	return d.bestEffort(ctx, fmt.Sprintf("docker stop %s", containerID))
}

func (d *DockerRuntime) Remove(ctx context.Context, containerID string) error {
	return d.bestEffort(ctx, fmt.Sprintf("docker rm %s", containerID))
}

func (d *DockerRuntime) RemoveImage(ctx context.Context, imageRef string) error {
	return d.bestEffort(ctx, fmt.Sprintf("docker rmi %s", imageRef))
}

func (d *DockerRuntime) bestEffort(ctx context.Context, script string) error {
	result, err := d.Adapter.Invoke(ctx, pipeline.Command{Script: script, Timeout: time.Minute})
	if err != nil {
		util.SystemErrLog(ctx, "cleanup %q: %s", script, err)
		return errors.Wrapf(pipeline.ErrCleanup, "%s: %s", script, err)
	}
	if result.ExitCode != 0 {
		util.SystemErrLog(ctx, "cleanup %q exit %d: %s", script, result.ExitCode, tail(result.Stderr))
		return errors.Wrapf(pipeline.ErrCleanup, "%s exit %d", script, result.ExitCode)
	}
	return nil
}

// MailNotification delivers the html report through the host's mail command.
type MailNotification struct {
	Adapter pipeline.Adapter
}

func (m *MailNotification) Send(ctx context.Context, to []string, subject, htmlBody string, attachments []string) error {
	parts := []string{"mail", "-s", fmt.Sprintf("%q", subject), "-a", "'Content-Type: text/html'"}
	for _, path := range attachments {
		parts = append(parts, "-A", path)
	}
	parts = append(parts, strings.Join(to, " "))
	script := fmt.Sprintf("%s <<'CONVEYOR_REPORT'\n%s\nCONVEYOR_REPORT", strings.Join(parts, " "), htmlBody)
	result, err := m.Adapter.Invoke(ctx, pipeline.Command{Script: script, Timeout: time.Minute})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return errors.Wrapf(pipeline.ErrToolFailure, "mail %q: %s", subject, tail(result.Stderr))
	}
	return nil
}

// tail keeps error messages readable when a tool dumps pages of output.
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) <= 5 {
		return s
	}
	return strings.Join(lines[len(lines)-5:], "\n")
}
