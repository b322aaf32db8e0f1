package collab

import (
	"context"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/conveyorci/conveyor/pipeline"
)

// CallFunc adapts one collaborator operation to the engine's call-step
// shape: rendered string args in, produced outputs out.
type CallFunc func(ctx context.Context, args map[string]string) (map[string]string, error)

// Set bundles the wired collaborators for one run. Nil fields simply leave
// their call targets unresolvable.
type Set struct {
	SCM       SourceControl
	Build     BuildTool
	Analyzer  StaticAnalyzer
	Scanner   VulnScanner
	Artifacts ArtifactStore
	Registry  Registry
	Runtime   ContainerRuntime
	Health    HealthCheck
	Trigger   DownstreamTrigger
}

// Resolve maps a call target like "registry.push" to its CallFunc.
func (s *Set) Resolve(target string) (CallFunc, error) {
	fns := map[string]CallFunc{
		"scm.checkout":        s.checkout,
		"build.build":         s.build,
		"analyzer.analyze":    s.analyze,
		"scanner.scanImage":   s.scanImage,
		"artifacts.upload":    s.upload,
		"registry.push":       s.push,
		"runtime.run":         s.runContainer,
		"runtime.stop":        s.stopContainer,
		"runtime.remove":      s.removeContainer,
		"runtime.removeImage": s.removeImage,
		"health.get":          s.healthGet,
	}
	fn, ok := fns[target]
	if !ok {
		return nil, errors.Wrapf(pipeline.ErrConfiguration, "unknown call target %q", target)
	}
	return fn, nil
}

// decodeArgs maps the rendered string args onto a typed arg struct. Weak
// decoding covers bool and numeric args arriving as template output.
func decodeArgs[T any](args map[string]string) (T, error) {
	var decoded T
	if err := mapstructure.WeakDecode(args, &decoded); err != nil {
		return decoded, errors.Wrapf(pipeline.ErrConfiguration, "call arguments: %s", err)
	}
	return decoded, nil
}

type checkoutArgs struct {
	Branch      string `mapstructure:"branch"`
	Credentials string `mapstructure:"credentials"`
}

func (s *Set) checkout(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.SCM == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no source-control collaborator wired")
	}
	a, err := decodeArgs[checkoutArgs](args)
	if err != nil {
		return nil, err
	}
	workDir, err := s.SCM.Checkout(ctx, a.Branch, a.Credentials)
	if err != nil {
		return nil, err
	}
	return map[string]string{"workdir": workDir}, nil
}

type buildArgs struct {
	Path      string `mapstructure:"path"`
	SkipTests bool   `mapstructure:"skipTests"`
}

func (s *Set) build(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Build == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no build-tool collaborator wired")
	}
	a, err := decodeArgs[buildArgs](args)
	if err != nil {
		return nil, err
	}
	artifacts, err := s.Build.Build(ctx, a.Path, a.SkipTests)
	if err != nil {
		return nil, err
	}
	outputs := map[string]string{}
	if len(artifacts) > 0 {
		outputs["artifact"] = artifacts[0]
	}
	return outputs, nil
}

type analyzeArgs struct {
	Path       string `mapstructure:"path"`
	ProjectKey string `mapstructure:"projectKey"`
	OrgKey     string `mapstructure:"orgKey"`
}

func (s *Set) analyze(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Analyzer == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no static-analysis collaborator wired")
	}
	a, err := decodeArgs[analyzeArgs](args)
	if err != nil {
		return nil, err
	}
	reportRef, err := s.Analyzer.Analyze(ctx, a.Path, a.ProjectKey, a.OrgKey)
	if err != nil {
		// keep the underlying message, the stage fails FATAL by policy
		return nil, errors.Wrapf(pipeline.ErrToolFailure, "static analysis: %s", err)
	}
	return map[string]string{"report": reportRef}, nil
}

type scanArgs struct {
	Image          string `mapstructure:"image"`
	SeverityFilter string `mapstructure:"severityFilter"`
	CacheDir       string `mapstructure:"cacheDir"`
}

func (s *Set) scanImage(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Scanner == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no vulnerability-scan collaborator wired")
	}
	a, err := decodeArgs[scanArgs](args)
	if err != nil {
		return nil, err
	}
	result, err := s.Scanner.ScanImage(ctx, a.Image, a.SeverityFilter, a.CacheDir)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"scan_status": cast.ToString(result.ExitCode),
		"report_path": result.ReportPath,
	}, nil
}

type uploadArgs struct {
	Path string `mapstructure:"path"`
	Key  string `mapstructure:"key"`
}

func (s *Set) upload(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Artifacts == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no artifact-store collaborator wired")
	}
	a, err := decodeArgs[uploadArgs](args)
	if err != nil {
		return nil, err
	}
	url, err := s.Artifacts.Upload(ctx, a.Path, a.Key)
	if err != nil {
		return nil, err
	}
	return map[string]string{"url": url}, nil
}

func (s *Set) push(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Registry == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no registry collaborator wired")
	}
	return nil, s.Registry.Push(ctx, args["image"])
}

type containerArgs struct {
	Image string `mapstructure:"image"`
	Ports string `mapstructure:"ports"`
	ID    string `mapstructure:"id"`
}

func (s *Set) runContainer(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Runtime == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no container-runtime collaborator wired")
	}
	a, err := decodeArgs[containerArgs](args)
	if err != nil {
		return nil, err
	}
	id, err := s.Runtime.Run(ctx, a.Image, a.Ports)
	if err != nil {
		return nil, err
	}
	return map[string]string{"container_id": id}, nil
}

func (s *Set) stopContainer(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Runtime == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no container-runtime collaborator wired")
	}
	if err := s.Runtime.Stop(ctx, args["id"]); err != nil {
		return nil, errors.Wrapf(pipeline.ErrCleanup, "stop container: %s", err)
	}
	return nil, nil
}

func (s *Set) removeContainer(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Runtime == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no container-runtime collaborator wired")
	}
	if err := s.Runtime.Remove(ctx, args["id"]); err != nil {
		return nil, errors.Wrapf(pipeline.ErrCleanup, "remove container: %s", err)
	}
	return nil, nil
}

func (s *Set) removeImage(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Runtime == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no container-runtime collaborator wired")
	}
	if err := s.Runtime.RemoveImage(ctx, args["image"]); err != nil {
		return nil, errors.Wrapf(pipeline.ErrCleanup, "remove image: %s", err)
	}
	return nil, nil
}

func (s *Set) healthGet(ctx context.Context, args map[string]string) (map[string]string, error) {
	if s.Health == nil {
		return nil, errors.Wrap(pipeline.ErrConfiguration, "no health-check collaborator wired")
	}
	code, err := s.Health.Get(ctx, args["url"])
	if err != nil {
		return nil, err
	}
	return map[string]string{"status_code": cast.ToString(code)}, nil
}
