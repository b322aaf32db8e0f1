package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/adapter"
	"github.com/conveyorci/conveyor/pipeline/collab"
	"github.com/conveyorci/conveyor/pipeline/config"
	"github.com/conveyorci/conveyor/pipeline/engine"
	"github.com/conveyorci/conveyor/pipeline/notify"
)

type runOptions struct {
	file       string
	params     []string
	failFast   bool
	unstableOK bool
	workDir    string
}

func newRunCmd() *cobra.Command {
	opts := runOptions{unstableOK: true}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "execute a pipeline definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "pipeline.yaml", "pipeline definition file")
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "parameter override KEY=VALUE, repeatable")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "mark a parallel group failed on its first fatal member")
	cmd.Flags().BoolVar(&opts.unstableOK, "unstable-ok", true, "exit 0 when the run finishes UNSTABLE")
	cmd.Flags().StringVar(&opts.workDir, "workdir", "", "base working directory, overrides the definition")
	return cmd
}

func newLintCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "validate a pipeline definition without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.Load(file)
			if err != nil {
				return err
			}
			if err := config.Validate(def); err != nil {
				return err
			}
			cmd.Printf("%s: %d stages, ok\n", def.ID, len(def.Stages))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "pipeline.yaml", "pipeline definition file")
	return cmd
}

func runPipeline(cmd *cobra.Command, opts runOptions) error {
	def, err := config.Load(opts.file)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("fail-fast") {
		def.Config.FailFast = opts.failFast
	}
	if opts.workDir != "" {
		def.Config.WorkDir = opts.workDir
	}
	overrides, err := parseOverrides(opts.params)
	if err != nil {
		return err
	}

	shell := adapter.NewShell(def.Config.WorkDir)
	exec := engine.New(shell, buildNotifier(shell, def.Config.Notify), buildCollaborators(shell, def))
	run, err := exec.Run(cmd.Context(), def, overrides)
	if err != nil {
		return err
	}
	cmd.Printf("run %s finished: %s\n", run.ID, run.Overall)
	switch run.Overall {
	case pipeline.StatusSuccess:
		return nil
	case pipeline.StatusUnstable:
		if opts.unstableOK {
			return nil
		}
		return errors.Errorf("run %s finished UNSTABLE", run.ID)
	default:
		if msg := run.FailureMessage(); msg != "" {
			return errors.Errorf("run %s failed: %s", run.ID, msg)
		}
		return errors.Errorf("run %s failed", run.ID)
	}
}

func parseOverrides(pairs []string) (map[string]string, error) {
	overrides := map[string]string{}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, errors.Wrapf(pipeline.ErrConfiguration, "parameter %q is not KEY=VALUE", pair)
		}
		overrides[key] = value
	}
	return overrides, nil
}

// buildCollaborators wires the tool-backed collaborator set. Endpoints and
// credentials come from the process environment so definitions stay free of
// secrets.
func buildCollaborators(shell *adapter.Shell, def config.Definition) *collab.Set {
	set := &collab.Set{
		SCM:      &collab.GitSourceControl{Adapter: shell, RepoURL: os.Getenv("CONVEYOR_REPO_URL"), BaseDir: def.Config.WorkDir},
		Build:    &collab.MavenBuildTool{Adapter: shell},
		Analyzer: &collab.SonarAnalyzer{Adapter: shell, HostURL: os.Getenv("CONVEYOR_SONAR_URL")},
		Scanner:  &collab.TrivyScanner{Adapter: shell},
		Registry: &collab.DockerRegistry{Adapter: shell},
		Runtime:  &collab.DockerRuntime{Adapter: shell},
		Health:   &collab.RestyHealthCheck{},
	}
	if base := os.Getenv("CONVEYOR_ARTIFACT_URL"); base != "" {
		set.Artifacts = &collab.RestyArtifactStore{BaseURL: base, Token: os.Getenv("CONVEYOR_ARTIFACT_TOKEN")}
	}
	if def.Config.Trigger != nil && def.Config.Trigger.URL != "" {
		set.Trigger = &collab.RestyTrigger{URL: def.Config.Trigger.URL, Token: os.Getenv("CONVEYOR_TRIGGER_TOKEN")}
	}
	return set
}

func buildNotifier(shell *adapter.Shell, cfg config.Notify) pipeline.Notifier {
	switch strings.ToLower(cfg.Channel) {
	case "webhook":
		return &notify.Webhook{URL: cfg.URL, Token: os.Getenv("CONVEYOR_NOTIFY_TOKEN")}
	case "mail":
		return &notify.Mail{
			Sender:  &collab.MailNotification{Adapter: shell},
			To:      cfg.To,
			Subject: cfg.Subject,
		}
	default:
		return notify.Nop{}
	}
}
