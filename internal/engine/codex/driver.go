// Package codex drives the OpenAI Codex CLI through `codex exec --json`.
package codex

import (
	"cmp"
	"context"
	"fmt"
	"os/exec"

	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/engine/cli"
	"github.com/devpilot-ai/devpilot/internal/render"
)

const defaultCommand = "codex"

type Driver struct {
	cfg      config.EngineConfig
	resolver config.VariableResolver
	render   *render.Renderer
	lookPath func(string) (string, error)
}

var _ engine.Driver[Event] = (*Driver)(nil)

func New(cfg config.EngineConfig, resolver config.VariableResolver, r *render.Renderer) *Driver {
	return &Driver{
		cfg:      cfg,
		resolver: resolver,
		render:   r,
		lookPath: exec.LookPath,
	}
}

func (d *Driver) command() string {
	return cmp.Or(d.cfg.Command, defaultCommand)
}

func (d *Driver) Init() error {
	if _, err := d.lookPath(d.command()); err != nil {
		return fmt.Errorf("%s not found: %w", d.command(), err)
	}
	if _, err := config.ResolveMap(d.resolver, d.cfg.Env); err != nil {
		return fmt.Errorf("resolve env: %w", err)
	}
	return nil
}

func (d *Driver) CanResume() bool {
	return true
}

func (d *Driver) Open(ctx context.Context, _ *engine.Session, t engine.Turn) (engine.Stream[Event], error) {
	env, err := config.ResolveMap(d.resolver, d.cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("resolve env: %w", err)
	}
	stream, err := cli.Start(ctx, cli.Spec{
		Command: d.command(),
		Args:    d.args(t),
		Dir:     t.ProjectPath,
		Env:     env,
		Stdin:   t.Prompt,
	}, decodeEvent)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// args builds `codex exec` arguments. The prompt is read from stdin ("-").
func (d *Driver) args(t engine.Turn) []string {
	args := []string{"exec", "--json", "--skip-git-repo-check"}
	if t.ProjectPath != "" {
		args = append(args, "--cd", t.ProjectPath)
	}
	if d.cfg.Model != "" {
		args = append(args, "--model", d.cfg.Model)
	}
	if sandbox := sandboxMode(t.Mode, d.cfg.PermissionMode); sandbox != "" {
		args = append(args, "--sandbox", sandbox)
	}
	args = append(args, d.cfg.Args...)
	if t.ResumeToken != "" {
		args = append(args, "resume", t.ResumeToken)
	}
	return append(args, "-")
}

func sandboxMode(mode, fallback string) string {
	switch mode {
	case "plan", "read-only":
		return "read-only"
	case "edit", "auto", "workspace-write":
		return "workspace-write"
	case "bypass", "danger-full-access":
		return "danger-full-access"
	}
	return fallback
}

func (d *Driver) NewNormalizer(s *engine.Session) engine.Normalizer[Event] {
	return &normalizer{
		engine:    d.cfg.Name,
		model:     d.cfg.Model,
		sessionID: s.ID,
		render:    d.render,
	}
}
