// Package claude drives the Claude Code CLI in streaming JSON mode.
package claude

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

const defaultCommand = "claude"

// Driver runs one `claude -p` process per turn. The engine config's env is
// applied to the child process only, which is how an alternate model is
// served through the same CLI.
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

func (d *Driver) args(t engine.Turn) []string {
	args := []string{"-p", "--output-format", "stream-json", "--verbose"}
	if d.cfg.Model != "" {
		args = append(args, "--model", d.cfg.Model)
	}
	if mode := permissionMode(t.Mode, d.cfg.PermissionMode); mode != "" {
		args = append(args, "--permission-mode", mode)
	}
	if t.ResumeToken != "" {
		args = append(args, "--resume", t.ResumeToken)
	}
	return append(args, d.cfg.Args...)
}

// permissionMode maps a request mode to a CLI permission mode, falling back
// to the configured one.
func permissionMode(mode, fallback string) string {
	switch mode {
	case "plan":
		return "plan"
	case "edit", "auto", "acceptEdits":
		return "acceptEdits"
	case "bypass", "bypassPermissions":
		return "bypassPermissions"
	case "default":
		return "default"
	}
	return fallback
}

func (d *Driver) NewNormalizer(s *engine.Session) engine.Normalizer[Event] {
	return &normalizer{
		engine:    d.cfg.Name,
		sessionID: s.ID,
		render:    d.render,
		toolNames: make(map[string]string),
	}
}
