package claude

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/cost"
	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/history"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/render"
)

func TestDriver_Args(t *testing.T) {
	t.Parallel()

	d := New(config.EngineConfig{
		Model:          "claude-opus-4-1-20250805",
		PermissionMode: "acceptEdits",
		Args:           []string{"--max-turns", "5"},
	}, config.NewEnvironmentVariableResolver(nil), render.New(render.DefaultOptions()))

	require.Equal(t, []string{
		"-p", "--output-format", "stream-json", "--verbose",
		"--model", "claude-opus-4-1-20250805",
		"--permission-mode", "acceptEdits",
		"--max-turns", "5",
	}, d.args(engine.Turn{}))

	require.Equal(t, []string{
		"-p", "--output-format", "stream-json", "--verbose",
		"--model", "claude-opus-4-1-20250805",
		"--permission-mode", "plan",
		"--resume", "tok-1",
		"--max-turns", "5",
	}, d.args(engine.Turn{Mode: "plan", ResumeToken: "tok-1"}))
}

func TestPermissionMode(t *testing.T) {
	t.Parallel()

	require.Equal(t, "plan", permissionMode("plan", "default"))
	require.Equal(t, "acceptEdits", permissionMode("edit", ""))
	require.Equal(t, "bypassPermissions", permissionMode("bypass", ""))
	require.Equal(t, "default", permissionMode("", "default"))
	require.Empty(t, permissionMode("whatever", ""))
}

func TestDriver_Init(t *testing.T) {
	t.Parallel()

	r := render.New(render.DefaultOptions())

	missing := New(config.EngineConfig{}, config.NewEnvironmentVariableResolver(nil), r)
	missing.lookPath = func(string) (string, error) { return "", errors.New("not in PATH") }
	require.ErrorContains(t, missing.Init(), "claude not found")

	unresolved := New(config.EngineConfig{Env: map[string]string{"ANTHROPIC_AUTH_TOKEN": "$ZAI_API_KEY"}}, config.NewEnvironmentVariableResolver(nil), r)
	unresolved.lookPath = func(string) (string, error) { return "/bin/claude", nil }
	require.ErrorContains(t, unresolved.Init(), "ZAI_API_KEY")

	ok := New(config.EngineConfig{Env: map[string]string{"ANTHROPIC_AUTH_TOKEN": "$ZAI_API_KEY"}}, config.NewEnvironmentVariableResolver([]string{"ZAI_API_KEY=k"}), r)
	ok.lookPath = func(string) (string, error) { return "/bin/claude", nil }
	require.NoError(t, ok.Init())
	require.True(t, ok.CanResume())
}

const fakeCLI = `#!/bin/sh
prompt=$(cat)
printf '{"type":"system","subtype":"init","session_id":"tok-9","model":"glm-4.6"}\n'
printf '{"type":"assistant","message":{"model":"glm-4.6","content":[{"type":"text","text":"%s via %s"}]}}\n' "$prompt" "$ANTHROPIC_BASE_URL"
printf '{"type":"assistant","message":{"model":"glm-4.6","content":[{"type":"text","text":"args %s"}]}}\n' "$*"
printf '{"type":"result","subtype":"success","result":"ok","session_id":"tok-9","usage":{"input_tokens":1,"output_tokens":2}}\n'
`

// TestAlternateEngine_EndToEnd runs the driver against a stand-in CLI and
// checks that per-engine env reaches the child without touching the process
// environment.
func TestAlternateEngine_EndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(script, []byte(fakeCLI), 0o755))

	before, hadBefore := os.LookupEnv("ANTHROPIC_BASE_URL")

	cfg := config.EngineConfig{
		Name:        "alternate",
		Type:        config.EngineTypeClaudeCLI,
		DisplayName: "GLM",
		Command:     script,
		Model:       "glm-4.6",
		Provider:    "zai",
		Env:         map[string]string{"ANTHROPIC_BASE_URL": "$DEVPILOT_TEST_BASE"},
	}
	resolver := config.NewEnvironmentVariableResolver([]string{"DEVPILOT_TEST_BASE=https://glm.example"})
	renderer := render.New(render.DefaultOptions())
	deps := engine.Deps{
		Registry:       engine.NewRegistry(),
		Bus:            engine.NewBus(100),
		History:        history.NewStore(t.TempDir(), 10),
		Costs:          cost.NewTable(),
		Render:         renderer,
		MaxSessionLogs: 100,
	}
	a := engine.NewAdapter(cfg, engine.Driver[Event](New(cfg, resolver, renderer)), deps)
	defer a.Shutdown()

	res, err := a.Execute(t.Context(), proto.ExecuteRequest{ProjectName: "demo", ProjectPath: dir, Prompt: "hello"})
	require.NoError(t, err)
	require.Regexp(t, `^alternate-demo-`, res.SessionID)

	var outputs []string
	var complete *proto.CompleteEvent
	timeout := time.After(10 * time.Second)
	for ch := a.Subscribe(t.Context(), res.SessionID); complete == nil; {
		select {
		case ev := <-ch:
			if ev.Payload.Output != nil {
				outputs = append(outputs, ev.Payload.Output.Content)
			}
			complete = ev.Payload.Complete
		case <-timeout:
			t.Fatal("timed out")
		}
	}

	require.True(t, complete.Success, complete.Error)
	require.Equal(t, "ok", complete.Result)
	require.Equal(t, []string{
		"hello via https://glm.example",
		"args -p --output-format stream-json --verbose --model glm-4.6",
	}, outputs)

	info, ok := deps.Registry.Get(res.SessionID)
	require.True(t, ok)
	require.Equal(t, "tok-9", info.Token())
	require.Equal(t, "glm-4.6", info.Model())

	after, hadAfter := os.LookupEnv("ANTHROPIC_BASE_URL")
	require.Equal(t, hadBefore, hadAfter)
	require.Equal(t, before, after)
}
