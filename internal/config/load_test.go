package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadReader(strings.NewReader(`{"default_engine":"codex","options":{"history_limit":5}}`))
	require.NoError(t, err)
	require.Equal(t, "codex", cfg.DefaultEngine)
	require.Equal(t, 5, cfg.Options.HistoryLimit)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	wd := t.TempDir()
	cfg, err := Load(wd, "", false, []string{"HOME=" + home})
	require.NoError(t, err)

	require.Equal(t, "claude", cfg.DefaultEngine)
	require.Equal(t, filepath.Join(home, ".local", "share", "devpilot"), cfg.Options.DataDirectory)
	require.Equal(t, DefaultHistoryLimit, cfg.Options.HistoryLimit)
	require.Equal(t, DefaultConversationMaxMessages, cfg.Options.ConversationMaxMessages)
	require.Equal(t, DefaultMaxOutputBytes, cfg.Options.Render.MaxOutputBytes)

	claude, ok := cfg.Engine("claude")
	require.True(t, ok)
	require.Equal(t, "claude", claude.Name)
	require.Equal(t, EngineTypeClaudeCLI, claude.Type)

	glm, ok := cfg.Engine("glm")
	require.True(t, ok)
	require.Equal(t, "$ZAI_API_KEY", glm.Env["ANTHROPIC_AUTH_TOKEN"])
	require.Equal(t, wd, cfg.WorkingDir())
}

func TestLoad_MergesGlobalAndProjectFiles(t *testing.T) {
	t.Parallel()

	xdg := t.TempDir()
	wd := t.TempDir()
	writeFile(t, filepath.Join(xdg, "devpilot", "devpilot.json"), `{
		"default_engine": "codex",
		"options": {"history_limit": 10},
		"engines": {"codex": {"model": "gpt-5-codex"}}
	}`)
	writeFile(t, filepath.Join(wd, ".devpilot.json"), `{
		"options": {"debug": true},
		"engines": {"glm": {"env": {"ANTHROPIC_MODEL": "glm-4.5"}}}
	}`)

	cfg, err := Load(wd, filepath.Join(wd, "data"), false, []string{"XDG_CONFIG_HOME=" + xdg})
	require.NoError(t, err)

	require.Equal(t, "codex", cfg.DefaultEngine)
	require.Equal(t, 10, cfg.Options.HistoryLimit)
	require.True(t, cfg.Options.Debug)
	require.Equal(t, filepath.Join(wd, "data"), cfg.Options.DataDirectory)

	codex, _ := cfg.Engine("codex")
	require.Equal(t, "gpt-5-codex", codex.Model)
	require.Equal(t, EngineTypeCodexCLI, codex.Type)
	require.Equal(t, "codex", codex.Command)

	glm, _ := cfg.Engine("glm")
	require.Equal(t, "glm-4.5", glm.Env["ANTHROPIC_MODEL"])
	require.Equal(t, "https://api.z.ai/api/anthropic", glm.Env["ANTHROPIC_BASE_URL"])
}

func TestLoad_InvalidDefaultEngine(t *testing.T) {
	t.Parallel()

	wd := t.TempDir()
	writeFile(t, filepath.Join(wd, "devpilot.json"), `{"default_engine": "nope"}`)

	_, err := Load(wd, "", false, []string{"HOME=" + t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "nope")
}

func TestLoad_DotEnv(t *testing.T) {
	t.Parallel()

	wd := t.TempDir()
	writeFile(t, filepath.Join(wd, ".env"), "OPENAI_API_KEY=from-dotenv\nGEMINI_API_KEY=dotenv-gemini\n")

	cfg, err := Load(wd, "", false, []string{"HOME=" + t.TempDir(), "GEMINI_API_KEY=from-env"})
	require.NoError(t, err)

	v, err := cfg.Resolver().ResolveValue("$OPENAI_API_KEY")
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", v)

	v, err = cfg.Resolver().ResolveValue("$GEMINI_API_KEY")
	require.NoError(t, err)
	require.Equal(t, "from-env", v)
}

func TestEnabledEngines(t *testing.T) {
	t.Parallel()

	wd := t.TempDir()
	writeFile(t, filepath.Join(wd, "devpilot.json"), `{"engines": {"gemini": {"disabled": true}}}`)

	cfg, err := Load(wd, "", false, []string{"HOME=" + t.TempDir()})
	require.NoError(t, err)

	var names []string
	for _, e := range cfg.EnabledEngines() {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"claude", "codex", "glm", "openai"}, names)
}

func TestSetValue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "devpilot.json")
	require.NoError(t, SetValue(path, "engines.claude.model", "opus"))
	require.NoError(t, SetValue(path, "options.history_limit", 7))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	cfg, err := LoadReader(f)
	require.NoError(t, err)
	require.Equal(t, "opus", cfg.Engines["claude"].Model)
	require.Equal(t, 7, cfg.Options.HistoryLimit)
}
