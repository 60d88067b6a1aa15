package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log/v2"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-ai/devpilot/internal/app"
	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/proto"
)

func TestParseValue(t *testing.T) {
	t.Parallel()

	require.Equal(t, true, parseValue("true"))
	require.Equal(t, float64(3), parseValue("3"))
	require.Equal(t, "codex", parseValue("codex"))
	require.Equal(t, []any{"a", "b"}, parseValue(`["a","b"]`))
	require.Equal(t, "claude-opus-4-1", parseValue("claude-opus-4-1"))
}

func TestConfigSet(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".devpilot.json")
	require.NoError(t, config.SetValue(path, "engines.claude.model", parseValue("claude-opus-4-1")))
	require.NoError(t, config.SetValue(path, "options.history_limit", parseValue("20")))

	cfg, err := config.LoadReader(mustOpen(t, path))
	require.NoError(t, err)
	require.Equal(t, "claude-opus-4-1", cfg.Engines["claude"].Model)
	require.Equal(t, 20, cfg.Options.HistoryLimit)
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestPrintLogLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := charmlog.New(&buf)
	logger.SetReportTimestamp(false)

	printLogLine(&buf, logger, `{"time":"2025-10-19T12:00:00Z","level":"INFO","source":{"file":"x.go"},"msg":"Starting turn","engine":"claude"}`)
	printLogLine(&buf, logger, "not json")

	out := buf.String()
	require.Contains(t, out, "Starting turn")
	require.Contains(t, out, "claude")
	require.NotContains(t, out, "x.go")
	require.True(t, strings.HasSuffix(out, "not json\n"))
}

func TestShowLastLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "devpilot.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o600))

	var buf bytes.Buffer
	require.NoError(t, showLastLines(&buf, charmlog.New(&buf), path, 2))
	require.Equal(t, "two\nthree\n", buf.String())
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))
	require.Equal(t, "first", firstLine("  first\nsecond"))
}

type replyStream struct {
	lines []string
	cur   string
}

func (s *replyStream) Next() bool {
	if len(s.lines) == 0 {
		return false
	}
	s.cur, s.lines = s.lines[0], s.lines[1:]
	return true
}

func (s *replyStream) Current() string { return s.cur }
func (s *replyStream) Err() error      { return nil }
func (s *replyStream) Close() error    { return nil }

type replyNormalizer struct{}

func (replyNormalizer) Normalize(line string) []engine.Update {
	if text, ok := strings.CutPrefix(line, "warn:"); ok {
		return []engine.Update{engine.Stderr(text)}
	}
	u := engine.Stdout(line)
	u.Message = true
	return []engine.Update{u}
}

func (replyNormalizer) Flush(error) []engine.Update { return nil }

type replyDriver struct{}

func (replyDriver) Init() error     { return nil }
func (replyDriver) CanResume() bool { return false }

func (replyDriver) Open(context.Context, *engine.Session, engine.Turn) (engine.Stream[string], error) {
	return &replyStream{lines: []string{"hello", "warn:careful", "bye"}}, nil
}

func (replyDriver) NewNormalizer(*engine.Session) engine.Normalizer[string] {
	return replyNormalizer{}
}

func TestStream(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Options: &config.Options{
			DataDirectory:           t.TempDir(),
			HistoryLimit:            10,
			MaxSessionLogs:          100,
			ConversationMaxMessages: 10,
		},
		DefaultEngine: "claude",
		Engines: map[string]config.EngineConfig{
			"claude": {Name: "claude", Type: config.EngineTypeClaudeCLI},
		},
	}
	a, err := app.NewWithBuilder(t.Context(), nil, cfg, func(ec config.EngineConfig, deps engine.Deps) (engine.Engine, error) {
		return engine.NewAdapter[string](ec, replyDriver{}, deps), nil
	})
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)

	res, err := a.Execute(t.Context(), app.ExecuteParams{ProjectName: "demo", Prompt: "hi"})
	require.NoError(t, err)

	events, cancel, err := localEvents(a, "claude", res.SessionID)
	require.NoError(t, err)
	t.Cleanup(cancel)

	var stdout, stderr bytes.Buffer
	complete, err := stream(t.Context(), events, func() error {
		_, err := a.Terminate("claude", res.SessionID)
		return err
	}, &stdout, &stderr)
	require.NoError(t, err)
	require.True(t, complete.Success)
	require.Equal(t, "hello\nbye\n", stdout.String())
	require.Equal(t, "careful\n", stderr.String())

	line := summary("claude", res.SessionID, complete)
	require.Contains(t, line, "claude")
	require.Contains(t, line, res.SessionID)
	require.Contains(t, line, "0 in / 0 out")
	require.NotContains(t, line, "$")
}

func TestStream_TerminatesOnCancel(t *testing.T) {
	t.Parallel()

	events := make(chan proto.SessionEvent, 1)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var terminated int
	var stdout bytes.Buffer
	complete, err := stream(ctx, events, func() error {
		terminated++
		events <- proto.SessionEvent{Complete: &proto.CompleteEvent{Error: "interrupted"}}
		return nil
	}, &stdout, &stdout)
	require.NoError(t, err)
	require.Equal(t, 1, terminated)
	require.False(t, complete.Success)
	require.Equal(t, "interrupted", complete.Error)
}
