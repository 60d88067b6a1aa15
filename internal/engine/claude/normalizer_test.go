package claude

import (
	"bufio"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/render"
)

func newTestNormalizer() *normalizer {
	return &normalizer{
		engine:    "claude",
		sessionID: "s1",
		render:    render.New(render.DefaultOptions()),
		toolNames: make(map[string]string),
	}
}

func readFixture(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		ev, ok := decodeEvent(sc.Bytes())
		require.True(t, ok, sc.Text())
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestNormalizer_Fixture(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	var (
		content  []engine.Update
		terminal *engine.Update
		token    string
		model    string
		tools    int
	)
	for _, ev := range readFixture(t, "testdata/stream.jsonl") {
		for _, u := range n.Normalize(ev) {
			if u.Token != "" {
				token = u.Token
			}
			if u.Model != "" {
				model = u.Model
			}
			if u.ToolCall {
				tools++
			}
			switch u.Kind {
			case engine.KindContent:
				content = append(content, u)
			case engine.KindTerminal:
				terminal = &u
			}
		}
	}

	require.Equal(t, "3f1c2a9e-claude", token)
	require.Equal(t, "claude-sonnet-4-5", model)
	require.Equal(t, 3, tools)

	var texts []string
	for _, u := range content {
		texts = append(texts, u.Content)
	}
	require.Equal(t, []string{
		"I'll list the files.",
		"**Bash** List files\n```bash\nls\n```",
		"```\ngo.mod\nmain.go\n```",
		"**Read** `/work/demo/main.go`",
		"**Bash**\n```bash\ngo test ./...\n```",
		"```\ngo: not found\n```",
		"The project has two files.",
	}, texts)
	require.Equal(t, proto.Stderr, content[5].Channel)
	require.True(t, content[0].Message)

	require.NotNil(t, terminal)
	require.True(t, terminal.Success)
	require.Equal(t, "The project has two files.", terminal.Result)
	require.Equal(t, proto.Usage{
		InputTokens:      12,
		OutputTokens:     93,
		CacheWriteTokens: 1500,
		CacheReadTokens:  9000,
	}, terminal.Usage)
}

func TestNormalizer_ErrorResult(t *testing.T) {
	t.Parallel()

	ev, ok := decodeEvent([]byte(`{"type":"result","subtype":"error_max_turns","is_error":true,"session_id":"abc","usage":{"input_tokens":5,"output_tokens":1}}`))
	require.True(t, ok)

	updates := newTestNormalizer().Normalize(ev)
	require.Len(t, updates, 1)
	require.Equal(t, engine.KindTerminal, updates[0].Kind)
	require.False(t, updates[0].Success)
	require.EqualError(t, updates[0].Err, "error_max_turns")
	require.Equal(t, "abc", updates[0].Token)
	require.Equal(t, int64(5), updates[0].Usage.InputTokens)
}

func TestNormalizer_UnknownEventDropped(t *testing.T) {
	t.Parallel()

	ev, ok := decodeEvent([]byte(`{"type":"telemetry","foo":1}`))
	require.True(t, ok)
	require.Empty(t, newTestNormalizer().Normalize(ev))
}

func TestDecodeEvent_SkipsNoise(t *testing.T) {
	t.Parallel()

	_, ok := decodeEvent([]byte("Warning: something"))
	require.False(t, ok)
	_, ok = decodeEvent([]byte(`{"no_type":true}`))
	require.False(t, ok)
}
