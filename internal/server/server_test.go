package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devpilot-ai/devpilot/internal/app"
	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/proto"
)

type echoStream struct {
	ctx  context.Context
	gate chan struct{}
	line string
	done bool
	err  error
}

func (s *echoStream) Next() bool {
	if s.done {
		return false
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		}
	}
	s.done = true
	return true
}

func (s *echoStream) Current() string { return s.line }
func (s *echoStream) Err() error      { return s.err }
func (s *echoStream) Close() error    { return nil }

type echoNormalizer struct{}

func (echoNormalizer) Normalize(line string) []engine.Update {
	u := engine.Stdout(line)
	u.Message = true
	return []engine.Update{u}
}

func (echoNormalizer) Flush(err error) []engine.Update {
	if err != nil {
		return []engine.Update{engine.Failed(proto.Usage{}, err)}
	}
	return nil
}

// echoDriver replies with the dispatched prompt. A non-nil gate holds the
// reply until it is closed.
type echoDriver struct {
	gate chan struct{}
}

func (d *echoDriver) Init() error     { return nil }
func (d *echoDriver) CanResume() bool { return true }

func (d *echoDriver) Open(ctx context.Context, _ *engine.Session, t engine.Turn) (engine.Stream[string], error) {
	return &echoStream{ctx: ctx, gate: d.gate, line: "echo: " + t.Prompt}, nil
}

func (d *echoDriver) NewNormalizer(*engine.Session) engine.Normalizer[string] {
	return echoNormalizer{}
}

func newTestServer(t *testing.T, drivers map[string]*echoDriver) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Options: &config.Options{
			DataDirectory:           t.TempDir(),
			HistoryLimit:            10,
			MaxSessionLogs:          100,
			ConversationMaxMessages: 50,
		},
		DefaultEngine: "claude",
		Engines:       map[string]config.EngineConfig{},
	}
	for name := range drivers {
		cfg.Engines[name] = config.EngineConfig{Name: name, Type: config.EngineTypeClaudeCLI, DisplayName: strings.ToUpper(name)}
	}

	a, err := app.NewWithBuilder(t.Context(), nil, cfg, func(ec config.EngineConfig, deps engine.Deps) (engine.Engine, error) {
		return engine.NewAdapter[string](ec, drivers[ec.Name], deps), nil
	})
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)

	ts := httptest.NewServer(NewServer(a, "tcp", "127.0.0.1:0").Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// readEvents reads SSE data lines until the completion event.
func readEvents(t *testing.T, url string) []proto.SessionEvent {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []proto.SessionEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev proto.SessionEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestServer_Meta(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, map[string]*echoDriver{"claude": {}, "glm": {}})

	resp, err := http.Get(ts.URL + "/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info proto.VersionInfo
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/v1/version", nil, &info))
	require.NotEmpty(t, info.Version)
	require.NotEmpty(t, info.GoVersion)

	var engines []proto.EngineInfo
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/v1/engines", nil, &engines))
	require.Len(t, engines, 2)
	require.Equal(t, "claude", engines[0].Name)
	require.True(t, engines[0].Default)
	require.Equal(t, "glm", engines[1].Name)
	require.False(t, engines[1].Default)
}

func TestServer_SessionLifecycle(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	ts := newTestServer(t, map[string]*echoDriver{"claude": {gate: gate}})

	var res proto.ExecuteResult
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/engines/claude/sessions", proto.PromptRequest{
		ExecuteRequest: proto.ExecuteRequest{ProjectName: "demo", Prompt: "hello"},
		ConversationID: "c1",
	}, &res)
	require.Equal(t, http.StatusAccepted, status)
	require.True(t, strings.HasPrefix(res.SessionID, "claude-demo-"))

	var st proto.SessionStatus
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/v1/sessions/"+res.SessionID, nil, &st))
	require.True(t, st.Running)

	var busy proto.Error
	status = doJSON(t, http.MethodPost, ts.URL+"/v1/engines/claude/sessions", proto.PromptRequest{
		ExecuteRequest: proto.ExecuteRequest{ProjectName: "demo", Prompt: "again", SessionID: res.SessionID},
	}, &busy)
	require.Equal(t, http.StatusConflict, status)
	require.Contains(t, busy.Message, "busy")

	close(gate)
	events := readEvents(t, ts.URL+"/v1/sessions/"+res.SessionID+"/events")
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, proto.SessionEventComplete, last.Type)
	require.True(t, last.Complete.Success)
	require.Equal(t, proto.SessionEventOutput, events[0].Type)
	require.Equal(t, "echo: hello", events[0].Output.Content)

	var logs []proto.LogEntry
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/v1/sessions/"+res.SessionID+"/logs?limit=5", nil, &logs))
	require.Len(t, logs, 1)

	var sessions []proto.SessionInfo
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/v1/sessions", nil, &sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, "hello", sessions[0].LastPrompt)

	var records []proto.HistoryRecord
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/v1/projects/demo/history", nil, &records))
	require.Len(t, records, 1)
	require.Equal(t, "hello", records[0].Prompt)

	var rec proto.HistoryRecord
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/v1/projects/demo/history/"+records[0].ID, nil, &rec))
	require.Equal(t, records[0].ID, rec.ID)

	require.Eventually(t, func() bool {
		var conv proto.Conversation
		return doJSON(t, http.MethodGet, ts.URL+"/v1/conversations/c1", nil, &conv) == http.StatusOK && len(conv.Messages) == 2
	}, 5*time.Second, 10*time.Millisecond)

	var stored []json.RawMessage
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/v1/projects/demo/sessions", nil, &stored))
	require.Empty(t, stored)

	var term proto.TerminateResult
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+res.SessionID+"/terminate", nil, &term))
	require.True(t, term.Success)

	require.Equal(t, http.StatusNoContent, doJSON(t, http.MethodDelete, ts.URL+"/v1/projects/demo/history", nil, nil))
	records = nil
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/v1/projects/demo/history", nil, &records))
	require.Empty(t, records)
}

func TestServer_Errors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, map[string]*echoDriver{"claude": {}})

	var perr proto.Error
	require.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, ts.URL+"/v1/engines/nope/sessions", proto.PromptRequest{
		ExecuteRequest: proto.ExecuteRequest{Prompt: "hi"},
	}, &perr))
	require.Contains(t, perr.Message, "unsupported engine")

	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, ts.URL+"/v1/engines/claude/sessions", proto.PromptRequest{}, &perr))
	require.Contains(t, perr.Message, "prompt is empty")

	resp, err := http.Post(ts.URL+"/v1/engines/claude/sessions", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for _, path := range []string{
		"/v1/sessions/missing",
		"/v1/sessions/missing/logs",
		"/v1/sessions/missing/events",
		"/v1/projects/demo/history/missing",
		"/v1/conversations/missing",
	} {
		require.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, ts.URL+path, nil, &perr), path)
	}
	require.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/missing/terminate", nil, &perr))
	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, ts.URL+"/v1/projects/demo/history?limit=x", nil, &perr))
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, map[string]*echoDriver{"claude": {}})

	resp, err := http.Get(ts.URL + "/v1/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `devpilot_http_requests_total{method="GET",route="GET /v1/health",status="2xx"}`)
}

func TestParseHostURL(t *testing.T) {
	t.Parallel()

	u, err := ParseHostURL(DefaultHost)
	require.NoError(t, err)
	require.Equal(t, "tcp", u.Scheme)
	require.Equal(t, "127.0.0.1:7420", u.Host)

	u, err = ParseHostURL("unix:///tmp/devpilot.sock")
	require.NoError(t, err)
	require.Equal(t, "unix", u.Scheme)
	require.Equal(t, "/tmp/devpilot.sock", u.Host)

	_, err = ParseHostURL("127.0.0.1:7420")
	require.Error(t, err)
	_, err = ParseHostURL("npipe:///pipe")
	require.Error(t, err)
}
