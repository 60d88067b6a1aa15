package gemini

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/cost"
	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/history"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/render"
)

func response(id, text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		ResponseID:   id,
		ModelVersion: "gemini-2.5-flash",
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
	}
}

func seq(resps []*genai.GenerateContentResponse, err error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range resps {
			if !yield(r, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

func newTestAdapter(t *testing.T, cfg config.EngineConfig, d *Driver) (*engine.Adapter[*genai.GenerateContentResponse], engine.Deps) {
	t.Helper()
	deps := engine.Deps{
		Registry:       engine.NewRegistry(),
		Bus:            engine.NewBus(100),
		History:        history.NewStore(t.TempDir(), 10),
		Costs:          cost.NewTable(),
		Render:         render.New(render.DefaultOptions()),
		MaxSessionLogs: 100,
	}
	a := engine.NewAdapter[*genai.GenerateContentResponse](cfg, d, deps)
	t.Cleanup(a.Shutdown)
	return a, deps
}

func runTurn(t *testing.T, a engine.Engine, req proto.ExecuteRequest) (proto.ExecuteResult, []string, *proto.CompleteEvent) {
	t.Helper()

	res, err := a.Execute(t.Context(), req)
	require.NoError(t, err)

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
	return res, outputs, complete
}

func TestDriver_Init(t *testing.T) {
	t.Parallel()

	require.ErrorContains(t, New(config.EngineConfig{}, config.NewEnvironmentVariableResolver(nil)).Init(), "api key not configured")

	missing := New(config.EngineConfig{APIKey: "$GEMINI_API_KEY"}, config.NewEnvironmentVariableResolver(nil))
	require.ErrorContains(t, missing.Init(), "GEMINI_API_KEY")

	ok := New(config.EngineConfig{APIKey: "$GEMINI_API_KEY"}, config.NewEnvironmentVariableResolver([]string{"GEMINI_API_KEY=g-test"}))
	require.NoError(t, ok.Init())
	require.False(t, ok.CanResume())
}

func TestDriver_TranscriptAcrossTurns(t *testing.T) {
	t.Parallel()

	cfg := config.EngineConfig{Name: "gemini", Type: config.EngineTypeGemini, APIKey: "g", Model: "gemini-2.5-flash", Provider: "gemini", SystemPrompt: "be brief"}
	d := New(cfg, config.NewEnvironmentVariableResolver(nil))

	final := response("resp-1", "Done.")
	final.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:        20,
		CachedContentTokenCount: 5,
		CandidatesTokenCount:    7,
		ThoughtsTokenCount:      3,
	}
	turns := [][]*genai.GenerateContentResponse{
		{response("resp-1", "First part.\n\n"), final},
		{response("resp-2", "Sure.")},
	}

	var mu sync.Mutex
	var requests [][]*genai.Content
	var configs []*genai.GenerateContentConfig
	var models []string
	d.generate = func(_ context.Context, model string, contents []*genai.Content, gc *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		mu.Lock()
		defer mu.Unlock()
		models = append(models, model)
		requests = append(requests, contents)
		configs = append(configs, gc)
		return seq(turns[len(requests)-1], nil)
	}
	a, deps := newTestAdapter(t, cfg, d)

	first, outputs, complete := runTurn(t, a, proto.ExecuteRequest{ProjectName: "demo", Prompt: "hi"})
	require.True(t, complete.Success, complete.Error)
	require.Equal(t, []string{"First part.", "Done."}, outputs)
	require.Equal(t, "First part.\n\nDone.", complete.Result)
	require.Equal(t, proto.Usage{InputTokens: 15, OutputTokens: 10, CacheReadTokens: 5}, complete.Usage)

	_, outputs, complete = runTurn(t, a, proto.ExecuteRequest{ProjectName: "demo", Prompt: "more", SessionID: first.SessionID})
	require.True(t, complete.Success, complete.Error)
	require.Equal(t, []string{"Sure."}, outputs)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []*genai.Content{
		genai.NewContentFromText("hi", genai.RoleUser),
		genai.NewContentFromText("First part.\n\nDone.", genai.RoleModel),
		genai.NewContentFromText("more", genai.RoleUser),
	}, requests[1])
	require.Equal(t, genai.NewContentFromText("be brief", genai.RoleUser), configs[0].SystemInstruction)
	require.Equal(t, []string{"gemini-2.5-flash", "gemini-2.5-flash"}, models)

	sess, ok := deps.Registry.Get(first.SessionID)
	require.True(t, ok)
	require.Equal(t, "resp-2", sess.Token())
	require.Equal(t, "gemini-2.5-flash", sess.Model())
}

func TestDriver_StreamError(t *testing.T) {
	t.Parallel()

	cfg := config.EngineConfig{Name: "gemini", APIKey: "g"}
	d := New(cfg, config.NewEnvironmentVariableResolver(nil))
	d.generate = func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		return seq([]*genai.GenerateContentResponse{response("r", "partial")}, errors.New("quota exhausted"))
	}
	a, _ := newTestAdapter(t, cfg, d)

	_, outputs, complete := runTurn(t, a, proto.ExecuteRequest{ProjectName: "demo", Prompt: "hi"})
	require.False(t, complete.Success)
	require.Equal(t, "quota exhausted", complete.Error)
	require.Equal(t, []string{"partial"}, outputs)
}

func TestDriver_BlockedPrompt(t *testing.T) {
	t.Parallel()

	cfg := config.EngineConfig{Name: "gemini", APIKey: "g"}
	d := New(cfg, config.NewEnvironmentVariableResolver(nil))
	d.generate = func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		return seq([]*genai.GenerateContentResponse{{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}}, nil)
	}
	a, _ := newTestAdapter(t, cfg, d)

	_, outputs, complete := runTurn(t, a, proto.ExecuteRequest{ProjectName: "demo", Prompt: "hi"})
	require.False(t, complete.Success)
	require.Contains(t, complete.Error, "prompt blocked")
	require.Empty(t, outputs)
}
