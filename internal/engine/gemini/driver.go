// Package gemini drives the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"google.golang.org/genai"

	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/log"
)

const defaultModel = "gemini-2.5-flash"

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

// Driver streams GenerateContent per turn with the session's transcript as
// history.
type Driver struct {
	cfg      config.EngineConfig
	resolver config.VariableResolver

	mu     sync.Mutex
	client *genai.Client

	generate generateFunc
}

var _ engine.Driver[*genai.GenerateContentResponse] = (*Driver)(nil)

func New(cfg config.EngineConfig, resolver config.VariableResolver) *Driver {
	d := &Driver{cfg: cfg, resolver: resolver}
	d.generate = d.stream
	return d
}

func (d *Driver) model() string {
	if d.cfg.Model != "" {
		return d.cfg.Model
	}
	return defaultModel
}

func (d *Driver) Init() error {
	if d.cfg.APIKey == "" {
		return errors.New("api key not configured")
	}
	apiKey, err := d.resolver.ResolveValue(d.cfg.APIKey)
	if err != nil {
		return fmt.Errorf("resolve api key: %w", err)
	}
	headers, err := config.ResolveMap(d.resolver, d.cfg.ExtraHeaders)
	if err != nil {
		return fmt.Errorf("resolve headers: %w", err)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if d.cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = d.cfg.BaseURL
	}
	if len(headers) > 0 {
		cc.HTTPOptions.Headers = http.Header{}
		for k, v := range headers {
			cc.HTTPOptions.Headers.Set(k, v)
		}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}
	slog.Debug("Gemini client configured", "engine", d.cfg.Name, "api_key", log.MaskAPIKey(apiKey))

	d.mu.Lock()
	d.client = client
	d.mu.Unlock()
	return nil
}

func (d *Driver) CanResume() bool {
	return false
}

func (d *Driver) Open(ctx context.Context, s *engine.Session, t engine.Turn) (engine.Stream[*genai.GenerateContentResponse], error) {
	tr := transcriptOf(s)
	tr.pending = t.Prompt
	s.SetState(tr)

	gc := &genai.GenerateContentConfig{}
	if d.cfg.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(d.cfg.SystemPrompt, genai.RoleUser)
	}
	if d.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(d.cfg.MaxTokens)
	}

	next, stop := iter.Pull2(d.generate(ctx, d.model(), tr.contents(), gc))
	return &stream{next: next, stop: stop}, nil
}

func (d *Driver) stream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	return client.Models.GenerateContentStream(ctx, model, contents, cfg)
}

func (d *Driver) NewNormalizer(s *engine.Session) engine.Normalizer[*genai.GenerateContentResponse] {
	return &normalizer{session: s}
}

// stream adapts the SDK's push iterator to the pull shape the runner uses.
type stream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
	cur  *genai.GenerateContentResponse
	err  error
}

func (s *stream) Next() bool {
	if s.err != nil {
		return false
	}
	resp, err, ok := s.next()
	if !ok {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	s.cur = resp
	return true
}

func (s *stream) Current() *genai.GenerateContentResponse {
	return s.cur
}

func (s *stream) Err() error {
	return s.err
}

func (s *stream) Close() error {
	s.stop()
	return nil
}

type transcript struct {
	history []*genai.Content
	pending string
}

func transcriptOf(s *engine.Session) transcript {
	tr, _ := s.State().(transcript)
	tr.history = slices.Clone(tr.history)
	return tr
}

func (t transcript) contents() []*genai.Content {
	return append(slices.Clone(t.history), genai.NewContentFromText(t.pending, genai.RoleUser))
}

func (t transcript) commit(reply string) transcript {
	t.history = append(t.history,
		genai.NewContentFromText(t.pending, genai.RoleUser),
		genai.NewContentFromText(reply, genai.RoleModel),
	)
	t.pending = ""
	return t
}
