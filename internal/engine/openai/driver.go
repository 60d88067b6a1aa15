// Package openai drives OpenAI-compatible Chat Completions endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/log"
)

const defaultModel = "gpt-4.1"

// chunkStream is the part of the SDK stream the driver consumes.
type chunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// Driver streams one chat completion per turn. The conversation so far is
// kept as session state and replayed on every request.
type Driver struct {
	cfg      config.EngineConfig
	resolver config.VariableResolver

	mu     sync.Mutex
	client *openai.Client

	newStream func(ctx context.Context, params openai.ChatCompletionNewParams) chunkStream
	wait      func(ctx context.Context, d time.Duration) error

	tokensOnce sync.Once
	tokens     *tokenizer
}

var _ engine.Driver[openai.ChatCompletionChunk] = (*Driver)(nil)

func New(cfg config.EngineConfig, resolver config.VariableResolver) *Driver {
	d := &Driver{
		cfg:      cfg,
		resolver: resolver,
		wait:     sleep,
	}
	d.newStream = d.stream
	return d
}

func (d *Driver) model() string {
	if d.cfg.Model != "" {
		return d.cfg.Model
	}
	return defaultModel
}

// Init resolves the API key and builds the client. It runs before every
// turn so a rotated key is picked up.
func (d *Driver) Init() error {
	if d.cfg.APIKey == "" && d.cfg.BaseURL == "" {
		return errors.New("api key not configured")
	}

	var opts []option.RequestOption
	if d.cfg.APIKey != "" {
		apiKey, err := d.resolver.ResolveValue(d.cfg.APIKey)
		if err != nil {
			return fmt.Errorf("resolve api key: %w", err)
		}
		opts = append(opts, option.WithAPIKey(apiKey))
		slog.Debug("OpenAI client configured", "engine", d.cfg.Name, "api_key", log.MaskAPIKey(apiKey))
	}
	if d.cfg.BaseURL != "" {
		baseURL, err := d.resolver.ResolveValue(d.cfg.BaseURL)
		if err != nil {
			return fmt.Errorf("resolve base url: %w", err)
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	headers, err := config.ResolveMap(d.resolver, d.cfg.ExtraHeaders)
	if err != nil {
		return fmt.Errorf("resolve headers: %w", err)
	}
	for key, value := range headers {
		opts = append(opts, option.WithHeader(key, value))
	}

	client := openai.NewClient(opts...)
	d.mu.Lock()
	d.client = &client
	d.mu.Unlock()
	return nil
}

// CanResume is false: the transcript lives in the session, there is no
// provider-side handle to hand back.
func (d *Driver) CanResume() bool {
	return false
}

func (d *Driver) Open(ctx context.Context, s *engine.Session, t engine.Turn) (engine.Stream[openai.ChatCompletionChunk], error) {
	conv := conversationOf(s)
	conv.pending = t.Prompt
	s.SetState(conv)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(d.model()),
		Messages: conv.messages(d.cfg.SystemPrompt),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if d.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(d.cfg.MaxTokens)
	}

	return newRetryStream(ctx, func() chunkStream {
		return d.newStream(ctx, params)
	}, d.wait), nil
}

func (d *Driver) stream(ctx context.Context, params openai.ChatCompletionNewParams) chunkStream {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	return client.Chat.Completions.NewStreaming(ctx, params)
}

func (d *Driver) NewNormalizer(s *engine.Session) engine.Normalizer[openai.ChatCompletionChunk] {
	return &normalizer{
		session:      s,
		systemPrompt: d.cfg.SystemPrompt,
		tokens:       d.tokenizer,
	}
}

func (d *Driver) tokenizer() *tokenizer {
	d.tokensOnce.Do(func() {
		d.tokens = newTokenizer(d.model())
	})
	return d.tokens
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
