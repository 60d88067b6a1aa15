// Package app wires configuration, engines, persistence and the
// conversation bridge into one explicitly constructed context object.
package app

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	openaisdk "github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/conversation"
	"github.com/devpilot-ai/devpilot/internal/cost"
	"github.com/devpilot-ai/devpilot/internal/db"
	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/engine/claude"
	"github.com/devpilot-ai/devpilot/internal/engine/codex"
	"github.com/devpilot-ai/devpilot/internal/engine/gemini"
	"github.com/devpilot-ai/devpilot/internal/engine/openai"
	"github.com/devpilot-ai/devpilot/internal/history"
	"github.com/devpilot-ai/devpilot/internal/log"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/render"
)

type App struct {
	Registry *engine.Registry
	Bus      *engine.Bus
	History  *history.Store
	Factory  *engine.Factory
	Bridge   *conversation.Bridge
	Sessions db.Querier

	cfg  *config.Config
	conn *sql.DB

	ctx      context.Context
	cancel   context.CancelFunc
	watchers sync.WaitGroup
	once     sync.Once
}

// EngineBuilder constructs the engine for one engine configuration.
type EngineBuilder func(cfg config.EngineConfig, deps engine.Deps) (engine.Engine, error)

// New builds the application from configuration. conn may be nil, in which
// case session metadata is not persisted.
func New(ctx context.Context, conn *sql.DB, cfg *config.Config) (*App, error) {
	return NewWithBuilder(ctx, conn, cfg, func(ec config.EngineConfig, deps engine.Deps) (engine.Engine, error) {
		return buildEngine(ec, cfg.Resolver(), deps)
	})
}

// NewWithBuilder builds the application with a custom engine constructor.
func NewWithBuilder(ctx context.Context, conn *sql.DB, cfg *config.Config, build EngineBuilder) (*App, error) {
	appCtx, cancel := context.WithCancel(ctx)
	a := &App{
		Registry: engine.NewRegistry(),
		Bus:      engine.NewBus(cfg.Options.MaxSessionLogs),
		History:  history.NewStore(cfg.Options.DataDirectory, cfg.Options.HistoryLimit),
		cfg:      cfg,
		conn:     conn,
		ctx:      appCtx,
		cancel:   cancel,
	}

	deps := engine.Deps{
		Registry:       a.Registry,
		Bus:            a.Bus,
		History:        a.History,
		Costs:          cost.NewTable(cfg.Pricing...),
		Render:         render.New(render.FromConfig(cfg.Options.Render)),
		MaxSessionLogs: cfg.Options.MaxSessionLogs,
	}
	if conn != nil {
		q := db.New(conn)
		a.Sessions = q
		deps.Recorder = q
	}

	var engines []engine.Engine
	for _, ec := range cfg.EnabledEngines() {
		e, err := build(ec, deps)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("engine %s: %w", ec.Name, err)
		}
		engines = append(engines, e)
	}

	factory, err := engine.NewFactory(cfg.DefaultEngine, a.Registry, engines...)
	if err != nil {
		cancel()
		return nil, err
	}
	a.Factory = factory
	a.Bridge = conversation.NewBridge(cfg.Options.ConversationMaxMessages, a.displayName)

	slog.Info("App initialized", "engines", len(engines), "default_engine", cfg.DefaultEngine, "persistence", conn != nil)
	return a, nil
}

func buildEngine(ec config.EngineConfig, resolver config.VariableResolver, deps engine.Deps) (engine.Engine, error) {
	r := deps.Render
	switch ec.Type {
	case config.EngineTypeClaudeCLI:
		return engine.NewAdapter[claude.Event](ec, claude.New(ec, resolver, r), deps), nil
	case config.EngineTypeCodexCLI:
		return engine.NewAdapter[codex.Event](ec, codex.New(ec, resolver, r), deps), nil
	case config.EngineTypeOpenAI:
		return engine.NewAdapter[openaisdk.ChatCompletionChunk](ec, openai.New(ec, resolver), deps), nil
	case config.EngineTypeGemini:
		return engine.NewAdapter[*genai.GenerateContentResponse](ec, gemini.New(ec, resolver), deps), nil
	}
	return nil, &engine.UnsupportedEngineError{Name: string(ec.Type)}
}

func (a *App) Config() *config.Config {
	return a.cfg
}

func (a *App) displayName(name string) string {
	if ec, ok := a.cfg.Engine(name); ok {
		return ec.Label()
	}
	return name
}

// ExecuteParams is one prompt dispatched through the application.
type ExecuteParams struct {
	Engine         string
	ConversationID string
	ProjectName    string
	ProjectPath    string
	Prompt         string
	SessionID      string
	TaskContextID  string
	Mode           string
}

// Execute dispatches a prompt. When the conversation last spoke to another
// engine, recent messages are prepended as context; the recorded prompt stays
// as the user typed it.
func (a *App) Execute(ctx context.Context, p ExecuteParams) (proto.ExecuteResult, error) {
	if strings.TrimSpace(p.Prompt) == "" {
		return proto.ExecuteResult{}, errors.New("prompt is empty")
	}
	name := cmp.Or(p.Engine, a.Factory.DefaultEngine())

	req := proto.ExecuteRequest{
		ProjectName:   p.ProjectName,
		ProjectPath:   p.ProjectPath,
		Prompt:        p.Prompt,
		SessionID:     p.SessionID,
		TaskContextID: p.TaskContextID,
		Mode:          p.Mode,
	}
	if preamble, ok := a.Bridge.ContextPrompt(p.ConversationID, name); ok {
		slog.Info("Bridging conversation context", "conversation_id", p.ConversationID, "engine", name)
		req.ContextPreamble = preamble
	}

	res, err := a.Factory.Execute(ctx, name, req)
	if err != nil {
		return res, err
	}

	if p.ConversationID != "" {
		a.Bridge.AddUserMessage(p.ConversationID, name, p.Prompt)
		a.watch(p.ConversationID, name, res.SessionID)
	}
	return res, nil
}

// watch records the assistant's reply in the conversation once the turn
// completes.
func (a *App) watch(conversationID, engineName, sessionID string) {
	ctx, cancel := context.WithCancel(a.ctx)
	events, err := a.Factory.Subscribe(ctx, engineName, sessionID)
	if err != nil {
		cancel()
		slog.Error("Failed to watch session", "session_id", sessionID, "error", err)
		return
	}

	a.watchers.Add(1)
	go func() {
		defer a.watchers.Done()
		defer cancel()
		defer log.RecoverPanic("conversation-watch", nil)

		for ev := range events {
			complete := ev.Payload.Complete
			if complete == nil {
				continue
			}
			if complete.Success {
				a.Bridge.AddAssistantMessage(conversationID, engineName, reply(complete))
			}
			return
		}
	}()
}

func reply(c *proto.CompleteEvent) string {
	if c.Result != "" {
		return c.Result
	}
	var parts []string
	for _, entry := range c.Logs {
		if entry.Channel == proto.Stdout {
			parts = append(parts, entry.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Terminate stops a session, looking up its engine when none is given.
func (a *App) Terminate(engineName, sessionID string) (proto.TerminateResult, error) {
	if engineName == "" {
		if owner, ok := a.Factory.SessionEngine(sessionID); ok {
			engineName = owner
		}
	}
	return a.Factory.Terminate(engineName, sessionID)
}

// StoredSessions lists persisted session metadata, newest first.
func (a *App) StoredSessions(ctx context.Context, project string, limit int64) ([]db.Session, error) {
	if a.Sessions == nil {
		return []db.Session{}, nil
	}
	if project == "" {
		return a.Sessions.ListSessions(ctx, limit)
	}
	return a.Sessions.ListSessionsByProject(ctx, db.ListSessionsByProjectParams{ProjectName: project, Limit: limit})
}

// Shutdown cancels running sessions, waits for them to be recorded and
// closes the database.
func (a *App) Shutdown() {
	a.once.Do(func() {
		a.Factory.Shutdown()
		a.cancel()
		a.watchers.Wait()
		a.Bus.Shutdown()
		if a.conn != nil {
			if err := a.conn.Close(); err != nil {
				slog.Error("Failed to close database", "error", err)
			}
		}
	})
}
