package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/pubsub"
)

// Factory routes calls to the engine named by the caller. An empty name is
// the default engine.
type Factory struct {
	engines       map[string]Engine
	defaultEngine string
	registry      *Registry
}

func NewFactory(defaultEngine string, registry *Registry, engines ...Engine) (*Factory, error) {
	f := &Factory{
		engines:       make(map[string]Engine, len(engines)),
		defaultEngine: defaultEngine,
		registry:      registry,
	}
	for _, e := range engines {
		f.engines[e.Info().Name] = e
	}
	if _, ok := f.engines[defaultEngine]; !ok {
		return nil, fmt.Errorf("default engine %q: %w", defaultEngine, &UnsupportedEngineError{Name: defaultEngine})
	}
	return f, nil
}

func (f *Factory) DefaultEngine() string {
	return f.defaultEngine
}

func (f *Factory) Resolve(name string) (Engine, error) {
	if name == "" {
		name = f.defaultEngine
	}
	e, ok := f.engines[name]
	if !ok {
		return nil, &UnsupportedEngineError{Name: name}
	}
	return e, nil
}

// Engines describes the registered engines, sorted by name.
func (f *Factory) Engines() []proto.EngineInfo {
	var out []proto.EngineInfo
	for _, name := range slices.Sorted(maps.Keys(f.engines)) {
		info := f.engines[name].Info()
		info.Default = name == f.defaultEngine
		out = append(out, info)
	}
	return out
}

// SessionEngine returns the engine owning a live session.
func (f *Factory) SessionEngine(sessionID string) (string, bool) {
	sess, ok := f.registry.Get(sessionID)
	if !ok {
		return "", false
	}
	return sess.Engine, true
}

func (f *Factory) Execute(ctx context.Context, engine string, req proto.ExecuteRequest) (proto.ExecuteResult, error) {
	e, err := f.Resolve(engine)
	if err != nil {
		return proto.ExecuteResult{}, err
	}
	return e.Execute(ctx, req)
}

func (f *Factory) Status(engine, sessionID string) (proto.SessionStatus, error) {
	e, err := f.Resolve(engine)
	if err != nil {
		return proto.SessionStatus{}, err
	}
	return e.Status(sessionID), nil
}

func (f *Factory) Logs(engine, sessionID string, limit int) ([]proto.LogEntry, error) {
	e, err := f.Resolve(engine)
	if err != nil {
		return nil, err
	}
	return e.Logs(sessionID, limit), nil
}

func (f *Factory) Terminate(engine, sessionID string) (proto.TerminateResult, error) {
	e, err := f.Resolve(engine)
	if err != nil {
		return proto.TerminateResult{}, err
	}
	return e.Terminate(sessionID)
}

func (f *Factory) ActiveSessions(engine string) ([]proto.SessionInfo, error) {
	e, err := f.Resolve(engine)
	if err != nil {
		return nil, err
	}
	return e.ActiveSessions(), nil
}

// AllActiveSessions lists the live sessions of every engine.
func (f *Factory) AllActiveSessions() []proto.SessionInfo {
	var out []proto.SessionInfo
	for _, sess := range f.registry.List() {
		out = append(out, sess.Info())
	}
	return out
}

func (f *Factory) History(engine, project string, limit int) ([]proto.HistoryRecord, error) {
	e, err := f.Resolve(engine)
	if err != nil {
		return nil, err
	}
	return e.History(project, limit), nil
}

func (f *Factory) HistoryDetail(engine, project, id string) (proto.HistoryRecord, bool, error) {
	e, err := f.Resolve(engine)
	if err != nil {
		return proto.HistoryRecord{}, false, err
	}
	rec, ok := e.HistoryDetail(project, id)
	return rec, ok, nil
}

func (f *Factory) ClearHistory(engine, project string) error {
	e, err := f.Resolve(engine)
	if err != nil {
		return err
	}
	return e.ClearHistory(project)
}

func (f *Factory) Subscribe(ctx context.Context, engine, sessionID string) (<-chan pubsub.Event[proto.SessionEvent], error) {
	e, err := f.Resolve(engine)
	if err != nil {
		return nil, err
	}
	return e.Subscribe(ctx, sessionID), nil
}

func (f *Factory) Shutdown() {
	for _, e := range f.engines {
		e.Shutdown()
	}
}
