// Package engine runs prompts against AI coding-agent providers behind one
// contract and normalizes their streams into log entries.
package engine

import (
	"context"

	"github.com/devpilot-ai/devpilot/internal/cost"
	"github.com/devpilot-ai/devpilot/internal/history"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/pubsub"
	"github.com/devpilot-ai/devpilot/internal/render"
)

// Engine is the provider-independent session contract.
type Engine interface {
	Info() proto.EngineInfo

	// Execute starts or resumes a session and returns without waiting for
	// the turn to finish.
	Execute(ctx context.Context, req proto.ExecuteRequest) (proto.ExecuteResult, error)
	Status(sessionID string) proto.SessionStatus
	Logs(sessionID string, limit int) []proto.LogEntry
	Terminate(sessionID string) (proto.TerminateResult, error)
	ActiveSessions() []proto.SessionInfo

	History(project string, limit int) []proto.HistoryRecord
	HistoryDetail(project, id string) (proto.HistoryRecord, bool)
	ClearHistory(project string) error

	Subscribe(ctx context.Context, sessionID string) <-chan pubsub.Event[proto.SessionEvent]

	Shutdown()
}

// Recorder persists session metadata when a turn finishes.
type Recorder interface {
	RecordSession(ctx context.Context, rec proto.SessionRecord) error
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Registry       *Registry
	Bus            *Bus
	History        *history.Store
	Recorder       Recorder
	Costs          *cost.Table
	Render         *render.Renderer
	MaxSessionLogs int
}
