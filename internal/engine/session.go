package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/devpilot-ai/devpilot/internal/proto"
)

// Session is one registry entry. Only the session's runner mutates it while a
// turn streams; readers take a snapshot under the lock.
type Session struct {
	ID          string
	Engine      string
	ProjectName string
	ProjectPath string
	CreatedAt   time.Time

	mu            sync.Mutex
	providerToken string
	lastPrompt    string
	taskContextID string
	model         string
	usage         proto.Usage
	messageCount  int64
	toolCallCount int64
	logs          []proto.LogEntry
	maxLogs       int

	running     bool
	finishing   bool
	interrupted bool
	cancel      context.CancelFunc
	transport   any

	// state is driver-owned, e.g. an API transcript.
	state any
}

func newSession(id, engine, projectName, projectPath string, createdAt time.Time, maxLogs int) *Session {
	return &Session{
		ID:          id,
		Engine:      engine,
		ProjectName: projectName,
		ProjectPath: projectPath,
		CreatedAt:   createdAt,
		maxLogs:     maxLogs,
	}
}

func (s *Session) Info() proto.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return proto.SessionInfo{
		ID:            s.ID,
		Engine:        s.Engine,
		ProviderToken: s.providerToken,
		ProjectName:   s.ProjectName,
		ProjectPath:   s.ProjectPath,
		CreatedAt:     s.CreatedAt.UnixMilli(),
		LastPrompt:    s.lastPrompt,
		Usage:         s.usage,
		MessageCount:  s.messageCount,
		ToolCallCount: s.toolCallCount,
		Model:         s.model,
		TaskContextID: s.taskContextID,
		Running:       s.running || s.finishing,
	}
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerToken
}

func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Active reports whether a turn is streaming or its completion has not been
// published yet.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running || s.finishing
}

func (s *Session) Finishing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishing
}

// State returns the driver-owned state.
func (s *Session) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = v
}

// Logs returns the most recent limit entries. A limit <= 0 returns all.
func (s *Session) Logs(limit int) []proto.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.logs
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return slices.Clone(logs)
}

func (s *Session) LogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func (s *Session) begin(req proto.ExecuteRequest, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSessionBusy
	}
	s.running = true
	s.interrupted = false
	s.cancel = cancel
	s.lastPrompt = req.Prompt
	if req.TaskContextID != "" {
		s.taskContextID = req.TaskContextID
	}
	return nil
}

// end marks the stream finished and reports whether it was interrupted. The
// session stays finishing until publish is called.
func (s *Session) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.finishing = true
	s.cancel = nil
	s.transport = nil
	return s.interrupted
}

// publish runs fn, which delivers the turn's completion, and clears the
// finishing state under the same lock so readers never observe one without
// the other.
func (s *Session) publish(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
	s.finishing = false
}

func (s *Session) setTransport(t any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

// interrupt asks the transport to stop. It reports false when the transport
// has no interrupt primitive or the interrupt failed.
func (s *Session) interrupt() (bool, error) {
	s.mu.Lock()
	it, ok := s.transport.(Interrupter)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := it.Interrupt(); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.interrupted = true
	s.mu.Unlock()
	return true, nil
}

func (s *Session) cancelTurn() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) apply(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Token != "" {
		s.providerToken = u.Token
	}
	if u.Model != "" {
		s.model = u.Model
	}
	s.usage = s.usage.Add(u.Usage)
	if u.ToolCall {
		s.toolCallCount++
	}
	if u.Message {
		s.messageCount++
	}
}

func (s *Session) appendLog(entry proto.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if s.maxLogs > 0 && len(s.logs) > s.maxLogs {
		s.logs = slices.Clone(s.logs[len(s.logs)-s.maxLogs:])
	}
}
