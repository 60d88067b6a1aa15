package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/log"
	"github.com/devpilot-ai/devpilot/internal/metrics"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/pubsub"
)

const recordTimeout = 5 * time.Second

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Adapter implements Engine for any provider whose native event type is E.
type Adapter[E any] struct {
	cfg    config.EngineConfig
	driver Driver[E]
	deps   Deps

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
	now     func() time.Time
}

func NewAdapter[E any](cfg config.EngineConfig, driver Driver[E], deps Deps) *Adapter[E] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter[E]{
		cfg:    cfg,
		driver: driver,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

func (a *Adapter[E]) Name() string {
	return a.cfg.Name
}

func (a *Adapter[E]) Info() proto.EngineInfo {
	return proto.EngineInfo{
		Name:        a.cfg.Name,
		DisplayName: a.cfg.Label(),
		Type:        string(a.cfg.Type),
		Model:       a.cfg.Model,
	}
}

func (a *Adapter[E]) Execute(ctx context.Context, req proto.ExecuteRequest) (proto.ExecuteResult, error) {
	if err := a.driver.Init(); err != nil {
		return proto.ExecuteResult{}, fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, a.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return proto.ExecuteResult{}, err
	}

	sess, resumed := a.resolveSession(req)

	turnCtx, cancel := context.WithCancel(a.ctx)
	if err := sess.begin(req, cancel); err != nil {
		cancel()
		return proto.ExecuteResult{}, fmt.Errorf("%s: %w", sess.ID, err)
	}
	a.deps.Bus.StartTurn(sess.ID)

	turn := Turn{
		SessionID:   sess.ID,
		Prompt:      req.DispatchedPrompt(),
		ProjectPath: sess.ProjectPath,
		Mode:        req.Mode,
	}
	if resumed && a.driver.CanResume() {
		turn.ResumeToken = sess.Token()
	}

	started := a.now()
	metrics.TurnStarted(a.Name())
	slog.Info("Starting turn",
		"engine", a.Name(),
		"session_id", sess.ID,
		"project", sess.ProjectName,
		"resumed", resumed,
		"resume_token", turn.ResumeToken != "",
	)

	a.running.Add(1)
	go a.run(turnCtx, cancel, sess, turn, req, started)

	return proto.ExecuteResult{
		SessionID: sess.ID,
		StartedAt: started.UnixMilli(),
		Resumed:   resumed,
	}, nil
}

func (a *Adapter[E]) resolveSession(req proto.ExecuteRequest) (*Session, bool) {
	if req.SessionID != "" {
		if sess, ok := a.deps.Registry.Get(req.SessionID); ok && sess.Engine == a.Name() {
			return sess, true
		}
		slog.Warn("Session not found, starting a new one", "engine", a.Name(), "session_id", req.SessionID)
	}

	now := a.now()
	sess := newSession(a.newSessionID(req.ProjectName, now), a.Name(), req.ProjectName, req.ProjectPath, now, a.deps.MaxSessionLogs)
	a.deps.Registry.Set(sess)
	return sess, false
}

func (a *Adapter[E]) newSessionID(project string, now time.Time) string {
	project = cmp.Or(unsafeIDChars.ReplaceAllString(project, "_"), "project")
	return fmt.Sprintf("%s-%s-%d-%s", a.Name(), project, now.UnixMilli(), uuid.NewString()[:8])
}

type turnState struct {
	logs       []proto.LogEntry
	usage      proto.Usage
	terminated bool
	success    bool
	err        error
	result     string
}

func (a *Adapter[E]) run(ctx context.Context, cancel context.CancelFunc, sess *Session, turn Turn, req proto.ExecuteRequest, started time.Time) {
	defer a.running.Done()
	defer log.RecoverPanic("engine-"+a.Name(), nil)
	defer cancel()

	t := &turnState{success: true}
	if err := a.consume(ctx, sess, turn, t); err != nil {
		t.success = false
		t.err = err
	}
	a.finish(sess, req, t, started)
}

// consume reads the stream until a terminal update or its end. Panics raised
// by the driver are turned into errors.
func (a *Adapter[E]) consume(ctx context.Context, sess *Session, turn Turn, t *turnState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while consuming stream",
				"engine", a.Name(),
				"session_id", sess.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	stream, err := a.driver.Open(ctx, sess, turn)
	if err != nil {
		return err
	}
	defer stream.Close()

	sess.setTransport(stream)
	norm := a.driver.NewNormalizer(sess)

	for stream.Next() {
		if a.apply(sess, t, norm.Normalize(stream.Current())) {
			return t.err
		}
	}

	streamErr := stream.Err()
	if streamErr == nil {
		streamErr = ctx.Err()
	}
	if a.apply(sess, t, norm.Flush(streamErr)) {
		return t.err
	}
	return streamErr
}

// apply publishes content updates and reports whether a terminal update was
// seen.
func (a *Adapter[E]) apply(sess *Session, t *turnState, updates []Update) bool {
	for _, u := range updates {
		sess.apply(u)
		t.usage = t.usage.Add(u.Usage)

		switch u.Kind {
		case KindContent:
			if u.Content == "" {
				continue
			}
			entry := proto.NewLogEntry(sess.ID, cmp.Or(u.Channel, proto.Stdout), u.Content)
			sess.appendLog(entry)
			t.logs = append(t.logs, entry)
			a.deps.Bus.PublishOutput(entry)
		case KindTerminal:
			t.terminated = true
			t.success = u.Success
			t.result = u.Result
			if !u.Success {
				t.err = cmp.Or(u.Err, errors.New("turn failed"))
			}
			return true
		}
	}
	return false
}

func (a *Adapter[E]) finish(sess *Session, req proto.ExecuteRequest, t *turnState, started time.Time) {
	if interrupted := sess.end(); interrupted {
		t.success = false
		if t.err == nil || errors.Is(t.err, context.Canceled) {
			t.err = errors.New("session interrupted")
		}
	}

	end := a.now()
	duration := end.Sub(started)
	info := sess.Info()
	model := cmp.Or(info.Model, a.cfg.Model)
	turnCost := a.deps.Costs.Compute(t.usage, a.cfg.Provider, model)
	sessionCost := a.deps.Costs.Compute(info.Usage, a.cfg.Provider, model)

	var errMsg string
	if t.err != nil {
		errMsg = t.err.Error()
	}

	if a.deps.Recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := a.deps.Recorder.RecordSession(ctx, proto.SessionRecord{
			ID:            info.ID,
			Engine:        info.Engine,
			ProjectName:   info.ProjectName,
			ProjectPath:   info.ProjectPath,
			ProviderToken: info.ProviderToken,
			Model:         model,
			Usage:         info.Usage,
			Cost:          sessionCost,
			MessageCount:  info.MessageCount,
			ToolCallCount: info.ToolCallCount,
			LastPrompt:    info.LastPrompt,
			Success:       t.success,
			CreatedAt:     info.CreatedAt,
			UpdatedAt:     end.UnixMilli(),
		})
		cancel()
		if err != nil {
			slog.Error("Failed to record session", "session_id", sess.ID, "error", err)
		}
	}

	rec := proto.HistoryRecord{
		ID:            sess.ID,
		Prompt:        req.Prompt,
		Timestamp:     started.UnixMilli(),
		Success:       t.success,
		Logs:          t.logs,
		Duration:      duration.Milliseconds(),
		Engine:        a.Name(),
		Model:         model,
		TaskContextID: info.TaskContextID,
		Usage:         t.usage,
		Cost:          &turnCost,
		Error:         errMsg,
	}
	if err := a.deps.History.Append(sess.ProjectName, rec); err != nil {
		slog.Error("Failed to append history", "session_id", sess.ID, "error", err)
	}

	metrics.TurnFinished(a.Name(), model, t.success, duration, t.usage, turnCost)
	slog.Info("Turn finished",
		"engine", a.Name(),
		"session_id", sess.ID,
		"success", t.success,
		"logs", len(t.logs),
		"duration", duration,
		"error", errMsg,
	)

	complete := proto.CompleteEvent{
		SessionID: sess.ID,
		Engine:    a.Name(),
		Success:   t.success,
		Logs:      slices.Clone(t.logs),
		Duration:  duration.Milliseconds(),
		StartTime: started.UnixMilli(),
		EndTime:   end.UnixMilli(),
		Error:     errMsg,
		Usage:     t.usage,
		Cost:      &turnCost,
		Result:    t.result,
	}
	sess.publish(func() { a.deps.Bus.PublishComplete(complete) })

	// A terminated session's channel is closed once its last turn completes.
	if current, ok := a.deps.Registry.Get(sess.ID); !ok || current != sess {
		a.deps.Bus.Remove(sess.ID)
	}
}

func (a *Adapter[E]) lookup(id string) (*Session, bool) {
	sess, ok := a.deps.Registry.Get(id)
	if !ok || sess.Engine != a.Name() {
		return nil, false
	}
	return sess, true
}

func (a *Adapter[E]) Status(id string) proto.SessionStatus {
	sess, ok := a.lookup(id)
	if !ok {
		return proto.SessionStatus{SessionID: id}
	}
	return proto.SessionStatus{
		SessionID: id,
		Running:   sess.Active(),
		Uptime:    a.now().Sub(sess.CreatedAt).Milliseconds(),
		LogCount:  sess.LogCount(),
	}
}

func (a *Adapter[E]) Logs(id string, limit int) []proto.LogEntry {
	sess, ok := a.lookup(id)
	if !ok {
		return nil
	}
	return sess.Logs(limit)
}

// Terminate stops a session. A running turn is interrupted when the transport
// supports it; otherwise its context is cancelled and the entry dropped, and
// provider-side work may continue orphaned ("forced").
func (a *Adapter[E]) Terminate(id string) (proto.TerminateResult, error) {
	sess, ok := a.lookup(id)
	if !ok {
		return proto.TerminateResult{}, &SessionNotFoundError{ID: id}
	}

	if !sess.Running() {
		a.deps.Registry.Delete(id)
		// A finishing turn closes the channel itself after its completion.
		if !sess.Finishing() {
			a.deps.Bus.Remove(id)
		}
		return proto.TerminateResult{Success: true, Message: "terminated"}, nil
	}

	interrupted, err := sess.interrupt()
	if err != nil {
		slog.Warn("Interrupt failed, cancelling turn", "session_id", id, "error", err)
	}
	a.deps.Registry.Delete(id)
	if interrupted {
		return proto.TerminateResult{Success: true, Message: "interrupted"}, nil
	}

	sess.cancelTurn()
	return proto.TerminateResult{Success: true, Message: "forced"}, nil
}

func (a *Adapter[E]) ActiveSessions() []proto.SessionInfo {
	var out []proto.SessionInfo
	for _, sess := range a.deps.Registry.List() {
		if sess.Engine == a.Name() {
			out = append(out, sess.Info())
		}
	}
	return out
}

func (a *Adapter[E]) History(project string, limit int) []proto.HistoryRecord {
	return a.deps.History.List(project, limit)
}

func (a *Adapter[E]) HistoryDetail(project, id string) (proto.HistoryRecord, bool) {
	return a.deps.History.Get(project, id)
}

func (a *Adapter[E]) ClearHistory(project string) error {
	return a.deps.History.Clear(project)
}

func (a *Adapter[E]) Subscribe(ctx context.Context, sessionID string) <-chan pubsub.Event[proto.SessionEvent] {
	return a.deps.Bus.Subscribe(ctx, sessionID)
}

// Shutdown cancels every running turn of this engine and waits for their
// completion to be recorded.
func (a *Adapter[E]) Shutdown() {
	a.cancel()
	a.running.Wait()
}
