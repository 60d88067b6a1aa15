package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/devpilot-ai/devpilot/internal/db"
	"github.com/devpilot-ai/devpilot/internal/proto"
)

// SubscribeEvents streams the events of a session. The channel is closed
// after the completion event, when the server ends the stream or when ctx is
// done.
func (c *Client) SubscribeEvents(ctx context.Context, sessionID string) (<-chan proto.SessionEvent, error) {
	rsp, err := c.get(ctx, fmt.Sprintf("/sessions/%s/events", sessionID), nil, http.Header{
		"Accept":        []string{"text/event-stream"},
		"Cache-Control": []string{"no-cache"},
		"Connection":    []string{"keep-alive"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	if err := checkStatus(rsp); err != nil {
		rsp.Body.Close()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}

	events := make(chan proto.SessionEvent, 100)
	go func() {
		defer close(events)
		defer rsp.Body.Close()

		scr := bufio.NewReader(rsp.Body)
		for {
			line, err := scr.ReadBytes('\n')
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("Reading from events stream", "error", err)
				}
				return
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				// End of an event
				continue
			}

			data, ok := bytes.CutPrefix(line, []byte("data:"))
			if !ok {
				slog.Warn("Invalid event format", "line", string(line))
				continue
			}

			var ev proto.SessionEvent
			if err := json.Unmarshal(bytes.TrimSpace(data), &ev); err != nil {
				slog.Error("Unmarshaling event", "error", err)
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Complete != nil {
				return
			}
		}
	}()

	return events, nil
}

// Engines lists the engines the server runs.
func (c *Client) Engines(ctx context.Context) ([]proto.EngineInfo, error) {
	var engines []proto.EngineInfo
	if err := c.getJSON(ctx, "/engines", nil, &engines); err != nil {
		return nil, fmt.Errorf("failed to list engines: %w", err)
	}
	return engines, nil
}

// Execute starts a turn on engine. An empty engine selects the server's
// default.
func (c *Client) Execute(ctx context.Context, engine string, req proto.PromptRequest) (*proto.ExecuteResult, error) {
	if engine == "" {
		engines, err := c.Engines(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range engines {
			if e.Default {
				engine = e.Name
			}
		}
		if engine == "" {
			return nil, errors.New("server has no default engine")
		}
	}

	rsp, err := c.post(ctx, fmt.Sprintf("/engines/%s/sessions", engine), nil, jsonBody(req), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to execute prompt: %w", err)
	}
	defer rsp.Body.Close()
	if err := checkStatus(rsp); err != nil {
		return nil, err
	}
	var res proto.ExecuteResult
	if err := json.NewDecoder(rsp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode execute result: %w", err)
	}
	return &res, nil
}

// ListSessions lists the live sessions, optionally of one engine.
func (c *Client) ListSessions(ctx context.Context, engine string) ([]proto.SessionInfo, error) {
	query := url.Values{}
	if engine != "" {
		query.Set("engine", engine)
	}
	var sessions []proto.SessionInfo
	if err := c.getJSON(ctx, "/sessions", query, &sessions); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*proto.SessionStatus, error) {
	var st proto.SessionStatus
	if err := c.getJSON(ctx, fmt.Sprintf("/sessions/%s", sessionID), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) SessionLogs(ctx context.Context, sessionID string, limit int) ([]proto.LogEntry, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var logs []proto.LogEntry
	if err := c.getJSON(ctx, fmt.Sprintf("/sessions/%s/logs", sessionID), query, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (c *Client) Terminate(ctx context.Context, sessionID string) (*proto.TerminateResult, error) {
	rsp, err := c.post(ctx, fmt.Sprintf("/sessions/%s/terminate", sessionID), nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to terminate session: %w", err)
	}
	defer rsp.Body.Close()
	if err := checkStatus(rsp); err != nil {
		return nil, err
	}
	var res proto.TerminateResult
	if err := json.NewDecoder(rsp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) History(ctx context.Context, project string, limit int) ([]proto.HistoryRecord, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var records []proto.HistoryRecord
	if err := c.getJSON(ctx, fmt.Sprintf("/projects/%s/history", project), query, &records); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return records, nil
}

func (c *Client) HistoryRecord(ctx context.Context, project, id string) (*proto.HistoryRecord, error) {
	var rec proto.HistoryRecord
	if err := c.getJSON(ctx, fmt.Sprintf("/projects/%s/history/%s", project, id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ClearHistory(ctx context.Context, project string) error {
	rsp, err := c.delete(ctx, fmt.Sprintf("/projects/%s/history", project), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	defer rsp.Body.Close()
	return checkStatus(rsp)
}

// StoredSessions lists the persisted session metadata of a project.
func (c *Client) StoredSessions(ctx context.Context, project string, limit int) ([]db.Session, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var sessions []db.Session
	if err := c.getJSON(ctx, fmt.Sprintf("/projects/%s/sessions", project), query, &sessions); err != nil {
		return nil, fmt.Errorf("failed to list stored sessions: %w", err)
	}
	return sessions, nil
}

func (c *Client) Conversation(ctx context.Context, conversationID string) (*proto.Conversation, error) {
	var conv proto.Conversation
	if err := c.getJSON(ctx, fmt.Sprintf("/conversations/%s", conversationID), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}
