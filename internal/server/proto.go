package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"

	"github.com/devpilot-ai/devpilot/internal/app"
	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/version"
)

type controllerV1 struct {
	*Server
}

func (c *controllerV1) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (c *controllerV1) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	jsonEncode(w, proto.VersionInfo{
		Version:   version.Version,
		Commit:    version.Commit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	})
}

func (c *controllerV1) handleGetEngines(w http.ResponseWriter, r *http.Request) {
	engines := c.app.Factory.Engines()
	if engines == nil {
		engines = []proto.EngineInfo{}
	}
	jsonEncode(w, engines)
}

func (c *controllerV1) handlePostEngineSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Accept", "application/json")

	var req proto.PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.logError(r, "failed to decode request", "error", err)
		jsonError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	name := r.PathValue("engine")
	res, err := c.app.Execute(r.Context(), app.ExecuteParams{
		Engine:         name,
		ConversationID: req.ConversationID,
		ProjectName:    req.ProjectName,
		ProjectPath:    req.ProjectPath,
		Prompt:         req.Prompt,
		SessionID:      req.SessionID,
		TaskContextID:  req.TaskContextID,
		Mode:           req.Mode,
	})
	if err != nil {
		status := executeStatus(err)
		c.logError(r, "failed to execute prompt", "error", err, "engine", name, "status", status)
		jsonError(w, status, err.Error())
		return
	}

	jsonStatus(w, http.StatusAccepted, res)
}

func executeStatus(err error) int {
	var unsupported *engine.UnsupportedEngineError
	switch {
	case errors.As(err, &unsupported):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (c *controllerV1) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	var sessions []proto.SessionInfo
	if name := r.URL.Query().Get("engine"); name != "" {
		var err error
		sessions, err = c.app.Factory.ActiveSessions(name)
		if err != nil {
			c.logError(r, "failed to list sessions", "error", err, "engine", name)
			jsonError(w, http.StatusNotFound, err.Error())
			return
		}
	} else {
		sessions = c.app.Factory.AllActiveSessions()
	}
	if sessions == nil {
		sessions = []proto.SessionInfo{}
	}
	jsonEncode(w, sessions)
}

// owner resolves the engine of a live session or writes a 404.
func (c *controllerV1) owner(w http.ResponseWriter, r *http.Request, sid string) (string, bool) {
	name, ok := c.app.Factory.SessionEngine(sid)
	if !ok {
		c.logDebug(r, "session not found", "sid", sid)
		jsonError(w, http.StatusNotFound, "session not found")
		return "", false
	}
	return name, true
}

func (c *controllerV1) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	name, ok := c.owner(w, r, sid)
	if !ok {
		return
	}

	status, err := c.app.Factory.Status(name, sid)
	if err != nil {
		c.logError(r, "failed to get session status", "error", err, "sid", sid)
		jsonError(w, http.StatusInternalServerError, "failed to get session status")
		return
	}
	jsonEncode(w, status)
}

func (c *controllerV1) handleGetSessionLogs(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	name, ok := c.owner(w, r, sid)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := c.app.Factory.Logs(name, sid, limit)
	if err != nil {
		c.logError(r, "failed to get session logs", "error", err, "sid", sid)
		jsonError(w, http.StatusInternalServerError, "failed to get session logs")
		return
	}
	if logs == nil {
		logs = []proto.LogEntry{}
	}
	jsonEncode(w, logs)
}

func (c *controllerV1) handleGetSessionEvents(w http.ResponseWriter, r *http.Request) {
	flusher := http.NewResponseController(w)
	sid := r.PathValue("sid")
	name, ok := c.owner(w, r, sid)
	if !ok {
		return
	}

	events, err := c.app.Factory.Subscribe(r.Context(), name, sid)
	if err != nil {
		c.logError(r, "failed to subscribe", "error", err, "sid", sid)
		jsonError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			c.logDebug(r, "stopping event stream")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				c.logError(r, "failed to marshal event", "error", err)
				continue
			}

			fmt.Fprintf(w, "data: %s\n\n", data)
			_ = flusher.Flush()
			if ev.Payload.Complete != nil {
				return
			}
		}
	}
}

func (c *controllerV1) handlePostSessionTerminate(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	res, err := c.app.Terminate(r.URL.Query().Get("engine"), sid)
	if err != nil {
		var notFound *engine.SessionNotFoundError
		if errors.As(err, &notFound) {
			jsonError(w, http.StatusNotFound, err.Error())
			return
		}
		c.logError(r, "failed to terminate session", "error", err, "sid", sid)
		jsonError(w, http.StatusInternalServerError, "failed to terminate session")
		return
	}
	jsonEncode(w, res)
}

func (c *controllerV1) handleGetProjectHistory(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	limit, err := queryInt(r, "limit", c.app.Config().Options.HistoryLimit)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := c.app.Factory.History(r.URL.Query().Get("engine"), project, limit)
	if err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	if records == nil {
		records = []proto.HistoryRecord{}
	}
	jsonEncode(w, records)
}

func (c *controllerV1) handleDeleteProjectHistory(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	if err := c.app.Factory.ClearHistory(r.URL.Query().Get("engine"), project); err != nil {
		c.logError(r, "failed to clear history", "error", err, "project", project)
		jsonError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *controllerV1) handleGetProjectHistoryRecord(w http.ResponseWriter, r *http.Request) {
	project, id := r.PathValue("project"), r.PathValue("id")
	rec, ok, err := c.app.Factory.HistoryDetail(r.URL.Query().Get("engine"), project, id)
	if err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	if !ok {
		jsonError(w, http.StatusNotFound, "history record not found")
		return
	}
	jsonEncode(w, rec)
}

func (c *controllerV1) handleGetProjectSessions(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := c.app.StoredSessions(r.Context(), project, int64(limit))
	if err != nil {
		c.logError(r, "failed to list stored sessions", "error", err, "project", project)
		jsonError(w, http.StatusInternalServerError, "failed to list stored sessions")
		return
	}
	jsonEncode(w, sessions)
}

func (c *controllerV1) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("cid")
	conv, ok := c.app.Bridge.Get(cid)
	if !ok {
		jsonError(w, http.StatusNotFound, "conversation not found")
		return
	}
	jsonEncode(w, conv)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func jsonEncode(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonStatus(w, status, proto.Error{Message: message})
}
