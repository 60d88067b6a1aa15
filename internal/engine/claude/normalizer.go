package claude

import (
	"cmp"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"

	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/render"
)

// Tool results that only echo what the agent already read are not shown.
var quietTools = map[string]bool{
	"Read":      true,
	"TodoWrite": true,
}

type normalizer struct {
	engine    string
	sessionID string
	render    *render.Renderer
	toolNames map[string]string
}

func (n *normalizer) Normalize(ev Event) []engine.Update {
	switch ev.Type {
	case EventSystem:
		return n.system(ev)
	case EventAssistant:
		return n.assistant(ev)
	case EventUser:
		return n.user(ev)
	case EventResult:
		return n.result(ev)
	case EventStreamEvent:
		// Partial deltas are superseded by the complete assistant message.
		return nil
	default:
		err := &engine.UnhandledEventError{Engine: n.engine, Kind: string(ev.Type)}
		slog.Warn("Dropping event", "session_id", n.sessionID, "error", err)
		return nil
	}
}

func (n *normalizer) system(ev Event) []engine.Update {
	if ev.Subtype != "init" {
		return nil
	}
	return []engine.Update{{Kind: engine.KindDrop, Token: ev.SessionID, Model: ev.Model}}
}

func (n *normalizer) assistant(ev Event) []engine.Update {
	var msg anthropic.Message
	if err := json.Unmarshal(ev.Message, &msg); err != nil {
		slog.Warn("Failed to decode assistant message", "session_id", n.sessionID, "error", err)
		return nil
	}

	var updates []engine.Update
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if strings.TrimSpace(block.Text) == "" {
				continue
			}
			u := engine.Stdout(block.Text)
			u.Message = true
			updates = append(updates, u)
		case "tool_use", "server_tool_use":
			n.toolNames[block.ID] = block.Name
			u := engine.Stdout(n.render.ToolCall(block.Name, block.Input))
			u.ToolCall = true
			updates = append(updates, u)
		case "thinking", "redacted_thinking":
		default:
			err := &engine.UnhandledEventError{Engine: n.engine, Kind: "assistant/" + block.Type}
			slog.Warn("Dropping content block", "session_id", n.sessionID, "error", err)
		}
	}
	if len(updates) == 0 {
		return []engine.Update{{Kind: engine.KindDrop, Model: string(msg.Model)}}
	}
	updates[0].Model = string(msg.Model)
	return updates
}

// user events carry tool results. The Messages API response types do not
// model them, so they are read with gjson.
func (n *normalizer) user(ev Event) []engine.Update {
	var updates []engine.Update
	for _, block := range gjson.GetBytes(ev.Message, "content").Array() {
		if block.Get("type").String() != "tool_result" {
			continue
		}
		name := n.toolNames[block.Get("tool_use_id").String()]
		isError := block.Get("is_error").Bool()
		if quietTools[name] && !isError {
			continue
		}

		text := toolResultText(block.Get("content"))
		out := n.render.ToolResult(text)
		if out == "" {
			continue
		}
		if isError {
			updates = append(updates, engine.Stderr(out))
		} else {
			updates = append(updates, engine.Stdout(out))
		}
	}
	return updates
}

func toolResultText(content gjson.Result) string {
	if !content.IsArray() {
		return content.String()
	}
	var parts []string
	for _, c := range content.Array() {
		if c.Get("type").String() == "text" {
			parts = append(parts, c.Get("text").String())
		}
	}
	return strings.Join(parts, "\n")
}

func (n *normalizer) result(ev Event) []engine.Update {
	usage := turnUsage(ev.Usage)
	if ev.Subtype == "success" && !ev.IsError {
		done := engine.Done(usage, ev.Result)
		done.Token = ev.SessionID
		return []engine.Update{done}
	}

	failed := engine.Failed(usage, errors.New(cmp.Or(ev.Result, ev.Subtype, "claude reported an error")))
	failed.Token = ev.SessionID
	return []engine.Update{failed}
}

func turnUsage(raw json.RawMessage) proto.Usage {
	if len(raw) == 0 {
		return proto.Usage{}
	}
	var u anthropic.Usage
	if err := json.Unmarshal(raw, &u); err != nil {
		return proto.Usage{}
	}
	return proto.Usage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
	}
}

func (n *normalizer) Flush(error) []engine.Update {
	return nil
}
