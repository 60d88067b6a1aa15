package codex

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/render"
)

type normalizer struct {
	engine    string
	model     string
	sessionID string
	render    *render.Renderer
}

func (n *normalizer) Normalize(ev Event) []engine.Update {
	switch ev.Type {
	case EventThreadStarted:
		return []engine.Update{{Kind: engine.KindDrop, Token: ev.ThreadID, Model: n.model}}
	case EventTurnStarted, EventItemStarted, EventItemUpdated:
		return nil
	case EventItemCompleted:
		if ev.Item == nil {
			return nil
		}
		return n.item(*ev.Item)
	case EventTurnCompleted:
		return []engine.Update{engine.Done(turnUsage(ev.Usage), "")}
	case EventTurnFailed:
		msg := "turn failed"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		return []engine.Update{engine.Failed(turnUsage(ev.Usage), errors.New(msg))}
	case EventError:
		// Stream errors (e.g. reconnects) are reported but do not end the turn.
		if ev.Message == "" {
			return nil
		}
		return []engine.Update{engine.Stderr(ev.Message)}
	default:
		err := &engine.UnhandledEventError{Engine: n.engine, Kind: string(ev.Type)}
		slog.Warn("Dropping event", "session_id", n.sessionID, "error", err)
		return nil
	}
}

func (n *normalizer) item(it Item) []engine.Update {
	switch it.Type {
	case ItemAgentMessage:
		if strings.TrimSpace(it.Text) == "" {
			return nil
		}
		u := engine.Stdout(it.Text)
		u.Message = true
		return []engine.Update{u}
	case ItemReasoning:
		return nil
	case ItemCommandExecution:
		u := engine.Stdout(n.render.Command(it.Command, it.AggregatedOutput, it.ExitCode))
		if it.ExitCode != nil && *it.ExitCode != 0 {
			u.Channel = proto.Stderr
		}
		u.ToolCall = true
		return []engine.Update{u}
	case ItemFileChange:
		var lines []string
		for _, c := range it.Changes {
			lines = append(lines, fmt.Sprintf("%s `%s`", c.Kind, c.Path))
		}
		u := engine.Stdout("**Files changed**\n" + n.render.List(lines))
		u.ToolCall = true
		return []engine.Update{u}
	case ItemMCPToolCall:
		u := engine.Stdout(fmt.Sprintf("**MCP** `%s/%s` (%s)", it.Server, it.Tool, it.Status))
		if it.Status == "failed" {
			u.Channel = proto.Stderr
		}
		u.ToolCall = true
		return []engine.Update{u}
	case ItemWebSearch:
		u := engine.Stdout("**WebSearch** " + it.Query)
		u.ToolCall = true
		return []engine.Update{u}
	case ItemTodoList:
		return []engine.Update{engine.Stdout("**Plan**\n" + n.render.Todos(gjson.ParseBytes(it.Items)))}
	case ItemError:
		return []engine.Update{engine.Stderr(it.Message)}
	default:
		err := &engine.UnhandledEventError{Engine: n.engine, Kind: "item/" + string(it.Type)}
		slog.Warn("Dropping item", "session_id", n.sessionID, "error", err)
		return nil
	}
}

// turnUsage reports cached input separately from fresh input.
func turnUsage(u *Usage) proto.Usage {
	if u == nil {
		return proto.Usage{}
	}
	return proto.Usage{
		InputTokens:     max(u.InputTokens-u.CachedInputTokens, 0),
		OutputTokens:    u.OutputTokens,
		CacheReadTokens: u.CachedInputTokens,
	}
}

func (n *normalizer) Flush(error) []engine.Update {
	return nil
}
