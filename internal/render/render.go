// Package render formats tool invocations and outputs as bounded markdown.
package render

import (
	"fmt"
	"strings"

	"github.com/rivo/uniseg"
	"github.com/tidwall/gjson"

	"github.com/devpilot-ai/devpilot/internal/config"
)

type Options struct {
	MaxOutputBytes int
	HeadLines      int
	TailLines      int
	MaxListItems   int
}

func FromConfig(o config.RenderOptions) Options {
	return Options{
		MaxOutputBytes: o.MaxOutputBytes,
		HeadLines:      o.HeadLines,
		TailLines:      o.TailLines,
		MaxListItems:   o.MaxListItems,
	}
}

func DefaultOptions() Options {
	return Options{
		MaxOutputBytes: config.DefaultMaxOutputBytes,
		HeadLines:      config.DefaultHeadLines,
		TailLines:      config.DefaultTailLines,
		MaxListItems:   config.DefaultMaxListItems,
	}
}

type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Truncate keeps the first HeadLines and last TailLines of s when it exceeds
// MaxOutputBytes or HeadLines+TailLines lines.
func (r *Renderer) Truncate(s string) string {
	s = strings.TrimRight(s, "\n")
	lines := strings.Split(s, "\n")
	keep := r.opts.HeadLines + r.opts.TailLines

	if len(lines) > keep && keep > 0 {
		omitted := len(lines) - keep
		head := lines[:r.opts.HeadLines]
		tail := lines[len(lines)-r.opts.TailLines:]
		s = strings.Join(head, "\n") +
			fmt.Sprintf("\n... (%d lines omitted) ...\n", omitted) +
			strings.Join(tail, "\n")
	}

	if r.opts.MaxOutputBytes > 0 && len(s) > r.opts.MaxOutputBytes {
		half := r.opts.MaxOutputBytes / 2
		head, tail := headBytes(s, half), tailBytes(s, half)
		omitted := len(s) - len(head) - len(tail)
		s = head + fmt.Sprintf("\n... (%d bytes omitted) ...\n", omitted) + tail
	}
	return s
}

// headBytes returns the longest prefix of s made of whole grapheme clusters
// that fits in n bytes.
func headBytes(s string, n int) string {
	rest, state, end := s, -1, 0
	for rest != "" {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if end+len(cluster) > n {
			break
		}
		end += len(cluster)
	}
	return s[:end]
}

// tailBytes returns the longest suffix of s made of whole grapheme clusters
// that fits in n bytes.
func tailBytes(s string, n int) string {
	rest, state, start := s, -1, 0
	for rest != "" && len(s)-start > n {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		start += len(cluster)
	}
	return s[start:]
}

// List renders items as a bullet list capped at MaxListItems.
func (r *Renderer) List(items []string) string {
	var b strings.Builder
	limit := len(items)
	if r.opts.MaxListItems > 0 && limit > r.opts.MaxListItems {
		limit = r.opts.MaxListItems
	}
	for _, it := range items[:limit] {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	if rest := len(items) - limit; rest > 0 {
		fmt.Fprintf(&b, "- ... and %d more\n", rest)
	}
	return strings.TrimRight(b.String(), "\n")
}

// CodeBlock wraps truncated output in a fenced block.
func (r *Renderer) CodeBlock(s string) string {
	s = r.Truncate(s)
	if s == "" {
		return ""
	}
	return "```\n" + s + "\n```"
}

// ToolCall summarizes a tool invocation from its name and JSON input.
func (r *Renderer) ToolCall(name string, input []byte) string {
	in := gjson.ParseBytes(input)
	arg := func(keys ...string) string {
		for _, k := range keys {
			if v := in.Get(k); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
		return ""
	}

	switch name {
	case "Bash":
		cmd := arg("command")
		if desc := arg("description"); desc != "" {
			return fmt.Sprintf("**Bash** %s\n```bash\n%s\n```", desc, r.Truncate(cmd))
		}
		return fmt.Sprintf("**Bash**\n```bash\n%s\n```", r.Truncate(cmd))
	case "Read", "Write", "Edit", "MultiEdit", "NotebookEdit":
		return fmt.Sprintf("**%s** `%s`", name, arg("file_path", "notebook_path"))
	case "Glob", "Grep":
		if path := arg("path"); path != "" {
			return fmt.Sprintf("**%s** `%s` in `%s`", name, arg("pattern"), path)
		}
		return fmt.Sprintf("**%s** `%s`", name, arg("pattern"))
	case "LS":
		return fmt.Sprintf("**LS** `%s`", arg("path"))
	case "WebFetch":
		return fmt.Sprintf("**WebFetch** %s", arg("url"))
	case "WebSearch":
		return fmt.Sprintf("**WebSearch** %s", arg("query"))
	case "Task":
		return fmt.Sprintf("**Task** %s", arg("description", "prompt"))
	case "TodoWrite":
		return "**TodoWrite**\n" + r.Todos(in.Get("todos"))
	}

	raw := strings.TrimSpace(string(input))
	if raw == "" || raw == "{}" || raw == "null" {
		return fmt.Sprintf("**%s**", name)
	}
	return fmt.Sprintf("**%s**\n```json\n%s\n```", name, r.Truncate(raw))
}

// Todos renders a JSON array of {content|text, status|completed} items as a
// checklist.
func (r *Renderer) Todos(todos gjson.Result) string {
	var items []string
	for _, t := range todos.Array() {
		text := t.Get("content").String()
		if text == "" {
			text = t.Get("text").String()
		}
		mark := "[ ]"
		switch {
		case t.Get("status").String() == "completed", t.Get("completed").Bool():
			mark = "[x]"
		case t.Get("status").String() == "in_progress":
			mark = "[~]"
		}
		items = append(items, mark+" "+text)
	}
	return r.List(items)
}

// ToolResult renders a tool's textual output.
func (r *Renderer) ToolResult(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	return r.CodeBlock(content)
}

// Command renders an executed shell command with its exit code and output.
func (r *Renderer) Command(command, output string, exitCode *int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**$** `%s`", command)
	if exitCode != nil && *exitCode != 0 {
		fmt.Fprintf(&b, " (exit %d)", *exitCode)
	}
	if out := r.ToolResult(output); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	return b.String()
}
