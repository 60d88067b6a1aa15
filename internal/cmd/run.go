package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/devpilot-ai/devpilot/internal/app"
	"github.com/devpilot-ai/devpilot/internal/client"
	"github.com/devpilot-ai/devpilot/internal/proto"
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Run a single non-interactive prompt",
	Long: `Run a single prompt in non-interactive mode and exit.
The prompt can be provided as arguments or piped from stdin. Output is
streamed to stdout as the engine produces it.`,
	Example: heredoc.Doc(`
		# Run a simple prompt with the default engine
		devpilot run Explain the use of context in Go

		# Pick an engine
		devpilot run -e codex "Add a unit test for parseArgs"

		# Continue a previous session
		devpilot run -s claude-myproj-1760000000000-1a2b3c4d "Now refactor it"

		# Pipe input from stdin
		cat main.go | devpilot run "What is this code doing?"

		# Hide the summary line
		devpilot run -q "Generate a README for this project"

		# Send the prompt to a running server
		devpilot run -H tcp://127.0.0.1:7420 "Summarize the open TODOs"
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")
		engineName, _ := cmd.Flags().GetString("engine")
		project, _ := cmd.Flags().GetString("project")
		sessionID, _ := cmd.Flags().GetString("session")
		conversationID, _ := cmd.Flags().GetString("conversation")
		mode, _ := cmd.Flags().GetString("mode")

		prompt, err := MaybePrependStdin(strings.Join(args, " "))
		if err != nil {
			slog.Error("Failed to read from stdin", "error", err)
			return err
		}
		if strings.TrimSpace(prompt) == "" {
			return errors.New("no prompt provided")
		}

		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cwd, err := ResolveCwd(cmd)
			if err != nil {
				return err
			}
			return runRemote(cmd.Context(), host, engineName, proto.PromptRequest{
				ExecuteRequest: proto.ExecuteRequest{
					ProjectName: cmp.Or(project, filepath.Base(cwd)),
					ProjectPath: cwd,
					Prompt:      prompt,
					SessionID:   sessionID,
					Mode:        mode,
				},
				ConversationID: conversationID,
			}, quiet)
		}

		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		cwd := a.Config().WorkingDir()
		engineName = cmp.Or(engineName, a.Factory.DefaultEngine())
		res, err := a.Execute(cmd.Context(), app.ExecuteParams{
			Engine:         engineName,
			ConversationID: conversationID,
			ProjectName:    cmp.Or(project, filepath.Base(cwd)),
			ProjectPath:    cwd,
			Prompt:         prompt,
			SessionID:      sessionID,
			Mode:           mode,
		})
		if err != nil {
			return err
		}

		events, cancel, err := localEvents(a, engineName, res.SessionID)
		if err != nil {
			return err
		}
		defer cancel()

		complete, err := stream(cmd.Context(), events, func() error {
			_, err := a.Terminate(engineName, res.SessionID)
			return err
		}, os.Stdout, os.Stderr)
		if err != nil {
			return err
		}
		return finish(engineName, res.SessionID, complete, quiet)
	},
}

// runRemote sends the prompt to a running server and streams its events.
func runRemote(ctx context.Context, host, engineName string, req proto.PromptRequest, quiet bool) error {
	c, err := client.FromHost(host)
	if err != nil {
		return err
	}
	if engineName == "" {
		engines, err := c.Engines(ctx)
		if err != nil {
			return err
		}
		for _, e := range engines {
			if e.Default {
				engineName = e.Name
			}
		}
	}

	res, err := c.Execute(ctx, engineName, req)
	if err != nil {
		return err
	}

	events, err := c.SubscribeEvents(context.Background(), res.SessionID)
	if err != nil {
		return err
	}
	complete, err := stream(ctx, events, func() error {
		_, err := c.Terminate(context.Background(), res.SessionID)
		return err
	}, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	return finish(engineName, res.SessionID, complete, quiet)
}

// localEvents adapts the in-process subscription to plain session events.
func localEvents(a *app.App, engineName, sessionID string) (<-chan proto.SessionEvent, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := a.Factory.Subscribe(ctx, engineName, sessionID)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	events := make(chan proto.SessionEvent)
	go func() {
		defer close(events)
		for ev := range sub {
			select {
			case events <- ev.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, cancel, nil
}

func finish(engineName, sessionID string, complete *proto.CompleteEvent, quiet bool) error {
	if !quiet {
		fmt.Fprintln(os.Stderr, summary(engineName, sessionID, complete))
	}
	if !complete.Success {
		return fmt.Errorf("session failed: %s", cmp.Or(complete.Error, "unknown error"))
	}
	return nil
}

// stream copies session output to stdout and stderr until the turn completes.
// Cancelling ctx calls terminate once and keeps reading until the completion
// arrives.
func stream(ctx context.Context, events <-chan proto.SessionEvent, terminate func() error, stdout, stderr io.Writer) (*proto.CompleteEvent, error) {
	done := ctx.Done()
	for {
		select {
		case <-done:
			done = nil
			if err := terminate(); err != nil {
				slog.Warn("Failed to terminate session", "error", err)
			}
		case ev, ok := <-events:
			if !ok {
				return nil, errors.New("session ended without completing")
			}
			switch {
			case ev.Output != nil:
				w := stdout
				if ev.Output.Channel == proto.Stderr {
					w = stderr
				}
				fmt.Fprintln(w, ev.Output.Content)
			case ev.Complete != nil:
				return ev.Complete, nil
			}
		}
	}
}

func summary(engineName, sessionID string, c *proto.CompleteEvent) string {
	parts := []string{
		status(c.Success, "✓ "+engineName, "✗ "+engineName),
		(time.Duration(c.Duration) * time.Millisecond).Round(100 * time.Millisecond).String(),
		fmt.Sprintf("%d in / %d out", c.Usage.InputTokens+c.Usage.CacheReadTokens, c.Usage.OutputTokens),
	}
	if c.Cost != nil && c.Cost.Total > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", c.Cost.Total))
	}
	return strings.Join(parts, styles.Muted.Render(" · ")) + "\n" + styles.Subtle.Render("session: "+sessionID)
}

func init() {
	runCmd.Flags().BoolP("quiet", "q", false, "Hide the summary line")
	runCmd.Flags().StringP("engine", "e", "", "Engine to run the prompt with")
	runCmd.Flags().StringP("project", "p", "", "Project name (defaults to the working directory name)")
	runCmd.Flags().StringP("session", "s", "", "Session to continue")
	runCmd.Flags().String("conversation", "", "Conversation to record the exchange in")
	runCmd.Flags().String("mode", "", "Engine specific mode, such as a permission mode")
	runCmd.Flags().StringP("host", "H", "", "Send the prompt to a running server instead of running it in process")
}
