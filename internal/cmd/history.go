package cmd

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/devpilot-ai/devpilot/internal/history"
	"github.com/devpilot-ai/devpilot/internal/proto"
)

var historyCmd = &cobra.Command{
	Use:   "history [project]",
	Short: "Show the prompt history of a project",
	Long: `Show the prompts recorded for a project, newest first. The project defaults
to the name of the working directory.`,
	Example: heredoc.Doc(`
		# Last prompts of the current project
		devpilot history

		# One record with its output
		devpilot history myproj --id claude-myproj-1760000000000-1a2b3c4d-1760000012345

		# All projects with history
		devpilot history --projects

		# Forget a project's history
		devpilot history myproj --clear
	`),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		id, _ := cmd.Flags().GetString("id")
		clearHistory, _ := cmd.Flags().GetBool("clear")
		projects, _ := cmd.Flags().GetBool("projects")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store := history.NewStore(cfg.Options.DataDirectory, cfg.Options.HistoryLimit)
		out := cmd.OutOrStdout()

		if projects {
			for _, p := range store.Projects() {
				fmt.Fprintln(out, p)
			}
			return nil
		}

		project := filepath.Base(cfg.WorkingDir())
		if len(args) > 0 {
			project = args[0]
		}

		switch {
		case clearHistory:
			if err := store.Clear(project); err != nil {
				return err
			}
			fmt.Fprintln(out, styles.Subtle.Render("Cleared history of "+project))
			return nil
		case id != "":
			rec, ok := store.Get(project, id)
			if !ok {
				return fmt.Errorf("history record %s not found in %s", id, project)
			}
			if asJSON {
				return writeJSON(out, rec)
			}
			fmt.Fprintln(out, renderRecordDetail(rec))
			return nil
		}

		records := store.List(project, cmp.Or(limit, cfg.Options.HistoryLimit))
		if asJSON {
			return writeJSON(out, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, styles.Muted.Render("No history for "+project))
			return nil
		}
		lines := []string{section("History of "+project, maxWidth), ""}
		for _, rec := range records {
			lines = append(lines, renderRecordLine(rec))
		}
		fmt.Fprintln(out, lipgloss.JoinVertical(lipgloss.Left, lines...))
		return nil
	},
}

func renderRecordLine(rec proto.HistoryRecord) string {
	when := time.UnixMilli(rec.Timestamp).Format("2006-01-02 15:04")
	return fmt.Sprintf("  %s %s %s %s\n    %s",
		status(rec.Success, "✓", "✗"),
		styles.Subtle.Render(when),
		styles.Title.Render(rec.Engine),
		styles.Text.Render(truncate(firstLine(rec.Prompt), maxWidth-30)),
		styles.Muted.Render(rec.ID),
	)
}

func renderRecordDetail(rec proto.HistoryRecord) string {
	lines := []string{
		section("Record", maxWidth),
		"",
		detail("ID:", rec.ID),
		detail("Engine:", rec.Engine),
		detail("Time:", time.UnixMilli(rec.Timestamp).Format(time.RFC3339)),
		detail("Duration:", (time.Duration(rec.Duration) * time.Millisecond).String()),
		detail("Status:", status(rec.Success, "success", "failed")),
	}
	if rec.Model != "" {
		lines = append(lines, detail("Model:", rec.Model))
	}
	if rec.Error != "" {
		lines = append(lines, detail("Error:", styles.Error.Render(rec.Error)))
	}
	lines = append(lines, detail("Tokens:", fmt.Sprintf("%d in / %d out", rec.Usage.InputTokens+rec.Usage.CacheReadTokens, rec.Usage.OutputTokens)))
	if rec.Cost != nil {
		lines = append(lines, detail("Cost:", fmt.Sprintf("$%.4f", rec.Cost.Total)))
	}
	lines = append(lines, "", section("Prompt", maxWidth), "", rec.Prompt, "", section("Output", maxWidth), "")
	for _, entry := range rec.Logs {
		content := entry.Content
		if entry.Channel == proto.Stderr {
			content = styles.Warning.Render(content)
		}
		lines = append(lines, content)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	historyCmd.Flags().IntP("limit", "l", 0, "Maximum number of records to show")
	historyCmd.Flags().String("id", "", "Show a single record with its output")
	historyCmd.Flags().Bool("clear", false, "Delete the project's history")
	historyCmd.Flags().Bool("projects", false, "List the projects that have history")
	historyCmd.Flags().Bool("json", false, "Print JSON")
	historyCmd.MarkFlagsMutuallyExclusive("id", "clear", "projects")
}
