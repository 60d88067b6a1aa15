package cmd

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/db"
	"github.com/devpilot-ai/devpilot/internal/history"
	"github.com/devpilot-ai/devpilot/internal/log"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration information",
	Long:  `Display information about the current configuration including the active config files, data paths and configured engines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		sections := []string{
			section("Configuration", maxWidth),
			"",
			renderConfigSection(cfg),
			"",
			renderEnginesSection(cfg),
		}
		fmt.Println(lipgloss.JoinVertical(lipgloss.Left, sections...))
		return nil
	},
}

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the configured engines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}
		fmt.Println(renderEnginesSection(cfg))
		return nil
	},
}

// activeConfigFiles returns the configuration files that exist, in merge
// order.
func activeConfigFiles(cfg *config.Config) []string {
	var found []string
	for _, path := range config.ConfigPaths(cfg.WorkingDir(), os.Environ()) {
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}
	return found
}

func detail(label, value string) string {
	return fmt.Sprintf("%s %s", styles.Subtle.Render(label), styles.Text.Render(value))
}

func renderConfigSection(cfg *config.Config) string {
	var details []string

	files := activeConfigFiles(cfg)
	if len(files) == 0 {
		details = append(details, detail("Configuration Files:", "none found (using defaults)"))
	}
	for _, f := range files {
		details = append(details, detail("Configuration File:", f))
	}

	dataDir := cfg.Options.DataDirectory
	details = append(details,
		detail("Working Directory:", cfg.WorkingDir()),
		detail("Data Directory:", dataDir),
		detail("Log Path:", log.FilePath(dataDir)),
		detail("History:", history.NewStore(dataDir, cfg.Options.HistoryLimit).Path()),
		detail("Database:", db.Path(dataDir)),
	)
	return lipgloss.JoinVertical(lipgloss.Left, details...)
}

func renderEnginesSection(cfg *config.Config) string {
	lines := []string{section("Engines", maxWidth), ""}

	for _, name := range slices.Sorted(maps.Keys(cfg.Engines)) {
		e := cfg.Engines[name]
		label := fmt.Sprintf("%s (%s):", e.Label(), e.Type)
		if name == cfg.DefaultEngine {
			label = fmt.Sprintf("%s (%s, default):", e.Label(), e.Type)
		}

		statusText := styles.Success.Render("enabled")
		if e.Disabled {
			statusText = styles.Muted.Render("disabled")
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s",
			styles.Text.Render("•"),
			styles.Title.Render(label),
			statusText))

		if e.Model != "" {
			lines = append(lines, "    "+detail("Model:", e.Model))
		}
		switch {
		case e.Command != "":
			lines = append(lines, "    "+detail("Command:", e.Command))
		case e.BaseURL != "":
			lines = append(lines, "    "+detail("URL:", e.BaseURL))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
