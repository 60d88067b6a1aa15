package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/devpilot-ai/devpilot/internal/app"
	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/db"
	"github.com/devpilot-ai/devpilot/internal/log"
	"github.com/devpilot-ai/devpilot/internal/version"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("data-dir", "D", "", "Custom devpilot data directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.AddCommand(
		runCmd,
		serveCmd,
		historyCmd,
		enginesCmd,
		logsCmd,
		configCmd,
	)
}

var rootCmd = &cobra.Command{
	Use:   "devpilot",
	Short: "Drive coding agents and model APIs from one place",
	Long: `Devpilot runs prompts against several AI coding engines (Claude Code, Codex,
OpenAI-compatible and Gemini APIs) behind one session model. It streams
normalized output, keeps per-project history and carries conversation context
when you switch engines.`,
	Example: `
# Run a one-shot prompt with the default engine
devpilot run "Explain the use of context in Go"

# Start the HTTP server
devpilot serve

# Show the engines that are configured
devpilot engines
  `,
	SilenceUsage: true,
}

func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithCommit(version.Commit),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the working directory, loads configuration and starts
// file logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Init(cwd, dataDir, debug, os.Environ())
	if err != nil {
		return nil, err
	}
	if err := createDataDir(cfg.Options.DataDirectory); err != nil {
		return nil, err
	}

	log.Setup(log.FilePath(cfg.Options.DataDirectory), cfg.Options.Debug)
	return cfg, nil
}

// setupApp handles the common setup logic shared by the commands that run
// engines.
func setupApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()

	// Connect to DB; this will also run migrations.
	conn, err := db.Connect(ctx, cfg.Options.DataDirectory)
	if err != nil {
		return nil, err
	}

	appInstance, err := app.New(ctx, conn, cfg)
	if err != nil {
		_ = conn.Close()
		slog.Error("Failed to create app instance", "error", err)
		return nil, err
	}

	return appInstance, nil
}

func MaybePrependStdin(prompt string) (string, error) {
	if term.IsTerminal(os.Stdin.Fd()) {
		return prompt, nil
	}
	fi, err := os.Stdin.Stat()
	if err != nil {
		return prompt, err
	}
	if fi.Mode()&os.ModeNamedPipe == 0 {
		return prompt, nil
	}
	bts, err := io.ReadAll(os.Stdin)
	if err != nil {
		return prompt, err
	}
	if prompt == "" {
		return string(bts), nil
	}
	return string(bts) + "\n\n" + prompt, nil
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return filepath.Abs(cwd)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}

func createDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %q %w", dir, err)
	}

	gitIgnorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitIgnorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitIgnorePath, []byte("*\n"), 0o644); err != nil {
			return fmt.Errorf("failed to create .gitignore file: %q %w", gitIgnorePath, err)
		}
	}

	return nil
}
