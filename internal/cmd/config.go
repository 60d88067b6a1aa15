package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/devpilot-ai/devpilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage devpilot configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a value in the project configuration file, or in the global one with
--global. Keys are dotted paths; values are parsed as JSON when they can be.`,
	Example: heredoc.Doc(`
		# Change the default engine for this project
		devpilot config set default_engine codex

		# Point an engine at another model
		devpilot config set engines.claude.model claude-opus-4-1

		# Disable an engine everywhere
		devpilot config set --global engines.gemini.disabled true
	`),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")

		path := config.GlobalConfig(os.Environ())
		if !global {
			cwd, err := ResolveCwd(cmd)
			if err != nil {
				return err
			}
			path = config.ProjectConfig(cwd)
		}

		if err := config.SetValue(path, args[0], parseValue(args[1])); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), styles.Subtle.Render(fmt.Sprintf("Set %s in %s", args[0], path)))
		return nil
	},
}

// parseValue decodes JSON scalars, arrays and objects. Anything else is kept
// as a string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func init() {
	configSetCmd.Flags().Bool("global", false, "Write to the global configuration file")
	configCmd.AddCommand(configSetCmd)
}
