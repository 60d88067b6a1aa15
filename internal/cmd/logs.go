package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	charmlog "github.com/charmbracelet/log/v2"
	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"github.com/devpilot-ai/devpilot/internal/log"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the devpilot log",
	Example: heredoc.Doc(`
		# Last 100 lines
		devpilot logs

		# Follow the log while a server runs
		devpilot logs -f
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("tail")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := log.FilePath(cfg.Options.DataDirectory)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), styles.Muted.Render("No logs yet at "+path))
				return nil
			}
			return err
		}

		logger := charmlog.New(cmd.OutOrStdout())
		logger.SetReportTimestamp(false)
		logger.SetLevel(charmlog.DebugLevel)

		if err := showLastLines(cmd.OutOrStdout(), logger, path, lines); err != nil {
			return err
		}
		if !follow {
			return nil
		}

		t, err := tail.TailFile(path, tail.Config{
			Follow:   true,
			ReOpen:   true,
			Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
			Logger:   tail.DiscardingLogger,
		})
		if err != nil {
			return fmt.Errorf("failed to tail log file: %v", err)
		}
		defer t.Cleanup()

		for {
			select {
			case <-cmd.Context().Done():
				return t.Stop()
			case line, ok := <-t.Lines:
				if !ok {
					return t.Err()
				}
				if line.Err != nil {
					return line.Err
				}
				printLogLine(cmd.OutOrStdout(), logger, line.Text)
			}
		}
	},
}

// showLastLines prints the last n lines of the file.
func showLastLines(w io.Writer, logger *charmlog.Logger, path string, n int) error {
	t, err := tail.TailFile(path, tail.Config{Logger: tail.DiscardingLogger})
	if err != nil {
		return fmt.Errorf("failed to read log file: %v", err)
	}
	defer t.Cleanup()

	var last []string
	for line := range t.Lines {
		if line.Err != nil {
			return line.Err
		}
		last = append(last, line.Text)
		if n > 0 && len(last) > n {
			last = slices.Delete(last, 0, len(last)-n)
		}
	}
	for _, text := range last {
		printLogLine(w, logger, text)
	}
	return nil
}

// printLogLine renders one JSON log record. Lines that are not JSON are
// printed as they are.
func printLogLine(w io.Writer, logger *charmlog.Logger, text string) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		fmt.Fprintln(w, text)
		return
	}

	msg, _ := rec["msg"].(string)
	levelName, _ := rec["level"].(string)
	level, err := charmlog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		level = charmlog.InfoLevel
	}

	l := logger
	if ts, ok := rec["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			l = logger.WithPrefix(parsed.Local().Format("2006-01-02 15:04:05"))
		}
	}

	var keyvals []any
	for _, k := range slices.Sorted(maps.Keys(rec)) {
		switch k {
		case "time", "level", "msg", "source":
			continue
		}
		keyvals = append(keyvals, k, rec[k])
	}
	l.Log(level, msg, keyvals...)
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("tail", "t", 100, "Number of lines to show from the end of the log")
}
