package log

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const FileName = "devpilot.log"

var (
	initOnce    sync.Once
	initialized atomic.Bool
	logDir      atomic.Value
)

// FilePath returns the rotating log file inside the data directory.
func FilePath(dataDir string) string {
	return filepath.Join(dataDir, "logs", FileName)
}

// Setup installs a JSON slog handler writing to a rotating log file. Only the
// first call has an effect.
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		logRotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // Max size in MB
			MaxBackups: 3,
			MaxAge:     30, // Days
		}

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}

		handler := slog.NewJSONHandler(logRotator, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})

		slog.SetDefault(slog.New(handler))
		logDir.Store(filepath.Dir(logFile))
		initialized.Store(true)
	})
}

func Initialized() bool {
	return initialized.Load()
}

// MaskAPIKey masks an API key by showing only the first and last 5 characters.
// For keys shorter than 10 characters, it shows first 2 and last 2 characters.
// Returns "***EMPTY***" for empty strings.
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "***EMPTY***"
	}

	key := strings.TrimPrefix(apiKey, "Bearer ")
	key = strings.TrimPrefix(key, "sk-")

	keyLen := len(key)
	switch {
	case keyLen <= 4:
		return strings.Repeat("*", keyLen)
	case keyLen <= 10:
		return key[:2] + strings.Repeat("*", keyLen-4) + key[keyLen-2:]
	default:
		return key[:5] + strings.Repeat("*", keyLen-10) + key[keyLen-5:]
	}
}

// RecoverPanic must be deferred. It logs the panic, writes a crash report next
// to the log file and runs cleanup.
func RecoverPanic(name string, cleanup func()) {
	r := recover()
	if r == nil {
		return
	}

	stack := debug.Stack()
	slog.Error("Recovered panic", "goroutine", name, "panic", r, "stack", string(stack))
	writeCrashReport(name, r, stack)

	if cleanup != nil {
		cleanup()
	}
}

func writeCrashReport(name string, r any, stack []byte) {
	dir := os.TempDir()
	if d, ok := logDir.Load().(string); ok && d != "" {
		dir = d
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := filepath.Join(dir, fmt.Sprintf("devpilot-panic-%s-%s.log", name, timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return
	}
	defer file.Close()

	fmt.Fprintf(file, "Panic in %s: %v\n\n", name, r)
	fmt.Fprintf(file, "Time: %s\n\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(file, "Stack Trace:\n%s\n", stack)
}
