package config

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/qjebbs/go-jsons"
)

// Load reads the global and project configuration files from workingDir,
// merges them and applies defaults. env is the KEY=VALUE environment used to
// resolve "$VAR" values; a .env file in workingDir adds to it without
// overriding.
func Load(workingDir, dataDir string, debug bool, env []string) (*Config, error) {
	env = withDotEnv(workingDir, env)

	configPaths := ConfigPaths(workingDir, env)
	cfg, err := loadFromConfigPaths(configPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from paths %v: %w", configPaths, err)
	}

	cfg.workingDir = workingDir
	cfg.resolver = NewEnvironmentVariableResolver(env)
	cfg.setDefaults(env, dataDir, debug)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ConfigPaths lists the configuration files in merge order: the global file
// first, then the project files in workingDir.
func ConfigPaths(workingDir string, env []string) []string {
	paths := []string{GlobalConfig(env)}
	for _, p := range defaultConfigPaths {
		paths = append(paths, filepath.Join(workingDir, p))
	}
	return paths
}

// ProjectConfig is the project configuration file written by "config set".
func ProjectConfig(workingDir string) string {
	return filepath.Join(workingDir, defaultConfigPaths[0])
}

func loadFromConfigPaths(configPaths []string) (*Config, error) {
	var readers []io.Reader

	for _, path := range configPaths {
		fd, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
		}
		defer fd.Close()

		readers = append(readers, fd)
	}

	return loadFromReaders(readers)
}

func loadFromReaders(readers []io.Reader) (*Config, error) {
	if len(readers) == 0 {
		return &Config{}, nil
	}

	merged, err := jsons.Merge(readers)
	if err != nil {
		return nil, fmt.Errorf("failed to merge configuration readers: %w", err)
	}

	return LoadReader(bytes.NewReader(merged))
}

func LoadReader(fd io.Reader) (*Config, error) {
	data, err := io.ReadAll(fd)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults(env []string, dataDir string, debug bool) {
	if c.Options == nil {
		c.Options = &Options{}
	}
	o := c.Options
	if dataDir != "" {
		o.DataDirectory = dataDir
	} else if o.DataDirectory == "" {
		o.DataDirectory = GlobalDataDir(env)
	}
	o.Debug = o.Debug || debug
	o.HistoryLimit = cmp.Or(o.HistoryLimit, DefaultHistoryLimit)
	o.MaxSessionLogs = cmp.Or(o.MaxSessionLogs, DefaultMaxSessionLogs)
	o.ConversationMaxMessages = cmp.Or(o.ConversationMaxMessages, DefaultConversationMaxMessages)
	o.Render.MaxOutputBytes = cmp.Or(o.Render.MaxOutputBytes, DefaultMaxOutputBytes)
	o.Render.HeadLines = cmp.Or(o.Render.HeadLines, DefaultHeadLines)
	o.Render.TailLines = cmp.Or(o.Render.TailLines, DefaultTailLines)
	o.Render.MaxListItems = cmp.Or(o.Render.MaxListItems, DefaultMaxListItems)

	engines := defaultEngines()
	for name, user := range c.Engines {
		def, ok := engines[name]
		if !ok {
			engines[name] = user
			continue
		}
		engines[name] = mergeEngine(def, user)
	}
	for name, e := range engines {
		e.Name = name
		engines[name] = e
	}
	c.Engines = engines
	c.DefaultEngine = cmp.Or(c.DefaultEngine, "claude")
}

// mergeEngine fills the unset fields of user from def.
func mergeEngine(def, user EngineConfig) EngineConfig {
	out := user
	out.Type = cmp.Or(user.Type, def.Type)
	out.DisplayName = cmp.Or(user.DisplayName, def.DisplayName)
	out.Command = cmp.Or(user.Command, def.Command)
	out.BaseURL = cmp.Or(user.BaseURL, def.BaseURL)
	out.APIKey = cmp.Or(user.APIKey, def.APIKey)
	out.Model = cmp.Or(user.Model, def.Model)
	out.Provider = cmp.Or(user.Provider, def.Provider)
	out.PermissionMode = cmp.Or(user.PermissionMode, def.PermissionMode)
	if out.Args == nil {
		out.Args = def.Args
	}
	if len(def.Env) > 0 {
		env := maps.Clone(def.Env)
		maps.Copy(env, user.Env)
		out.Env = env
	}
	return out
}

func withDotEnv(workingDir string, env []string) []string {
	values, err := godotenv.Read(filepath.Join(workingDir, ".env"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to read .env file", "error", err)
		}
		return env
	}

	set := make(map[string]bool, len(env))
	for _, kv := range env {
		k, _, _ := strings.Cut(kv, "=")
		set[k] = true
	}
	out := append([]string(nil), env...)
	for k, v := range values {
		if !set[k] {
			out = append(out, k+"="+v)
		}
	}
	return out
}

func lookup(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v
		}
	}
	return ""
}

func homeDir(env []string) string {
	if h := lookup(env, "HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

// GlobalConfig returns the path to the user-wide configuration file.
func GlobalConfig(env []string) string {
	if xdg := lookup(env, "XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, fmt.Sprintf("%s.json", appName))
	}
	if runtime.GOOS == "windows" {
		if appData := lookup(env, "LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, appName, fmt.Sprintf("%s.json", appName))
		}
	}
	return filepath.Join(homeDir(env), ".config", appName, fmt.Sprintf("%s.json", appName))
}

// GlobalDataDir returns the default data directory.
func GlobalDataDir(env []string) string {
	if xdg := lookup(env, "XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if runtime.GOOS == "windows" {
		if appData := lookup(env, "LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
	}
	return filepath.Join(homeDir(env), ".local", "share", appName)
}
